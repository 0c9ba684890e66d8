package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
)

type selectPayload struct {
	QuestionID string `json:"questionId"`
	Option     string `json:"option"`
}

// startSession opens or resumes the caller's attempt and returns its snapshot.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.Sessions.Start(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) liveSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.Sessions.Live(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) selectAnswer(w http.ResponseWriter, r *http.Request) {
	var in selectPayload
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withLive(w, r, func(session *app.Session) (app.SessionSnapshot, error) {
		return session.SelectAnswer(in.QuestionID, in.Option)
	})
}

func (s *Server) nextQuestion(w http.ResponseWriter, r *http.Request) {
	s.withLive(w, r, (*app.Session).Next)
}

func (s *Server) previousQuestion(w http.ResponseWriter, r *http.Request) {
	s.withLive(w, r, (*app.Session).Previous)
}

func (s *Server) finishSession(w http.ResponseWriter, r *http.Request) {
	s.withLive(w, r, func(session *app.Session) (app.SessionSnapshot, error) {
		return session.Finish(r.Context())
	})
}

func (s *Server) withLive(w http.ResponseWriter, r *http.Request, op func(*app.Session) (app.SessionSnapshot, error)) {
	session, err := s.Sessions.Live(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snap, err := op(session)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
