package http

import (
	"net/http"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
)

func (s *Server) generateQuestions(w http.ResponseWriter, r *http.Request) {
	var in app.GenerateInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	questions, err := s.Authoring.Generate(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *Server) translateQuestions(w http.ResponseWriter, r *http.Request) {
	var in app.TranslateInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	questions, err := s.Authoring.TranslateQuestions(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (s *Server) translateText(w http.ResponseWriter, r *http.Request) {
	var in app.TranslateInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	text, err := s.Authoring.TranslateText(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
