package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quizdesk-service/internal/auth"
)

func (s *Server) overallReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.Rankings.OverallReport(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) examReport(w http.ResponseWriter, r *http.Request) {
	top, err := topParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	report, err := s.Rankings.ExamReport(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"), top)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) standing(w http.ResponseWriter, r *http.Request) {
	top, err := topParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	standing, err := s.Rankings.Standing(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"), top)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, standing)
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.Sessions.Results(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.Sessions.Result(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
