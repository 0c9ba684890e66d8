package http

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/domain"
)

type loginRequest struct {
	NationalID string `json:"nationalId"`
	Password   string `json:"password"`
}

type loginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      domain.User `json:"user"`
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in app.RegisterInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.Users.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	p, u, err := s.Users.Login(r.Context(), in.NationalID, in.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	token, expires, err := s.Issuer.Issue(p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.Info("user logged in", zap.String("user", u.ID), zap.String("role", u.Role.String()))
	writeJSON(w, http.StatusOK, loginResponse{Token: token, ExpiresAt: expires, User: u})
}

func (s *Server) profile(w http.ResponseWriter, r *http.Request) {
	u, err := s.Users.Profile(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) updateName(w http.ResponseWriter, r *http.Request) {
	var in app.NameInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.Users.UpdateName(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) changeNationalID(w http.ResponseWriter, r *http.Request) {
	var in app.NationalIDChange
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.Users.ChangeNationalID(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
