package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusOf maps an error kind onto an HTTP status.
func statusOf(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConflict:
		return http.StatusConflict
	case domain.KindExternal:
		return http.StatusBadGateway
	case domain.KindForbidden:
		return http.StatusForbidden
	case domain.KindUnauthenticated:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// publicMessage hides storage and internal details from clients.
func publicMessage(kind domain.Kind, err error) string {
	switch kind {
	case domain.KindInternal, domain.KindPersistence:
		return "internal error"
	}
	return err.Error()
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := statusOf(kind)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("kind", kind.String()),
			zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: publicMessage(kind, err), Kind: kind.String()})
}

// decode reads a JSON body into v, rejecting oversized or malformed input.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.Errorf(domain.KindValidation, "request body is required")
		}
		return domain.Errorf(domain.KindValidation, "invalid json: %v", err)
	}
	return nil
}

// topParam reads the optional ?top= leaderboard length.
func topParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("top")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Errorf(domain.KindValidation, "top must be a non-negative integer")
	}
	return n, nil
}
