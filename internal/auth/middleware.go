package auth

import (
	"encoding/json"
	"net/http"
	"strings"

	"quizdesk-service/internal/domain"
)

// Middleware authenticates the bearer token and attaches the principal.
// Browsers cannot set headers on websocket upgrades, so the token may also
// arrive as the access_token query parameter.
func Middleware(i *Issuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := bearer(r)
			if tok == "" {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			p, err := i.Parse(tok)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

// RequireCapability rejects callers whose role lacks c.
func RequireCapability(c domain.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := PrincipalFrom(r.Context()).Require(c); err != nil {
				status := http.StatusForbidden
				if domain.KindOf(err) == domain.KindUnauthenticated {
					status = http.StatusUnauthorized
				}
				writeError(w, status, err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	return r.URL.Query().Get("access_token")
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
