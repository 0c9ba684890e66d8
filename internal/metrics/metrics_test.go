package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionStarted()
	m.Submission("finish", "saved")
	m.UsersRekeyed(3)
}

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.SessionStarted()
	m.SessionStarted()
	m.Submission("timeout", "saved")
	m.UsersRekeyed(2)
	m.UsersRekeyed(0)

	if got := testutil.ToFloat64(m.sessionsStarted); got != 2 {
		t.Fatalf("expected 2 sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.submissions.WithLabelValues("timeout", "saved")); got != 1 {
		t.Fatalf("expected 1 submission, got %v", got)
	}
	if got := testutil.ToFloat64(m.usersRekeyed); got != 2 {
		t.Fatalf("expected 2 rekeyed users, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "quizdesk_sessions_started_total 2") {
		t.Fatalf("exposition missing sessions counter:\n%s", body)
	}
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/exams/{examID}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/exams/e-1", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/exams/e-2", nil))

	if got := testutil.ToFloat64(m.requests.WithLabelValues(http.MethodGet, "/exams/{examID}", "418")); got != 2 {
		t.Fatalf("expected 2 requests under the route pattern, got %v", got)
	}
}
