package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the service collectors. A nil *Metrics is a valid no-op recorder.
type Metrics struct {
	registry        *prometheus.Registry
	sessionsStarted prometheus.Counter
	submissions     *prometheus.CounterVec
	usersRekeyed    prometheus.Counter
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizdesk_sessions_started_total",
			Help: "Exam sessions that entered the in-progress state",
		}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizdesk_submissions_total",
			Help: "Exam submission attempts by outcome",
		}, []string{"trigger", "outcome"}),
		usersRekeyed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "quizdesk_users_rekeyed_total",
			Help: "User records moved to their national identifier",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "quizdesk_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "quizdesk_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		m.sessionsStarted,
		m.submissions,
		m.usersRekeyed,
		m.requests,
		m.requestDuration,
	)
	return m
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

// Submission records one submission attempt. trigger is "finish" or "timeout".
func (m *Metrics) Submission(trigger, outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(trigger, outcome).Inc()
}

func (m *Metrics) UsersRekeyed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.usersRekeyed.Add(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		m.requests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack passes through so websocket upgrades work behind the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Unwrap lets http.ResponseController reach the underlying writer (websocket hijack).
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
