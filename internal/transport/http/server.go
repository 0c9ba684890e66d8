package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/metrics"
)

// Deps are the use cases and cross-cutting collaborators behind the API.
type Deps struct {
	Exams     *app.ExamService
	Sessions  *app.ExamSessionService
	Rankings  *app.RankingService
	Users     *app.UserService
	Authoring *app.AuthoringService
	Issuer    *auth.Issuer
	Metrics   *metrics.Metrics
	Logger    *zap.Logger

	CORSOrigins []string
}

// Server is the HTTP and websocket surface of the service.
type Server struct {
	Deps
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewServer(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		Deps: deps,
		log:  log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.Metrics != nil {
		r.Use(s.Metrics.Middleware)
	}
	r.Use(s.requestLogger)

	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics.Handler())
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.register)
		r.Post("/auth/login", s.login)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(s.Issuer))

			r.Get("/me", s.profile)
			r.Put("/me/name", s.updateName)
			r.Put("/me/national-id", s.changeNationalID)

			r.Get("/exams", s.listExams)
			r.Get("/exams/{examID}", s.getExam)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireCapability(domain.CapAuthorExams))
				r.Post("/exams", s.createExam)
				r.Put("/exams/{examID}", s.updateExam)
				r.Delete("/exams/{examID}", s.deleteExam)
				r.Post("/exams/{examID}/questions", s.addQuestion)
				r.Post("/exams/{examID}/questions/import", s.importQuestions)
				r.Put("/exams/{examID}/questions/{questionID}", s.updateQuestion)
				r.Delete("/exams/{examID}/questions/{questionID}", s.deleteQuestion)
				r.Post("/exams/{examID}/images", s.uploadImage)

				r.Post("/ai/questions", s.generateQuestions)
				r.Post("/ai/translate", s.translateQuestions)
				r.Post("/ai/translate-text", s.translateText)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireCapability(domain.CapViewReports))
				r.Get("/reports", s.overallReport)
				r.Get("/reports/exams/{examID}", s.examReport)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireCapability(domain.CapTakeExams))
				r.Post("/exams/{examID}/session", s.startSession)
				r.Get("/exams/{examID}/session", s.liveSession)
				r.Post("/exams/{examID}/session/answers", s.selectAnswer)
				r.Post("/exams/{examID}/session/next", s.nextQuestion)
				r.Post("/exams/{examID}/session/previous", s.previousQuestion)
				r.Post("/exams/{examID}/session/finish", s.finishSession)
				r.Get("/results", s.listResults)
				r.Get("/results/{examID}", s.getResult)
				r.Get("/exams/{examID}/standing", s.standing)
			})
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.Issuer))
		r.Use(auth.RequireCapability(domain.CapTakeExams))
		r.Get("/ws/exams/{examID}", s.ServeWS)
	})
	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.CORSOrigins) == 0 {
		return []string{"*"}
	}
	return s.CORSOrigins
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("requestId", middleware.GetReqID(r.Context())))
	})
}
