package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/config"
	"quizdesk-service/internal/logger"
	"quizdesk-service/internal/metrics"
	transport "quizdesk-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	log := logger.New(cfg.Logging)
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.Close()

	m := metrics.New()
	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, 8*time.Hour))
	credentials := auth.NewCredentials(b.store, 0)

	sessions := app.NewExamSessionService(b.catalog, b.store, b.sessions, app.SessionConfig{
		Tick:          config.TTLDuration(cfg.Exam.Tick, time.Second),
		SubmitTimeout: config.TTLDuration(cfg.Exam.SubmitTimeout, 15*time.Second),
		Logger:        log.Named("session"),
		Metrics:       m,
	})

	srv := transport.NewServer(transport.Deps{
		Exams:       app.NewExamService(b.store, b.catalog, b.store, b.images, log.Named("exams")),
		Sessions:    sessions,
		Rankings:    app.NewRankingService(b.store, b.store, b.store),
		Users:       app.NewUserService(b.store, credentials, cfg.Auth.IdentifierDomain, log.Named("users")),
		Authoring:   app.NewAuthoringService(b.writer, log.Named("authoring")),
		Issuer:      issuer,
		Metrics:     m,
		Logger:      log.Named("http"),
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting exam service", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	// Running countdowns stop here; unsubmitted attempts are not auto-submitted on shutdown.
	b.sessions.CloseAll()
	return err
}
