package cli

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/config"
	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/infra/memory"
	"quizdesk-service/internal/infra/minio"
	"quizdesk-service/internal/infra/openai"
	"quizdesk-service/internal/infra/postgres"
	redisinfra "quizdesk-service/internal/infra/redis"
)

// documentStore is everything the services need from the primary store.
type documentStore interface {
	app.ExamStore
	app.ResultStore
	app.UserStore
	auth.CredentialStore
	LoadExamContent(ctx context.Context, examID string) (domain.ExamContent, error)
}

type sessionRegistry interface {
	app.SessionRepository
	CloseAll()
}

// backends holds the wired infrastructure. Postgres, Redis and object storage
// are optional; each falls back to its in-memory counterpart when unset.
type backends struct {
	store    documentStore
	catalog  app.ExamCatalog
	sessions sessionRegistry
	images   app.ImageStore
	writer   app.QuestionWriter

	pool  *pgxpool.Pool
	redis *redis.Client
}

func openBackends(ctx context.Context, cfg config.Config, log *zap.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Postgres.URL != "" {
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, err
		}
		b.pool = pool
		b.store = postgres.NewStore(pool)
		log.Info("using postgres store")
	} else {
		b.store = memory.NewStore()
		log.Warn("postgres url not configured, using in-memory store")
	}

	cacheTTL := config.TTLDuration(cfg.Exam.CacheTTL, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, err
		}
		b.catalog = redisinfra.NewExamCatalog(b.redis, b.store, cacheTTL)
		b.sessions = redisinfra.NewSessionStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 2*time.Hour))
		log.Info("using redis exam cache", zap.String("addr", cfg.Redis.Addr))
	} else {
		b.catalog = memory.NewExamCatalog(b.store, cacheTTL)
		b.sessions = memory.NewSessionStore()
	}

	if cfg.Storage.Endpoint != "" {
		images, err := minio.NewImageStore(cfg.Storage)
		if err != nil {
			b.Close()
			return nil, err
		}
		if err := images.EnsureBucket(ctx); err != nil {
			b.Close()
			return nil, err
		}
		b.images = images
	} else {
		b.images = memory.NewImageStore()
	}

	if cfg.AI.APIKey != "" {
		b.writer = openai.NewClient(cfg.AI, &http.Client{})
	} else {
		log.Warn("ai api key not configured, question generation disabled")
	}
	return b, nil
}

func (b *backends) Close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
	if b.pool != nil {
		b.pool.Close()
	}
}
