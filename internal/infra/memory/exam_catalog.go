package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizdesk-service/internal/domain"
)

// ContentLoader fetches an exam and its questions from the document store.
type ContentLoader interface {
	LoadExamContent(ctx context.Context, examID string) (domain.ExamContent, error)
}

// ExamCatalog caches exam content with TTL to avoid repeated store hits.
type ExamCatalog struct {
	loader ContentLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu    sync.RWMutex
	cache map[string]cachedExam
}

type cachedExam struct {
	content   domain.ExamContent
	expiresAt time.Time
}

func NewExamCatalog(loader ContentLoader, ttl time.Duration) *ExamCatalog {
	return &ExamCatalog{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		cache:  make(map[string]cachedExam),
	}
}

func (c *ExamCatalog) GetExamContent(ctx context.Context, examID string) (domain.ExamContent, error) {
	if content, ok := c.cached(examID); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		if content, ok := c.cached(examID); ok {
			return content, nil
		}

		content, err := c.loader.LoadExamContent(ctx, examID)
		if err != nil {
			return domain.ExamContent{}, err
		}

		c.mu.Lock()
		c.cache[examID] = cachedExam{
			content:   content,
			expiresAt: c.clock().Add(c.ttlWithJitter()),
		}
		c.mu.Unlock()
		return content, nil
	})
	if err != nil {
		return domain.ExamContent{}, err
	}
	return result.(domain.ExamContent), nil
}

// Invalidate drops the cached copy so the next read reloads it.
func (c *ExamCatalog) Invalidate(_ context.Context, examID string) {
	c.sf.Forget(examID)
	c.mu.Lock()
	delete(c.cache, examID)
	c.mu.Unlock()
}

func (c *ExamCatalog) cached(examID string) (domain.ExamContent, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.cache[examID]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.ExamContent{}, false
	}
	return entry.content, true
}

func (c *ExamCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
