package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizdesk-service/internal/domain"
)

// ContentLoader fetches exam content from the system of record.
type ContentLoader interface {
	LoadExamContent(ctx context.Context, examID string) (domain.ExamContent, error)
}

// ExamCatalog caches exam content in Redis as one JSON document per exam and
// falls back to the loader on a miss:
//
//	SET quizdesk:exam:{examID}:content {json} EX ttl+jitter
//
// Concurrent misses for the same exam share one load.
type ExamCatalog struct {
	client *redis.Client
	loader ContentLoader
	ttl    time.Duration
	sf     singleflight.Group

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewExamCatalog(client *redis.Client, loader ContentLoader, ttl time.Duration) *ExamCatalog {
	return &ExamCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *ExamCatalog) GetExamContent(ctx context.Context, examID string) (domain.ExamContent, error) {
	if content, ok := c.cached(ctx, examID); ok {
		return content, nil
	}

	result, err, _ := c.sf.Do(examID, func() (interface{}, error) {
		// Re-check cache in case another caller filled it.
		if content, ok := c.cached(ctx, examID); ok {
			return content, nil
		}
		content, err := c.loader.LoadExamContent(ctx, examID)
		if err != nil {
			return domain.ExamContent{}, err
		}
		if data, err := json.Marshal(content); err == nil {
			// Best effort: a failed write only costs a reload.
			_ = c.client.Set(ctx, c.contentKey(examID), data, c.ttlWithJitter()).Err()
		}
		return content, nil
	})
	if err != nil {
		return domain.ExamContent{}, err
	}
	return result.(domain.ExamContent), nil
}

// Invalidate drops the cached document so the next read reloads it.
func (c *ExamCatalog) Invalidate(ctx context.Context, examID string) {
	c.sf.Forget(examID)
	_ = c.client.Del(ctx, c.contentKey(examID)).Err()
}

func (c *ExamCatalog) cached(ctx context.Context, examID string) (domain.ExamContent, bool) {
	data, err := c.client.Get(ctx, c.contentKey(examID)).Bytes()
	if err != nil {
		return domain.ExamContent{}, false
	}
	var content domain.ExamContent
	if err := json.Unmarshal(data, &content); err != nil {
		return domain.ExamContent{}, false
	}
	return content, true
}

func (c *ExamCatalog) contentKey(examID string) string {
	return "quizdesk:exam:" + examID + ":content"
}

func (c *ExamCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
