package memory

import (
	"bytes"
	"context"
	"io"
	"sync"
)

// ImageStore keeps uploaded images in memory, for tests and local runs.
type ImageStore struct {
	mu     sync.RWMutex
	images map[string][]byte
}

func NewImageStore() *ImageStore {
	return &ImageStore{images: make(map[string][]byte)}
}

func (s *ImageStore) PutImage(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.images[key] = buf.Bytes()
	s.mu.Unlock()
	return "mem://" + key, nil
}

// Image returns the stored bytes for key.
func (s *ImageStore) Image(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.images[key]
	return b, ok
}
