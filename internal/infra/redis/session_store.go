package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"quizdesk-service/internal/app"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in a local map so the in-process countdown and broadcast keep
// working; Redis holds a liveness marker per (exam, student) so operators and
// other instances can see who is mid-exam.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[app.SessionKey]*app.Session),
	}
}

func (s *SessionStore) PutIfAbsent(session *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if live, ok := s.sessions[session.Key()]; ok {
		return live, true
	}
	s.sessions[session.Key()] = session
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(session.Key()), time.Now().UTC().Format(time.RFC3339), s.markerTTL(session)).Err()
	return session, false
}

// Get also refreshes the marker of a resumed session.
func (s *SessionStore) Get(key app.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[key]
	s.mu.RUnlock()
	if ok {
		_ = s.client.Expire(context.Background(), s.key(key), s.markerTTL(session)).Err()
	}
	return session, ok
}

// markerGrace covers submission after the countdown reaches zero.
const markerGrace = 5 * time.Minute

// markerTTL keeps the marker alive for at least the session's remaining time.
func (s *SessionStore) markerTTL(session *app.Session) time.Duration {
	remaining := time.Duration(session.Snapshot().Remaining)*time.Second + markerGrace
	if remaining > s.ttl {
		return remaining
	}
	return s.ttl
}

func (s *SessionStore) Delete(key app.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[key]; !ok {
		return
	}
	delete(s.sessions, key)
	_ = s.client.Del(context.Background(), s.key(key)).Err()
}

// CloseAll stops every live countdown and clears the markers, e.g. on shutdown.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[app.SessionKey]*app.Session)
	s.mu.Unlock()

	keys := make([]string, 0, len(sessions))
	for key, session := range sessions {
		session.Close()
		keys = append(keys, s.key(key))
	}
	if len(keys) > 0 {
		_ = s.client.Del(context.Background(), keys...).Err()
	}
}

func (s *SessionStore) key(key app.SessionKey) string {
	return "quizdesk:session:" + key.ExamID + ":" + key.StudentID
}
