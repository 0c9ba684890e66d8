package memory

import (
	"sync"

	"quizdesk-service/internal/app"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[app.SessionKey]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[app.SessionKey]*app.Session),
	}
}

func (s *SessionStore) PutIfAbsent(session *app.Session) (*app.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.Key()]; ok {
		return existing, true
	}
	s.sessions[session.Key()] = session
	return session, false
}

func (s *SessionStore) Get(key app.SessionKey) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[key]
	return session, ok
}

func (s *SessionStore) Delete(key app.SessionKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
}

// CloseAll releases every live session's countdown, e.g. on shutdown.
func (s *SessionStore) CloseAll() {
	s.mu.Lock()
	sessions := make([]*app.Session, 0, len(s.sessions))
	for key, session := range s.sessions {
		sessions = append(sessions, session)
		delete(s.sessions, key)
	}
	s.mu.Unlock()
	for _, session := range sessions {
		session.Close()
	}
}
