package app

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
)

// ExamSessionService starts and resumes exam sessions and exposes student results.
type ExamSessionService struct {
	catalog  ExamCatalog
	results  ResultStore
	sessions SessionRepository
	cfg      SessionConfig
}

func NewExamSessionService(catalog ExamCatalog, results ResultStore, sessions SessionRepository, cfg SessionConfig) *ExamSessionService {
	svc := &ExamSessionService{catalog: catalog, results: results, sessions: sessions}
	cfg.Results = results
	userHook := cfg.OnFinish
	cfg.OnFinish = func(s *Session) {
		sessions.Delete(s.Key())
		if userHook != nil {
			userHook(s)
		}
	}
	cfg.setDefaults()
	svc.cfg = cfg
	return svc
}

// Start opens the caller's session for examID. A live session is resumed with
// its running countdown; an already completed exam short-circuits to a
// Finished session carrying the stored result.
func (s *ExamSessionService) Start(ctx context.Context, p domain.Principal, examID string) (*Session, error) {
	if err := p.Require(domain.CapTakeExams); err != nil {
		return nil, err
	}
	key := SessionKey{ExamID: examID, StudentID: p.UserID}
	if live, ok := s.sessions.Get(key); ok {
		return live, nil
	}

	existing, err := s.ownResult(ctx, p, examID)
	switch {
	case err == nil:
		return NewFinishedSession(existing, s.cfg), nil
	case !errors.Is(err, domain.ErrResultNotFound):
		return nil, domain.Wrap(domain.KindPersistence, "check completion", err)
	}

	session := NewSession(key, s.cfg)
	content, err := s.catalog.GetExamContent(ctx, examID)
	if err != nil {
		return nil, err
	}
	if err := session.Load(content); err != nil {
		return nil, err
	}

	if live, loaded := s.sessions.PutIfAbsent(session); loaded {
		return live, nil
	}
	if err := session.Begin(); err != nil {
		s.sessions.Delete(key)
		return nil, err
	}
	s.cfg.Metrics.SessionStarted()
	s.cfg.Logger.Info("exam session started",
		zap.String("exam", examID),
		zap.String("student", p.UserID),
		zap.Int("questions", len(content.Questions)),
		zap.Int("seconds", content.Exam.TimeLimit()))
	return session, nil
}

// Live returns the caller's in-flight session for examID.
func (s *ExamSessionService) Live(_ context.Context, p domain.Principal, examID string) (*Session, error) {
	if err := p.Require(domain.CapTakeExams); err != nil {
		return nil, err
	}
	session, ok := s.sessions.Get(SessionKey{ExamID: examID, StudentID: p.UserID})
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// Result returns the caller's stored result for examID.
func (s *ExamSessionService) Result(ctx context.Context, p domain.Principal, examID string) (domain.ExamResult, error) {
	if err := p.Require(domain.CapViewOwnResult); err != nil {
		return domain.ExamResult{}, err
	}
	return s.ownResult(ctx, p, examID)
}

// Results lists every result of the caller.
func (s *ExamSessionService) Results(ctx context.Context, p domain.Principal) ([]domain.ExamResult, error) {
	if err := p.Require(domain.CapViewOwnResult); err != nil {
		return nil, err
	}
	all := make([]domain.ExamResult, 0)
	seen := make(map[string]struct{})
	for _, id := range studentKeys(p) {
		results, err := s.results.ListResultsByStudent(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, r := range results {
			if _, dup := seen[r.ExamID]; dup {
				continue
			}
			seen[r.ExamID] = struct{}{}
			all = append(all, r)
		}
	}
	return all, nil
}

// ownResult finds the caller's result under the current key or, for tokens
// issued before a rekey, under the national identifier.
func (s *ExamSessionService) ownResult(ctx context.Context, p domain.Principal, examID string) (domain.ExamResult, error) {
	for _, id := range studentKeys(p) {
		r, err := s.results.GetResult(ctx, examID, id)
		if !errors.Is(err, domain.ErrResultNotFound) {
			return r, err
		}
	}
	return domain.ExamResult{}, domain.ErrResultNotFound
}

// studentKeys lists every ID the caller's results may be stored under.
func studentKeys(p domain.Principal) []string {
	if p.NationalID == "" || p.NationalID == p.UserID {
		return []string{p.UserID}
	}
	return []string{p.UserID, p.NationalID}
}
