package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/metrics"
)

// SessionState is a step of the exam-taking lifecycle.
type SessionState string

const (
	StateLoading    SessionState = "loading"
	StateInProgress SessionState = "in_progress"
	StateSubmitting SessionState = "submitting"
	StateFinished   SessionState = "finished"
	// StateUnavailable is terminal: the exam had no questions to take.
	StateUnavailable SessionState = "unavailable"
)

const (
	triggerFinish  = "finish"
	triggerTimeout = "timeout"
)

// SessionKey identifies the single live attempt of a student at an exam.
type SessionKey struct {
	ExamID    string
	StudentID string
}

func (k SessionKey) String() string {
	return k.ExamID + ":" + k.StudentID
}

// QuestionView is a question as shown to the student, without the answer.
type QuestionView struct {
	ID      string   `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Image   string   `json:"image,omitempty"`
}

// SessionSnapshot is a point-in-time copy of a session for transport.
type SessionSnapshot struct {
	ExamID    string             `json:"examId"`
	StudentID string             `json:"studentId"`
	Title     string             `json:"title,omitempty"`
	State     SessionState       `json:"state"`
	Index     int                `json:"index"`
	Total     int                `json:"total"`
	Question  *QuestionView      `json:"question,omitempty"`
	Answers   map[string]string  `json:"answers"`
	Remaining int                `json:"remaining"`
	Expired   bool               `json:"expired"`
	Result    *domain.ExamResult `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// SessionConfig carries the collaborators of a session.
type SessionConfig struct {
	Results       ResultStore
	Scorer        Scorer
	Scheduler     Scheduler
	Tick          time.Duration
	SubmitTimeout time.Duration
	Clock         func() time.Time
	Logger        *zap.Logger
	Metrics       *metrics.Metrics

	// OnFinish runs once, after the result has been persisted.
	OnFinish func(*Session)
}

func (c *SessionConfig) setDefaults() {
	if c.Scheduler == nil {
		c.Scheduler = TickerScheduler{}
	}
	if c.Tick <= 0 {
		c.Tick = time.Second
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = 15 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Scorer.now == nil {
		c.Scorer = NewScorer(c.Clock)
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// Session is one student's attempt at one exam, from load to submission.
type Session struct {
	key SessionKey
	cfg SessionConfig

	mu            sync.RWMutex
	state         SessionState
	exam          domain.Exam
	questions     []domain.Question
	index         int
	answers       map[string]string
	remaining     int
	expired       bool
	countdown     *Countdown
	submitStarted time.Time
	result        *domain.ExamResult
	lastErr       error
	subscribers   map[chan SessionSnapshot]struct{}
}

// NewSession returns a session in the Loading state.
func NewSession(key SessionKey, cfg SessionConfig) *Session {
	cfg.setDefaults()
	return &Session{
		key:         key,
		cfg:         cfg,
		state:       StateLoading,
		answers:     make(map[string]string),
		subscribers: make(map[chan SessionSnapshot]struct{}),
	}
}

// NewFinishedSession wraps an existing result; no countdown is ever started.
func NewFinishedSession(result domain.ExamResult, cfg SessionConfig) *Session {
	s := NewSession(SessionKey{ExamID: result.ExamID, StudentID: result.StudentID}, cfg)
	s.state = StateFinished
	s.result = &result
	for qid, answer := range result.Answers {
		s.answers[qid] = answer
	}
	return s
}

// Key returns the (exam, student) pair of the session.
func (s *Session) Key() SessionKey {
	return s.key
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Load installs the exam content. A session with no questions becomes Unavailable.
func (s *Session) Load(content domain.ExamContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading {
		return domain.ErrSessionClosed
	}
	s.exam = content.Exam
	if len(content.Questions) == 0 {
		s.state = StateUnavailable
		s.lastErr = domain.ErrNoQuestions
		s.broadcastLocked()
		return domain.ErrNoQuestions
	}
	s.questions = append([]domain.Question(nil), content.Questions...)
	s.remaining = content.Exam.TimeLimit()
	return nil
}

// Begin moves a loaded session to InProgress and starts the countdown.
func (s *Session) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLoading || len(s.questions) == 0 {
		return domain.ErrSessionClosed
	}
	s.state = StateInProgress
	s.startCountdownLocked()
	s.broadcastLocked()
	return nil
}

func (s *Session) startCountdownLocked() {
	s.countdown = StartCountdown(s.cfg.Scheduler, s.cfg.Tick, s.remaining, s.onTick, s.onExpire)
}

func (s *Session) stopCountdownLocked() {
	if s.countdown == nil {
		return
	}
	s.remaining = s.countdown.Stop()
	s.countdown = nil
}

func (s *Session) onTick(c *Countdown, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.countdown != c || s.state != StateInProgress {
		return
	}
	s.remaining = remaining
	s.broadcastLocked()
}

func (s *Session) onExpire(c *Countdown) {
	s.mu.Lock()
	if s.countdown != c || s.state != StateInProgress {
		s.mu.Unlock()
		return
	}
	s.countdown = nil
	s.remaining = 0
	s.expired = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SubmitTimeout)
	defer cancel()
	if _, err := s.submit(ctx, triggerTimeout); err != nil {
		s.cfg.Logger.Warn("timed-out submission failed",
			zap.String("exam", s.key.ExamID),
			zap.String("student", s.key.StudentID),
			zap.Error(err))
	}
}

// SelectAnswer records option as the answer to questionID. Re-selecting the
// same option is a no-op; a different option replaces the previous one.
func (s *Session) SelectAnswer(questionID, option string) (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return s.snapshotLocked(), domain.ErrSessionClosed
	}
	if s.expired {
		return s.snapshotLocked(), domain.ErrTimeExpired
	}
	q := s.questionLocked(questionID)
	if q == nil {
		return s.snapshotLocked(), domain.ErrQuestionNotFound
	}
	if !containsOption(q.Options, option) {
		return s.snapshotLocked(), domain.ErrOptionNotFound
	}
	if s.answers[questionID] == option {
		return s.snapshotLocked(), nil
	}
	s.answers[questionID] = option
	return s.broadcastLocked(), nil
}

// Next moves to the following question, clamped at the last one.
func (s *Session) Next() (SessionSnapshot, error) {
	return s.move(1)
}

// Previous moves to the preceding question, clamped at the first one.
func (s *Session) Previous() (SessionSnapshot, error) {
	return s.move(-1)
}

func (s *Session) move(delta int) (SessionSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInProgress {
		return s.snapshotLocked(), domain.ErrSessionClosed
	}
	target := s.index + delta
	if target < 0 {
		target = 0
	}
	if last := len(s.questions) - 1; target > last {
		target = last
	}
	if target == s.index {
		return s.snapshotLocked(), nil
	}
	s.index = target
	return s.broadcastLocked(), nil
}

// Finish submits the attempt on the student's request. It is only accepted on
// the last question, unless time already ran out and a retry is needed.
func (s *Session) Finish(ctx context.Context) (SessionSnapshot, error) {
	return s.submit(ctx, triggerFinish)
}

// submit is the single submission path for both triggers. The Submitting
// state is the re-entrancy guard: a second caller is rejected until the
// first one resolves.
func (s *Session) submit(ctx context.Context, trigger string) (SessionSnapshot, error) {
	s.mu.Lock()
	switch s.state {
	case StateSubmitting:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, domain.ErrSubmissionInFlight
	case StateInProgress:
	default:
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, domain.ErrSessionClosed
	}
	if trigger == triggerFinish && !s.expired && s.index != len(s.questions)-1 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, domain.ErrNotLastQuestion
	}
	s.stopCountdownLocked()
	s.state = StateSubmitting
	s.submitStarted = s.cfg.Clock()
	questions := s.questions
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	s.broadcastLocked()
	s.mu.Unlock()

	result, err := s.persist(ctx, questions, answers)

	s.mu.Lock()
	if err != nil {
		s.state = StateInProgress
		s.lastErr = err
		if !s.expired {
			elapsed := int(s.cfg.Clock().Sub(s.submitStarted) / time.Second)
			s.remaining -= elapsed
			if s.remaining <= 0 {
				s.remaining = 0
				s.expired = true
			} else {
				s.startCountdownLocked()
			}
		}
		snap := s.broadcastLocked()
		s.mu.Unlock()
		s.cfg.Metrics.Submission(trigger, "failed")
		s.cfg.Logger.Warn("submission failed",
			zap.String("exam", s.key.ExamID),
			zap.String("student", s.key.StudentID),
			zap.String("trigger", trigger),
			zap.Error(err))
		return snap, err
	}
	s.state = StateFinished
	s.result = &result
	s.lastErr = nil
	snap := s.broadcastLocked()
	onFinish := s.cfg.OnFinish
	s.mu.Unlock()

	s.cfg.Metrics.Submission(trigger, "saved")
	s.cfg.Logger.Info("exam submitted",
		zap.String("exam", s.key.ExamID),
		zap.String("student", s.key.StudentID),
		zap.String("trigger", trigger),
		zap.Int("score", result.Score))
	if onFinish != nil {
		onFinish(s)
	}
	return snap, nil
}

func (s *Session) persist(ctx context.Context, questions []domain.Question, answers map[string]string) (domain.ExamResult, error) {
	result, err := s.cfg.Scorer.Score(s.key.ExamID, s.key.StudentID, questions, answers)
	if err != nil {
		return domain.ExamResult{}, err
	}
	err = s.cfg.Results.CreateResult(ctx, result)
	if errors.Is(err, domain.ErrResultExists) {
		// Another attempt already stored the result; surface that one.
		return s.cfg.Results.GetResult(ctx, s.key.ExamID, s.key.StudentID)
	}
	if err != nil {
		if domain.KindOf(err) == domain.KindInternal {
			err = domain.Wrap(domain.KindPersistence, "save result", err)
		}
		return domain.ExamResult{}, err
	}
	return result, nil
}

// Close releases the countdown and all subscribers without submitting.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopCountdownLocked()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}

// Result returns the persisted result once the session is finished.
func (s *Session) Result() (domain.ExamResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.result == nil {
		return domain.ExamResult{}, false
	}
	return *s.result, true
}

// Snapshot returns the current view of the session.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot on every change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan SessionSnapshot, func()) {
	ch := make(chan SessionSnapshot, 8)

	// The buffer is empty, so the first send cannot block while holding the lock.
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() SessionSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest pending snapshot so a slow reader never blocks the session.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() SessionSnapshot {
	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	snap := SessionSnapshot{
		ExamID:    s.key.ExamID,
		StudentID: s.key.StudentID,
		Title:     s.exam.Title,
		State:     s.state,
		Index:     s.index,
		Total:     len(s.questions),
		Answers:   answers,
		Remaining: s.remaining,
		Expired:   s.expired,
	}
	if s.result != nil {
		result := *s.result
		snap.Result = &result
		snap.Total = result.TotalQuestions
	}
	if s.lastErr != nil {
		snap.Error = s.lastErr.Error()
	}
	if s.state == StateInProgress || s.state == StateSubmitting {
		q := s.questions[s.index]
		snap.Question = &QuestionView{
			ID:      q.ID,
			Text:    q.Text,
			Options: append([]string(nil), q.Options...),
			Image:   q.Image,
		}
	}
	return snap
}

func (s *Session) questionLocked(questionID string) *domain.Question {
	for i := range s.questions {
		if s.questions[i].ID == questionID {
			return &s.questions[i]
		}
	}
	return nil
}

func containsOption(options []string, option string) bool {
	for _, opt := range options {
		if opt == option {
			return true
		}
	}
	return false
}
