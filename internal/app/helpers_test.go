package app_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/infra/memory"
)

var (
	teacher = domain.Principal{UserID: "t1", Role: domain.RoleTeacher}
	student = domain.Principal{UserID: "s1", Role: domain.RoleStudent}
	baseNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
)

// manualScheduler fires scheduled tasks only when the test calls Tick.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []*scheduledTask
}

type scheduledTask struct {
	fn      func()
	stopped bool
}

func (m *manualScheduler) Every(_ time.Duration, fn func()) func() {
	m.mu.Lock()
	task := &scheduledTask{fn: fn}
	m.tasks = append(m.tasks, task)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		task.stopped = true
		m.mu.Unlock()
	}
}

// Tick fires every active task n times.
func (m *manualScheduler) Tick(n int) {
	for i := 0; i < n; i++ {
		m.mu.Lock()
		active := make([]func(), 0, len(m.tasks))
		for _, task := range m.tasks {
			if !task.stopped {
				active = append(active, task.fn)
			}
		}
		m.mu.Unlock()
		for _, fn := range active {
			fn()
		}
	}
}

// Active counts tasks that have not been stopped.
func (m *manualScheduler) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, task := range m.tasks {
		if !task.stopped {
			n++
		}
	}
	return n
}

// scriptedResults wraps a ResultStore, counting creates and optionally failing
// or blocking them.
type scriptedResults struct {
	app.ResultStore

	mu       sync.Mutex
	creates  int
	failures int
	entered  chan struct{}
	release  chan struct{}
}

func (r *scriptedResults) CreateResult(ctx context.Context, result domain.ExamResult) error {
	r.mu.Lock()
	r.creates++
	fail := r.failures > 0
	if fail {
		r.failures--
	}
	entered, release := r.entered, r.release
	r.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if release != nil {
		<-release
	}
	if fail {
		return errStorageDown
	}
	return r.ResultStore.CreateResult(ctx, result)
}

func (r *scriptedResults) Creates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.creates
}

type storageError struct{}

func (storageError) Error() string { return "storage unavailable" }

var errStorageDown error = storageError{}

type sessionFixture struct {
	store    *memory.Store
	results  *scriptedResults
	sched    *manualScheduler
	sessions *memory.SessionStore
	service  *app.ExamSessionService
}

func newSessionFixture(t *testing.T, questions int) *sessionFixture {
	t.Helper()
	store := memory.NewStore()
	seedExam(t, store, "exam-1", questions)
	f := &sessionFixture{
		store:    store,
		results:  &scriptedResults{ResultStore: store},
		sched:    &manualScheduler{},
		sessions: memory.NewSessionStore(),
	}
	f.service = app.NewExamSessionService(
		memory.NewExamCatalog(store, time.Minute),
		f.results,
		f.sessions,
		app.SessionConfig{
			Scheduler: f.sched,
			Clock:     func() time.Time { return baseNow },
		},
	)
	return f
}

// seedExam stores a one-minute exam whose question i has correct answer "a<i>".
func seedExam(t *testing.T, store *memory.Store, examID string, questions int) {
	t.Helper()
	ctx := context.Background()
	err := store.CreateExam(ctx, domain.Exam{
		ID:           examID,
		Title:        "Exam " + examID,
		Difficulty:   domain.DifficultyMedium,
		TimerMinutes: 1,
		TeacherID:    teacher.UserID,
		CreatedAt:    baseNow,
	})
	if err != nil {
		t.Fatalf("create exam: %v", err)
	}
	for i := 0; i < questions; i++ {
		q := domain.Question{
			ID:            questionID(i),
			Text:          "Question " + questionID(i),
			Options:       []string{"a" + questionID(i), "b" + questionID(i)},
			CorrectAnswer: "a" + questionID(i),
		}
		if err := store.PutQuestion(ctx, examID, q); err != nil {
			t.Fatalf("put question: %v", err)
		}
	}
}

func questionID(i int) string {
	return "q" + string(rune('1'+i))
}
