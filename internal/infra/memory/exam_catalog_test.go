package memory

import (
	"context"
	"testing"
	"time"

	"quizdesk-service/internal/domain"
)

func TestExamCatalogCaches(t *testing.T) {
	store := seededStore(t)
	loader := &countingLoader{ContentLoader: store}
	catalog := NewExamCatalog(loader, time.Minute)

	if _, err := catalog.GetExamContent(context.Background(), "exam-1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader once, got %d", loader.calls)
	}

	content, err := catalog.GetExamContent(context.Background(), "exam-1")
	if err != nil {
		t.Fatalf("get exam 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls %d", loader.calls)
	}
	if len(content.Questions) != 2 || content.Questions[0].ID != "q1" {
		t.Fatalf("unexpected content: %+v", content.Questions)
	}
}

func TestExamCatalogInvalidateReloads(t *testing.T) {
	store := seededStore(t)
	loader := &countingLoader{ContentLoader: store}
	catalog := NewExamCatalog(loader, time.Minute)
	ctx := context.Background()

	if _, err := catalog.GetExamContent(ctx, "exam-1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	if err := store.DeleteQuestion(ctx, "exam-1", "q2"); err != nil {
		t.Fatalf("delete question: %v", err)
	}
	catalog.Invalidate(ctx, "exam-1")

	content, err := catalog.GetExamContent(ctx, "exam-1")
	if err != nil {
		t.Fatalf("get exam after invalidate: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload, loader calls %d", loader.calls)
	}
	if len(content.Questions) != 1 {
		t.Fatalf("expected 1 question after delete, got %d", len(content.Questions))
	}
}

func TestExamCatalogExpires(t *testing.T) {
	store := seededStore(t)
	loader := &countingLoader{ContentLoader: store}
	catalog := NewExamCatalog(loader, time.Minute)
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	catalog.clock = func() time.Time { return now }

	if _, err := catalog.GetExamContent(context.Background(), "exam-1"); err != nil {
		t.Fatalf("get exam: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := catalog.GetExamContent(context.Background(), "exam-1"); err != nil {
		t.Fatalf("get exam after ttl: %v", err)
	}
	if loader.calls != 2 {
		t.Fatalf("expected reload after ttl, loader calls %d", loader.calls)
	}
}

func TestExamCatalogPropagatesNotFound(t *testing.T) {
	catalog := NewExamCatalog(NewStore(), time.Minute)
	if _, err := catalog.GetExamContent(context.Background(), "missing"); err != domain.ErrExamNotFound {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

type countingLoader struct {
	ContentLoader
	calls int
}

func (l *countingLoader) LoadExamContent(ctx context.Context, examID string) (domain.ExamContent, error) {
	l.calls++
	return l.ContentLoader.LoadExamContent(ctx, examID)
}

func seededStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store := NewStore()
	exam := domain.Exam{
		ID:           "exam-1",
		Title:        "Arithmetic",
		Difficulty:   domain.DifficultyEasy,
		TimerMinutes: 5,
		TeacherID:    "t1",
		CreatedAt:    time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	if err := store.CreateExam(ctx, exam); err != nil {
		t.Fatalf("create exam: %v", err)
	}
	for _, q := range []domain.Question{
		{ID: "q1", Text: "2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4"},
		{ID: "q2", Text: "3 * 3?", Options: []string{"6", "9"}, CorrectAnswer: "9"},
	} {
		if err := store.PutQuestion(ctx, exam.ID, q); err != nil {
			t.Fatalf("put question: %v", err)
		}
	}
	return store
}
