package memory

import (
	"context"
	"testing"
	"time"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/domain"
)

func TestStoreResultIsCreatedOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	r := domain.ExamResult{ExamID: "exam-1", StudentID: "s1", Score: 50, Answers: map[string]string{"q1": "4"}}

	if err := store.CreateResult(ctx, r); err != nil {
		t.Fatalf("create result: %v", err)
	}
	r.Score = 100
	if err := store.CreateResult(ctx, r); err != domain.ErrResultExists {
		t.Fatalf("expected ErrResultExists, got %v", err)
	}
	got, err := store.GetResult(ctx, "exam-1", "s1")
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if got.Score != 50 || got.ID != app.ResultID("exam-1", "s1") {
		t.Fatalf("expected original result, got %+v", got)
	}
}

func TestStoreListsResultsByScope(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	for i, r := range []domain.ExamResult{
		{ExamID: "exam-1", StudentID: "s1"},
		{ExamID: "exam-1", StudentID: "s2"},
		{ExamID: "exam-2", StudentID: "s1"},
	} {
		r.SubmittedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateResult(ctx, r); err != nil {
			t.Fatalf("create result: %v", err)
		}
	}

	byExam, _ := store.ListResultsByExam(ctx, "exam-1")
	if len(byExam) != 2 {
		t.Fatalf("expected 2 results for exam-1, got %d", len(byExam))
	}
	byStudent, _ := store.ListResultsByStudent(ctx, "s1")
	if len(byStudent) != 2 {
		t.Fatalf("expected 2 results for s1, got %d", len(byStudent))
	}
	all, _ := store.ListResults(ctx)
	if len(all) != 3 {
		t.Fatalf("expected 3 results, got %d", len(all))
	}
}

func TestStoreQuestionsKeepInsertionOrder(t *testing.T) {
	store := seededStore(t)
	ctx := context.Background()

	updated := domain.Question{ID: "q1", Text: "2 + 2 = ?", Options: []string{"4", "5"}, CorrectAnswer: "4"}
	if err := store.PutQuestion(ctx, "exam-1", updated); err != nil {
		t.Fatalf("update question: %v", err)
	}
	questions, err := store.ListQuestions(ctx, "exam-1")
	if err != nil {
		t.Fatalf("list questions: %v", err)
	}
	if len(questions) != 2 || questions[0].ID != "q1" || questions[0].Text != "2 + 2 = ?" || questions[1].ID != "q2" {
		t.Fatalf("unexpected order: %+v", questions)
	}
}

func TestUserBatchAppliesOnlyOnCommit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.PutUser(ctx, domain.User{ID: "uid-a", NationalID: "111", Role: domain.RoleStudent})

	batch, err := store.BeginUserBatch(ctx)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := batch.Put(ctx, domain.User{ID: "111", NationalID: "111", Role: domain.RoleStudent}); err != nil {
		t.Fatalf("stage put: %v", err)
	}
	if err := batch.Delete(ctx, "uid-a"); err != nil {
		t.Fatalf("stage delete: %v", err)
	}
	if _, err := store.GetUser(ctx, "111"); err != domain.ErrUserNotFound {
		t.Fatalf("expected staged write invisible before commit, got %v", err)
	}

	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := store.GetUser(ctx, "111"); err != nil {
		t.Fatalf("expected moved user, got %v", err)
	}
	if _, err := store.GetUser(ctx, "uid-a"); err != domain.ErrUserNotFound {
		t.Fatalf("expected old key removed, got %v", err)
	}
}

func TestUserBatchRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	batch, _ := store.BeginUserBatch(ctx)
	_ = batch.Put(ctx, domain.User{ID: "111"})
	if err := batch.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if err := batch.Commit(ctx); err == nil {
		t.Fatalf("expected commit after rollback to fail")
	}
	if users, _ := store.ListUsers(ctx); len(users) != 0 {
		t.Fatalf("expected no users, got %+v", users)
	}
}

func TestUserBatchReassignMovesResultsAndCredential(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.PutCredential(ctx, domain.Credential{UserID: "uid-a", Identifier: "111@quizdesk.local", PasswordHash: "h"})
	for _, examID := range []string{"e1", "e2"} {
		if err := store.CreateResult(ctx, domain.ExamResult{ExamID: examID, StudentID: "uid-a", Score: 50}); err != nil {
			t.Fatalf("create result: %v", err)
		}
	}
	_ = store.CreateResult(ctx, domain.ExamResult{ExamID: "e1", StudentID: "uid-b", Score: 70})

	batch, _ := store.BeginUserBatch(ctx)
	if err := batch.Reassign(ctx, "uid-a", "111"); err != nil {
		t.Fatalf("stage reassign: %v", err)
	}
	if _, err := store.GetResult(ctx, "e1", "111"); err != domain.ErrResultNotFound {
		t.Fatalf("expected reassignment invisible before commit, got %v", err)
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	moved, err := store.ListResultsByStudent(ctx, "111")
	if err != nil || len(moved) != 2 {
		t.Fatalf("expected two moved results, got %+v %v", moved, err)
	}
	for _, r := range moved {
		if r.ID != "111:"+r.ExamID {
			t.Fatalf("result id should follow the new owner, got %q", r.ID)
		}
	}
	if left, _ := store.ListResultsByStudent(ctx, "uid-a"); len(left) != 0 {
		t.Fatalf("expected no results under the old id, got %+v", left)
	}
	if other, _ := store.ListResultsByStudent(ctx, "uid-b"); len(other) != 1 {
		t.Fatalf("other students must be untouched, got %+v", other)
	}
	cred, err := store.CredentialByIdentifier(ctx, "111@quizdesk.local")
	if err != nil || cred.UserID != "111" {
		t.Fatalf("credential should follow the new owner, got %+v %v", cred, err)
	}
	if err := store.CreateResult(ctx, domain.ExamResult{ExamID: "e1", StudentID: "111"}); err != domain.ErrResultExists {
		t.Fatalf("moved result must still block a second submission, got %v", err)
	}
}
