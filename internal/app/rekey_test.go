package app_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/infra/memory"
)

func seedUsers(t *testing.T, store *memory.Store, users ...domain.User) {
	t.Helper()
	for _, u := range users {
		if err := store.PutUser(context.Background(), u); err != nil {
			t.Fatalf("put user %s: %v", u.ID, err)
		}
	}
}

func TestRekeyMovesUsersToNationalID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store,
		domain.User{ID: "idA", NationalID: "111", FirstName: "A", Role: domain.RoleStudent},
		domain.User{ID: "idB", NationalID: "222", FirstName: "B", Role: domain.RoleTeacher},
	)

	report, err := app.NewUserRekeyer(store, nil, nil).Run(ctx, app.RekeyOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !report.Committed || len(report.Plan.Moves) != 2 {
		t.Fatalf("expected two committed moves, got %+v", report)
	}

	users, _ := store.ListUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("expected exactly two records, got %d", len(users))
	}
	for _, id := range []string{"idA", "idB"} {
		if _, err := store.GetUser(ctx, id); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("old key %s should be gone, got %v", id, err)
		}
	}
	a, err := store.GetUser(ctx, "111")
	if err != nil || a.FirstName != "A" || a.Role != domain.RoleStudent {
		t.Fatalf("expected A under 111, got %+v err %v", a, err)
	}
	b, err := store.GetUser(ctx, "222")
	if err != nil || b.FirstName != "B" || b.Role != domain.RoleTeacher {
		t.Fatalf("expected B under 222, got %+v err %v", b, err)
	}

	// A second run finds nothing to move.
	again, err := app.NewUserRekeyer(store, nil, nil).Run(ctx, app.RekeyOptions{Confirmed: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(again.Plan.Moves) != 0 || len(again.Plan.Skipped) != 2 {
		t.Fatalf("expected idempotent second run, got %+v", again.Plan)
	}
}

func TestRekeySkipsUnmovableRecords(t *testing.T) {
	store := memory.NewStore()
	seedUsers(t, store,
		domain.User{ID: "none", FirstName: "NoID"},
		domain.User{ID: "333", NationalID: "333"},
		domain.User{ID: "dupA", NationalID: "444"},
		domain.User{ID: "dupB", NationalID: "444"},
		domain.User{ID: "taken", NationalID: "333"},
	)

	plan, err := app.NewUserRekeyer(store, nil, nil).Plan(context.Background())
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan.Moves) != 0 {
		t.Fatalf("expected no moves, got %+v", plan.Moves)
	}
	if len(plan.Skipped) != 5 {
		t.Fatalf("expected all five skipped, got %+v", plan.Skipped)
	}
}

func TestRekeyDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store, domain.User{ID: "idA", NationalID: "111"})

	report, err := app.NewUserRekeyer(store, nil, nil).Run(ctx, app.RekeyOptions{DryRun: true, Confirmed: true})
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if report.Committed || len(report.Plan.Moves) != 1 {
		t.Fatalf("expected planned but uncommitted move, got %+v", report)
	}
	if _, err := store.GetUser(ctx, "idA"); err != nil {
		t.Fatalf("dry run must not touch records: %v", err)
	}
}

func TestRekeyRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store, domain.User{ID: "idA", NationalID: "111"})

	_, err := app.NewUserRekeyer(store, nil, nil).Run(ctx, app.RekeyOptions{})
	if !errors.Is(err, domain.ErrConfirmationRequired) {
		t.Fatalf("expected ErrConfirmationRequired, got %v", err)
	}
	if _, err := store.GetUser(ctx, "idA"); err != nil {
		t.Fatalf("unconfirmed run must not touch records: %v", err)
	}
}

// failingBatchUsers fails the n-th staged write of any batch.
type failingBatchUsers struct {
	*memory.Store
	failAt int
}

func (f *failingBatchUsers) BeginUserBatch(ctx context.Context) (app.UserBatch, error) {
	inner, err := f.Store.BeginUserBatch(ctx)
	if err != nil {
		return nil, err
	}
	return &failingBatch{UserBatch: inner, failAt: f.failAt}, nil
}

type failingBatch struct {
	app.UserBatch
	failAt int
	writes int
}

func (b *failingBatch) Put(ctx context.Context, u domain.User) error {
	b.writes++
	if b.writes == b.failAt {
		return errStorageDown
	}
	return b.UserBatch.Put(ctx, u)
}

func TestRekeyStagingFailureLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store,
		domain.User{ID: "idA", NationalID: "111"},
		domain.User{ID: "idB", NationalID: "222"},
	)

	_, err := app.NewUserRekeyer(&failingBatchUsers{Store: store, failAt: 2}, nil, nil).
		Run(ctx, app.RekeyOptions{Confirmed: true})
	if domain.KindOf(err) != domain.KindPersistence {
		t.Fatalf("expected persistence error, got %v", err)
	}

	users, _ := store.ListUsers(ctx)
	if len(users) != 2 {
		t.Fatalf("expected two records, got %d", len(users))
	}
	for _, id := range []string{"idA", "idB"} {
		if _, err := store.GetUser(ctx, id); err != nil {
			t.Fatalf("record %s should be untouched: %v", id, err)
		}
	}
	for _, id := range []string{"111", "222"} {
		if _, err := store.GetUser(ctx, id); !errors.Is(err, domain.ErrUserNotFound) {
			t.Fatalf("no record should exist under %s, got %v", id, err)
		}
	}
}

func TestRekeyKeepsCompletedExamsAndLogin(t *testing.T) {
	ctx := context.Background()
	f := newSessionFixture(t, 1)
	users := app.NewUserService(f.store, auth.NewCredentials(f.store, bcrypt.MinCost), "", nil)
	if _, err := users.Register(ctx, registerInput("1111")); err != nil {
		t.Fatalf("register: %v", err)
	}
	before, _, err := users.Login(ctx, "1111", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	session, err := f.service.Start(ctx, before, "exam-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := session.SelectAnswer("q1", "aq1"); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := session.Finish(ctx); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if _, err := app.NewUserRekeyer(f.store, nil, nil).Run(ctx, app.RekeyOptions{Confirmed: true}); err != nil {
		t.Fatalf("rekey: %v", err)
	}

	after, _, err := users.Login(ctx, "1111", "secret1")
	if err != nil {
		t.Fatalf("login after rekey: %v", err)
	}
	if after.UserID != "1111" {
		t.Fatalf("expected principal keyed by national id, got %q", after.UserID)
	}
	for name, p := range map[string]domain.Principal{"fresh token": after, "token from before the rekey": before} {
		again, err := f.service.Start(ctx, p, "exam-1")
		if err != nil {
			t.Fatalf("%s: start again: %v", name, err)
		}
		if again.State() != app.StateFinished {
			t.Fatalf("%s: completed exam must not restart, got %s", name, again.State())
		}
	}
	if f.sched.Active() != 0 {
		t.Fatalf("no countdown should run after the rekey")
	}

	result, err := f.service.Result(ctx, after, "exam-1")
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if result.StudentID != "1111" || result.Score != 100 {
		t.Fatalf("result should follow its owner, got %+v", result)
	}
	if history, _ := f.service.Results(ctx, after); len(history) != 1 {
		t.Fatalf("expected one result in history, got %d", len(history))
	}
	standing, err := app.NewRankingService(f.store, f.store, f.store).Standing(ctx, after, "exam-1", 0)
	if err != nil || standing.Rank != 1 {
		t.Fatalf("standing after rekey: %+v %v", standing, err)
	}
	if _, err := f.store.CredentialByUser(ctx, before.UserID); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("credential should leave the opaque id, got %v", err)
	}
}

func TestRekeyStagingFailureKeepsResultsWithOwner(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seedUsers(t, store, domain.User{ID: "idA", NationalID: "111"}, domain.User{ID: "idB", NationalID: "222"})
	if err := store.CreateResult(ctx, domain.ExamResult{ExamID: "e1", StudentID: "idA", Score: 80}); err != nil {
		t.Fatalf("create result: %v", err)
	}

	_, err := app.NewUserRekeyer(&failingBatchUsers{Store: store, failAt: 2}, nil, nil).
		Run(ctx, app.RekeyOptions{Confirmed: true})
	if err == nil {
		t.Fatalf("expected staging failure")
	}
	if _, err := store.GetResult(ctx, "e1", "idA"); err != nil {
		t.Fatalf("result must stay under its original owner: %v", err)
	}
	if _, err := store.GetResult(ctx, "e1", "111"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("no result should move, got %v", err)
	}
}
