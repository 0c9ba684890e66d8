package app

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"quizdesk-service/internal/domain"
	"quizdesk-service/internal/metrics"
)

// RekeyMove moves one user record from an opaque ID to its national ID.
type RekeyMove struct {
	From string      `json:"from"`
	To   string      `json:"to"`
	User domain.User `json:"user"`
}

// RekeySkip is a record the job leaves untouched.
type RekeySkip struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

const (
	skipNoNationalID = "missing national identifier"
	skipAlreadyKeyed = "already keyed by national identifier"
	skipKeyInUse     = "national identifier already used by another record"
)

// RekeyPlan lists what a run would do.
type RekeyPlan struct {
	Moves   []RekeyMove `json:"moves"`
	Skipped []RekeySkip `json:"skipped"`
}

// RekeyOptions controls a run. Nothing is written unless Confirmed is set and DryRun is not.
type RekeyOptions struct {
	DryRun    bool
	Confirmed bool
}

// RekeyReport describes a finished run.
type RekeyReport struct {
	Plan      RekeyPlan `json:"plan"`
	Committed bool      `json:"committed"`
}

// UserRekeyer re-keys user records from opaque IDs to national identifiers in
// one atomic batch. Credentials and exam results follow their owner. It is destructive and irreversible and assumes no
// concurrent writers to the user collection.
type UserRekeyer struct {
	users   UserStore
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewUserRekeyer(users UserStore, log *zap.Logger, m *metrics.Metrics) *UserRekeyer {
	if log == nil {
		log = zap.NewNop()
	}
	return &UserRekeyer{users: users, log: log, metrics: m}
}

// Plan reads every user and decides which records move.
func (r *UserRekeyer) Plan(ctx context.Context) (RekeyPlan, error) {
	users, err := r.users.ListUsers(ctx)
	if err != nil {
		return RekeyPlan{}, domain.Wrap(domain.KindPersistence, "list users", err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })

	ids := make(map[string]struct{}, len(users))
	claims := make(map[string]int, len(users))
	for _, u := range users {
		ids[u.ID] = struct{}{}
		if u.NationalID != "" && !u.KeyedByNationalID() {
			claims[u.NationalID]++
		}
	}

	plan := RekeyPlan{Moves: []RekeyMove{}, Skipped: []RekeySkip{}}
	for _, u := range users {
		switch {
		case u.NationalID == "":
			plan.Skipped = append(plan.Skipped, RekeySkip{UserID: u.ID, Reason: skipNoNationalID})
		case u.KeyedByNationalID():
			plan.Skipped = append(plan.Skipped, RekeySkip{UserID: u.ID, Reason: skipAlreadyKeyed})
		case claims[u.NationalID] > 1:
			plan.Skipped = append(plan.Skipped, RekeySkip{UserID: u.ID, Reason: skipKeyInUse})
		default:
			if _, taken := ids[u.NationalID]; taken {
				plan.Skipped = append(plan.Skipped, RekeySkip{UserID: u.ID, Reason: skipKeyInUse})
				continue
			}
			plan.Moves = append(plan.Moves, RekeyMove{From: u.ID, To: u.NationalID, User: u})
		}
	}
	return plan, nil
}

// Run plans and, when confirmed, applies the moves as one batch. A staging
// failure rolls the whole batch back; a commit failure is returned as-is.
func (r *UserRekeyer) Run(ctx context.Context, opts RekeyOptions) (RekeyReport, error) {
	plan, err := r.Plan(ctx)
	if err != nil {
		return RekeyReport{}, err
	}
	report := RekeyReport{Plan: plan}
	r.log.Info("user rekey planned",
		zap.Int("moves", len(plan.Moves)),
		zap.Int("skipped", len(plan.Skipped)),
		zap.Bool("dryRun", opts.DryRun))
	if opts.DryRun || len(plan.Moves) == 0 {
		return report, nil
	}
	if !opts.Confirmed {
		return report, domain.ErrConfirmationRequired
	}

	batch, err := r.users.BeginUserBatch(ctx)
	if err != nil {
		return report, domain.Wrap(domain.KindPersistence, "begin batch", err)
	}
	for _, move := range plan.Moves {
		moved := move.User
		moved.ID = move.To
		if err := batch.Put(ctx, moved); err != nil {
			return report, r.abort(ctx, batch, move, err)
		}
		if err := batch.Delete(ctx, move.From); err != nil {
			return report, r.abort(ctx, batch, move, err)
		}
		if err := batch.Reassign(ctx, move.From, move.To); err != nil {
			return report, r.abort(ctx, batch, move, err)
		}
	}
	if err := batch.Commit(ctx); err != nil {
		r.log.Error("user rekey commit failed", zap.Error(err))
		return report, domain.Wrap(domain.KindPersistence, "commit batch", err)
	}
	report.Committed = true
	r.metrics.UsersRekeyed(len(plan.Moves))
	r.log.Info("user rekey committed", zap.Int("moved", len(plan.Moves)))
	return report, nil
}

func (r *UserRekeyer) abort(ctx context.Context, batch UserBatch, move RekeyMove, cause error) error {
	if err := batch.Rollback(ctx); err != nil {
		r.log.Error("user rekey rollback failed", zap.Error(err))
	}
	r.log.Warn("user rekey aborted before commit",
		zap.String("from", move.From),
		zap.String("to", move.To),
		zap.Error(cause))
	return domain.Wrap(domain.KindPersistence, "stage "+move.From, cause)
}
