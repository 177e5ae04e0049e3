// Package recovery is the thin component-H wrapper the scheduler drives: it
// lists every account pinned to a recoverable error and asks the lifecycle
// orchestrator (component G) to resume each one. It never re-derives the
// resume logic itself — that lives on Orchestrator so a user-initiated retry
// and a scheduled sweep can never drift apart.
package recovery

import (
	"context"
	"errors"
	"log/slog"

	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/store"
)

// Sweeper drives one pass of the recovery sweep over every account
// currently pinned to a recoverable error.
type Sweeper struct {
	store  store.Store
	resume func(ctx context.Context, accountID uint64) (*domain.Account, error)
	logger *slog.Logger
}

// New constructs a Sweeper. resume is (*orchestrator.Orchestrator).Resume.
func New(s store.Store, resume func(ctx context.Context, accountID uint64) (*domain.Account, error), logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: s, resume: resume, logger: logger}
}

// Run performs one sweep pass: it lists every account in the recoverable-
// error index and resumes each one, tolerating guard.ErrInProgress from an
// overlapping user-initiated call on the same subject (§4.7: the sweep must
// fail fast on a contended guard and retry on the next tick, never block).
func (s *Sweeper) Run(ctx context.Context) {
	accountIDs, err := s.store.AllRecoverableErrorAccounts(ctx)
	if err != nil {
		s.logger.Error("recovery sweep: list recoverable accounts", "error", err)
		return
	}
	for _, accountID := range accountIDs {
		if _, err := s.resume(ctx, accountID); err != nil {
			if errors.Is(err, guard.ErrInProgress) {
				continue
			}
			s.logger.Warn("recovery sweep: resume failed, will retry next tick", "account_id", accountID, "error", err)
		}
	}
}
