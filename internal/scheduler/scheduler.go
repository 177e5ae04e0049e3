// Package scheduler runs the periodic background tasks described in §4.7:
// reward distribution, the maturity sweep, the recovery sweep, and an
// optional neuron-occupancy sync. Each task is its own ticker loop, mirroring
// the single-purpose poll loop in services/escrow-gateway's EventWatcher.
package scheduler

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"stakingengine/internal/domain"
	"stakingengine/internal/recovery"
	"stakingengine/internal/store"
)

// RewardDistributor is the subset of the reward engine the scheduler drives.
type RewardDistributor interface {
	DistributeForAccount(ctx context.Context, account *domain.Account, pool *domain.Pool, day string) (*domain.Reward, error)
}

// MaturityUnstaker is the subset of the lifecycle orchestrator the maturity
// sweep drives.
type MaturityUnstaker interface {
	MaturityUnstake(ctx context.Context, accountID uint64) (*domain.Account, error)
}

// NeuronSyncer is an optional component: when set, the scheduler calls it
// once an hour to reconcile each pool's NNS neuron occupancy. Nil disables
// the task.
type NeuronSyncer interface {
	SyncPool(ctx context.Context, poolID uint64) error
}

// Scheduler owns the four periodic tasks. Each runs on its own ticker and
// tolerates being invoked concurrently with a user-initiated call on the
// same subject: guard contention is treated as "try again next tick", never
// as a fatal error.
type Scheduler struct {
	store    store.Store
	reward   RewardDistributor
	maturity MaturityUnstaker
	sweeper  *recovery.Sweeper
	neuron   NeuronSyncer
	logger   *slog.Logger
	now      func() time.Time

	rewardRunning atomic.Bool
}

// New constructs a Scheduler. neuron may be nil to disable the optional
// neuron-sync task.
func New(s store.Store, reward RewardDistributor, maturity MaturityUnstaker, sweeper *recovery.Sweeper, neuron NeuronSyncer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:    s,
		reward:   reward,
		maturity: maturity,
		sweeper:  sweeper,
		neuron:   neuron,
		logger:   logger,
		now:      time.Now,
	}
}

// Run starts all four task loops and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	rewardTicker := time.NewTicker(60 * time.Second)
	maturityTicker := time.NewTicker(60 * time.Second)
	recoveryTicker := time.NewTicker(60 * time.Second)
	defer rewardTicker.Stop()
	defer maturityTicker.Stop()
	defer recoveryTicker.Stop()

	var neuronTicker *time.Ticker
	var neuronC <-chan time.Time
	if s.neuron != nil {
		neuronTicker = time.NewTicker(time.Hour)
		defer neuronTicker.Stop()
		neuronC = neuronTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-rewardTicker.C:
			go s.runRewardDistribution(ctx)
		case <-maturityTicker.C:
			s.runMaturitySweep(ctx)
		case <-recoveryTicker.C:
			s.sweeper.Run(ctx)
		case <-neuronC:
			s.runNeuronSync(ctx)
		}
	}
}

// runRewardDistribution scans every InStake account and distributes today's
// reward. The atomic flag drops an overlapping run rather than letting two
// ticks race the same accounts, per §4.7.
func (s *Scheduler) runRewardDistribution(ctx context.Context) {
	if !s.rewardRunning.CompareAndSwap(false, true) {
		return
	}
	defer s.rewardRunning.Store(false)

	day := domain.YMD(s.now())
	poolCache := make(map[uint64]*domain.Pool)

	page := store.PageRequest{Offset: 0, Limit: 500}
	for {
		accounts, err := s.store.ListAccounts(ctx, page)
		if err != nil {
			s.logger.Error("reward distribution: list accounts", "error", err)
			return
		}
		if len(accounts) == 0 {
			return
		}
		for _, account := range accounts {
			if account.Status != domain.AccountInStake {
				continue
			}
			pool, ok := poolCache[account.PoolID]
			if !ok {
				pool, err = s.store.GetPool(ctx, account.PoolID)
				if err != nil {
					s.logger.Warn("reward distribution: pool lookup failed", "pool_id", account.PoolID, "error", err)
					continue
				}
				poolCache[account.PoolID] = pool
			}
			if _, err := s.reward.DistributeForAccount(ctx, account, pool, day); err != nil {
				s.logger.Warn("reward distribution: account failed, will retry next tick", "account_id", account.ID, "error", err)
			}
		}
		if len(accounts) < page.Limit {
			return
		}
		page.Offset += page.Limit
	}
}

// runMaturitySweep unions the deadline index for today and yesterday and
// calls maturity_unstake for every id found, independently of outcomes.
func (s *Scheduler) runMaturitySweep(ctx context.Context) {
	today := s.now().UTC()
	days := []string{domain.YMD(today), domain.YMD(today.AddDate(0, 0, -1))}

	seen := make(map[uint64]struct{})
	for _, day := range days {
		ids, err := s.store.AccountsDueOn(ctx, day)
		if err != nil {
			s.logger.Error("maturity sweep: list due accounts", "day", day, "error", err)
			continue
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if _, err := s.maturity.MaturityUnstake(ctx, id); err != nil {
				s.logger.Warn("maturity sweep: account failed, will retry next tick", "account_id", id, "error", err)
			}
		}
	}
}

// runNeuronSync reconciles NNS neuron occupancy for every pool, skipped
// entirely if no NeuronSyncer was configured.
func (s *Scheduler) runNeuronSync(ctx context.Context) {
	if s.neuron == nil {
		return
	}
	pools, err := s.store.ListPools(ctx)
	if err != nil {
		s.logger.Error("neuron sync: list pools", "error", err)
		return
	}
	for _, pool := range pools {
		if err := s.neuron.SyncPool(ctx, pool.ID); err != nil {
			s.logger.Warn("neuron sync: pool failed, will retry next tick", "pool_id", pool.ID, "error", err)
		}
	}
}
