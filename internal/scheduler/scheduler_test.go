package scheduler

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stakingengine/internal/domain"
	"stakingengine/internal/recovery"
	"stakingengine/internal/store"
)

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "entities.sqlite"), filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type fakeReward struct {
	mu   sync.Mutex
	hits []uint64
}

func (f *fakeReward) DistributeForAccount(ctx context.Context, account *domain.Account, pool *domain.Pool, day string) (*domain.Reward, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, account.ID)
	return nil, nil
}

type fakeMaturity struct {
	mu  sync.Mutex
	hit []uint64
}

func (f *fakeMaturity) MaturityUnstake(ctx context.Context, accountID uint64) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hit = append(f.hit, accountID)
	return nil, nil
}

func TestRunRewardDistributionSkipsNonStakedAccounts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pool := &domain.Pool{ID: 1, Status: domain.PoolOpen}
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}

	staked, err := s.NextAccountID(ctx)
	if err != nil {
		t.Fatalf("next account id: %v", err)
	}
	if err := s.PutAccount(ctx, &domain.Account{ID: staked, PoolID: 1, Owner: "alice", Status: domain.AccountInStake}); err != nil {
		t.Fatalf("put account: %v", err)
	}
	released, err := s.NextAccountID(ctx)
	if err != nil {
		t.Fatalf("next account id: %v", err)
	}
	if err := s.PutAccount(ctx, &domain.Account{ID: released, PoolID: 1, Owner: "bob", Status: domain.AccountReleased}); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reward := &fakeReward{}
	sched := New(s, reward, &fakeMaturity{}, recovery.New(s, nil, nil), nil, nil)
	sched.runRewardDistribution(ctx)

	if len(reward.hits) != 1 || reward.hits[0] != staked {
		t.Fatalf("expected only the staked account to be distributed, got %v", reward.hits)
	}
}

func TestRunMaturitySweepUnionsTodayAndYesterday(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	if err := s.AddToDeadlineIndex(ctx, today, 1); err != nil {
		t.Fatalf("add today: %v", err)
	}
	if err := s.AddToDeadlineIndex(ctx, yesterday, 2); err != nil {
		t.Fatalf("add yesterday: %v", err)
	}

	maturity := &fakeMaturity{}
	sched := New(s, &fakeReward{}, maturity, recovery.New(s, nil, nil), nil, nil)
	sched.runMaturitySweep(ctx)

	if len(maturity.hit) != 2 {
		t.Fatalf("expected both due accounts to be swept, got %v", maturity.hit)
	}
}
