package reward

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/paycenter"
	"stakingengine/internal/store"
)

func TestComputeRewardFloorsTruncation(t *testing.T) {
	// dailyRate of 27397 E8S against a stake of 1,000,000 gives a product
	// that does not divide evenly; Compute must floor, never round.
	got := Compute(1_000_000, 27397)
	want := int64(273) // floor(1_000_000 * 27397 / 1e8) = floor(273.97) = 273
	if got != want {
		t.Fatalf("got %d, want %d", got, want)
	}
}

func TestComputeRewardZeroInputs(t *testing.T) {
	if Compute(0, 27397) != 0 {
		t.Fatalf("expected zero reward for zero stake")
	}
	if Compute(1_000_000, 0) != 0 {
		t.Fatalf("expected zero reward for zero rate")
	}
	if Compute(-5, 27397) != 0 {
		t.Fatalf("expected zero reward for negative stake")
	}
}

type fakePayCenter struct {
	bonusCalls int
	fail       bool
}

func (f *fakePayCenter) Stake(ctx context.Context, user string, amount int64, accountAddress string, poolID, accountID uint64) (paycenter.StakeResult, error) {
	return paycenter.StakeResult{}, nil
}
func (f *fakePayCenter) Dissolve(ctx context.Context, user string, amount int64, dissolveBlock uint64, accountAddress string, accountID uint64) (string, error) {
	return "", nil
}
func (f *fakePayCenter) ReceiveEarlyUnstakePenalty(ctx context.Context, user string, penalty int64, poolID, accountID uint64, penaltyBlock uint64) (string, error) {
	return "", nil
}
func (f *fakePayCenter) UpdateAccountBonus(ctx context.Context, user string, amount int64, localTxID uint64, reason string, accountID, rewardID uint64) (string, error) {
	f.bonusCalls++
	if f.fail {
		return "", &paycenter.Error{Code: 1, Message: "down"}
	}
	return "pc-tx-1", nil
}

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

func TestDistributeForAccountIsIdempotentPerDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pc := &fakePayCenter{}
	engine := NewEngine(s, guard.NewSet(), pc, 0x02)

	account := &domain.Account{
		ID: 1, PoolID: 1, Owner: "alice", Status: domain.AccountInStake,
		StakedAmount:  1_000_000,
		StakeTime:     time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC),
		StakeDeadline: time.Date(2027, 7, 27, 0, 0, 0, 0, time.UTC),
		RewardConfig:  domain.RewardConfig{DailyRate: 27397, RewardCrypto: "ICP"},
	}
	if err := s.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reward, err := engine.DistributeForAccount(ctx, account, nil, "2026-07-30")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if reward == nil || reward.Status != domain.RewardReceived {
		t.Fatalf("expected a received reward, got %+v", reward)
	}
	if pc.bonusCalls != 1 {
		t.Fatalf("expected exactly one bonus call, got %d", pc.bonusCalls)
	}

	second, err := engine.DistributeForAccount(ctx, account, nil, "2026-07-30")
	if err != nil {
		t.Fatalf("second distribute: %v", err)
	}
	if second != nil {
		t.Fatalf("expected no-op on a second call for the same day, got %+v", second)
	}
	if pc.bonusCalls != 1 {
		t.Fatalf("expected bonus call count to remain 1, got %d", pc.bonusCalls)
	}
}

func TestDistributeForAccountSkipsNonStakedAccounts(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pc := &fakePayCenter{}
	engine := NewEngine(s, guard.NewSet(), pc, 0x02)

	account := &domain.Account{ID: 1, Status: domain.AccountReleased, StakedAmount: 1_000_000}
	reward, err := engine.DistributeForAccount(ctx, account, nil, "2026-07-30")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if reward != nil {
		t.Fatalf("expected no reward for a non-InStake account, got %+v", reward)
	}
	if pc.bonusCalls != 0 {
		t.Fatalf("expected no payment-center call")
	}
}

func TestDistributeForAccountSkipsStakeDay(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pc := &fakePayCenter{}
	engine := NewEngine(s, guard.NewSet(), pc, 0x02)

	account := &domain.Account{
		ID: 1, PoolID: 1, Owner: "alice", Status: domain.AccountInStake,
		StakedAmount:  1_000_000,
		StakeTime:     time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC),
		StakeDeadline: time.Date(2027, 7, 30, 0, 0, 0, 0, time.UTC),
		RewardConfig:  domain.RewardConfig{DailyRate: 27397, RewardCrypto: "ICP"},
	}
	if err := s.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reward, err := engine.DistributeForAccount(ctx, account, nil, "2026-07-30")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if reward != nil {
		t.Fatalf("expected no reward on the stake day, got %+v", reward)
	}
	if pc.bonusCalls != 0 {
		t.Fatalf("expected no payment-center call on the stake day")
	}
}

func TestDistributeForAccountSkipsAfterDeadline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pc := &fakePayCenter{}
	engine := NewEngine(s, guard.NewSet(), pc, 0x02)

	account := &domain.Account{
		ID: 1, PoolID: 1, Owner: "alice", Status: domain.AccountInStake,
		StakedAmount:  1_000_000,
		StakeTime:     time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		StakeDeadline: time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC),
		RewardConfig:  domain.RewardConfig{DailyRate: 27397, RewardCrypto: "ICP"},
	}
	if err := s.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reward, err := engine.DistributeForAccount(ctx, account, nil, "2026-07-30")
	if err != nil {
		t.Fatalf("distribute: %v", err)
	}
	if reward != nil {
		t.Fatalf("expected no reward after the deadline day, got %+v", reward)
	}
	if pc.bonusCalls != 0 {
		t.Fatalf("expected no payment-center call after the deadline day")
	}
}

func TestSettlePendingRetriesFailedBonusCall(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	pc := &fakePayCenter{fail: true}
	engine := NewEngine(s, guard.NewSet(), pc, 0x02)

	account := &domain.Account{
		ID: 1, PoolID: 1, Owner: "alice", Status: domain.AccountInStake,
		StakedAmount:  1_000_000,
		StakeTime:     time.Date(2026, 7, 27, 0, 0, 0, 0, time.UTC),
		StakeDeadline: time.Date(2027, 7, 27, 0, 0, 0, 0, time.UTC),
		RewardConfig:  domain.RewardConfig{DailyRate: 27397, RewardCrypto: "ICP"},
	}
	if err := s.PutAccount(ctx, account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	reward, err := engine.DistributeForAccount(ctx, account, nil, "2026-07-30")
	if err == nil {
		t.Fatalf("expected the bonus call to fail")
	}
	if reward == nil || reward.Status != domain.RewardCreated {
		t.Fatalf("expected a Created reward despite the failed settlement, got %+v", reward)
	}

	pc.fail = false
	if err := engine.SettlePending(ctx, reward, account.Owner); err != nil {
		t.Fatalf("settle pending: %v", err)
	}
	if reward.Status != domain.RewardReceived {
		t.Fatalf("expected reward to become Received after retry")
	}
}
