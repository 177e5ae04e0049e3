package orchestrator

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"stakingengine/internal/badge"
	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/ledger"
	"stakingengine/internal/paycenter"
	"stakingengine/internal/store"
)

type fakeLedger struct {
	mu        sync.Mutex
	nextBlock uint64
	failNext  bool
	transfers []ledger.TransferRequest
}

func (f *fakeLedger) Transfer(ctx context.Context, req ledger.TransferRequest) (ledger.BlockIndex, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers = append(f.transfers, req)
	if f.failNext {
		f.failNext = false
		return 0, &ledger.Error{Message: "simulated failure"}
	}
	f.nextBlock++
	return ledger.BlockIndex(f.nextBlock), nil
}

func (f *fakeLedger) BlockIndexOf(ctx context.Context, blockIndex ledger.BlockIndex) (time.Time, error) {
	return time.Now().UTC(), nil
}

type fakePayCenter struct {
	mu         sync.Mutex
	failStake  bool
	stakeCalls int
}

func (f *fakePayCenter) Stake(ctx context.Context, user string, amount int64, accountAddress string, poolID, accountID uint64) (paycenter.StakeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stakeCalls++
	if f.failStake {
		return paycenter.StakeResult{}, &paycenter.Error{Code: 1, Message: "pc down"}
	}
	return paycenter.StakeResult{OnchainTxID: 100, PCTxID: "pc-stake-1"}, nil
}

func (f *fakePayCenter) Dissolve(ctx context.Context, user string, amount int64, dissolveBlock uint64, accountAddress string, accountID uint64) (string, error) {
	return "pc-dissolve-1", nil
}

func (f *fakePayCenter) ReceiveEarlyUnstakePenalty(ctx context.Context, user string, penalty int64, poolID, accountID uint64, penaltyBlock uint64) (string, error) {
	return "pc-penalty-1", nil
}

func (f *fakePayCenter) UpdateAccountBonus(ctx context.Context, user string, amount int64, localTxID uint64, reason string, accountID, rewardID uint64) (string, error) {
	return "pc-bonus-1", nil
}

type fakeMessenger struct {
	mu      sync.Mutex
	granted []string
	revoked []string
	done    chan struct{}
}

func (f *fakeMessenger) UpdateUserBadges(ctx context.Context, user, badgeID string, remove bool, payload map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if remove {
		f.revoked = append(f.revoked, user)
	} else {
		f.granted = append(f.granted, user)
	}
	select {
	case f.done <- struct{}{}:
	default:
	}
	return nil
}

func newHarness(t *testing.T) (*Orchestrator, *fakeLedger, *fakePayCenter, store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "entities.sqlite"), filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	lg := &fakeLedger{}
	pc := &fakePayCenter{}
	messenger := &fakeMessenger{done: make(chan struct{}, 16)}
	badges := badge.NewQueue(messenger, nil, 1)
	t.Cleanup(badges.Close)

	o := New(s, guard.NewSet(), lg, pc, badges, []byte("test-canister"), "stake1payCenterAccountIdentifier")
	return o, lg, pc, s
}

func seedPool(t *testing.T, s store.Store) *domain.Pool {
	t.Helper()
	ctx := context.Background()
	id, err := s.NextPoolID(ctx)
	if err != nil {
		t.Fatalf("next pool id: %v", err)
	}
	pool := &domain.Pool{
		ID:       id,
		Status:   domain.PoolOpen,
		Crypto:   "ICP",
		PoolSize: 1_000_000_000,
		Limit:    domain.LimitConfig{MinPerUser: 100_000_000, MaxPerUser: 500_000_000, Step: 100_000_000},
		Term:     domain.TermConfig{MinTermDays: 30, MaxTermDays: 90, MinEarlyUnstakeDays: 7},
		RewardConfigs: []domain.RewardConfig{
			{DailyRate: 100_000, RewardCrypto: "ICP", MinDays: 30, MaxDays: 90},
		},
		ClientVisible: true,
	}
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}
	return pool
}

func TestStakeHappyPath(t *testing.T) {
	o, _, _, s := newHarness(t)
	pool := seedPool(t, s)

	account, err := o.Stake(context.Background(), "alice", pool.ID, 200_000_000, 30)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	if account.Status != domain.AccountInStake {
		t.Fatalf("expected InStake, got %s", account.Status)
	}
	if account.StakedAmount != 200_000_000 {
		t.Fatalf("unexpected staked amount %d", account.StakedAmount)
	}

	reloadedPool, err := s.GetPool(context.Background(), pool.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if reloadedPool.StakedAmount != 200_000_000 || reloadedPool.LockedSize != 0 || reloadedPool.StakerCount != 1 {
		t.Fatalf("unexpected pool state: %+v", reloadedPool)
	}

	entries, err := s.ListPoolLedger(context.Background(), pool.ID, store.PageRequest{})
	if err != nil {
		t.Fatalf("list pool ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(entries))
	}
	if entries[0].Kind != domain.LedgerStaking || entries[0].SignedAmount != 200_000_000 {
		t.Fatalf("unexpected first ledger entry: %+v", entries[0])
	}
	if entries[1].Kind != domain.LedgerPrepaidFee || entries[1].SignedAmount != 20_000 {
		t.Fatalf("unexpected second ledger entry: %+v", entries[1])
	}
}

func TestStakeRejectsAmountOutsideStep(t *testing.T) {
	o, _, _, s := newHarness(t)
	pool := seedPool(t, s)
	if _, err := o.Stake(context.Background(), "alice", pool.ID, 250_000_000, 30); err == nil {
		t.Fatalf("expected a step-alignment validation error")
	}
}

func TestStakeRollsBackOnPayCenterFailure(t *testing.T) {
	o, _, pc, s := newHarness(t)
	pool := seedPool(t, s)
	pc.failStake = true

	_, err := o.Stake(context.Background(), "alice", pool.ID, 200_000_000, 30)
	if err != ErrSystem {
		t.Fatalf("expected ErrSystem, got %v", err)
	}

	reloadedPool, err := s.GetPool(context.Background(), pool.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if reloadedPool.LockedSize != 0 || reloadedPool.StakedAmount != 0 {
		t.Fatalf("expected the reservation to be fully rolled back, got %+v", reloadedPool)
	}
}

func TestStakeLedgerFailureThenRecoveryResume(t *testing.T) {
	o, lg, _, s := newHarness(t)
	pool := seedPool(t, s)
	lg.failNext = true

	_, err := o.Stake(context.Background(), "alice", pool.ID, 200_000_000, 30)
	if err != ErrSystem {
		t.Fatalf("expected ErrSystem on the ledger failure, got %v", err)
	}

	accounts, err := s.ListAccountsByUser(context.Background(), "alice")
	if err != nil || len(accounts) != 1 {
		t.Fatalf("expected exactly one account to survive the pre-commit window, got %v err=%v", accounts, err)
	}
	pinned := accounts[0]
	if pinned.RecoverableErr.Kind != domain.ErrKindStakeTransferToPoolFailed {
		t.Fatalf("expected a pinned recoverable error, got %+v", pinned.RecoverableErr)
	}

	recovered, err := o.Resume(context.Background(), pinned.ID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if recovered.Status != domain.AccountInStake {
		t.Fatalf("expected the resumed account to reach InStake, got %s", recovered.Status)
	}
	if recovered.RecoverableErr.IsSet() {
		t.Fatalf("expected the recoverable error to be cleared after resume")
	}

	reloadedPool, err := s.GetPool(context.Background(), pool.ID)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if reloadedPool.StakedAmount != 200_000_000 || reloadedPool.LockedSize != 0 {
		t.Fatalf("unexpected pool state after resume: %+v", reloadedPool)
	}
}

func TestConcurrentStakeSameUserSecondFails(t *testing.T) {
	o, _, _, s := newHarness(t)
	pool := seedPool(t, s)

	handle, err := o.guard.Acquire(guard.Key("stake", "alice"))
	if err != nil {
		t.Fatalf("pre-acquire guard: %v", err)
	}
	defer handle.Release()

	_, err = o.Stake(context.Background(), "alice", pool.ID, 200_000_000, 30)
	if err != guard.ErrInProgress {
		t.Fatalf("expected guard.ErrInProgress, got %v", err)
	}
}

func TestEarlyUnstakePenaltyScenario(t *testing.T) {
	o, _, _, s := newHarness(t)
	pool := seedPool(t, s)

	account, err := o.Stake(context.Background(), "alice", pool.ID, 200_000_000, 30)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	account.AccumulatedRewards = 10_000_000
	account.StakeTime = time.Now().UTC().AddDate(0, 0, -50)
	account.CanEarlyUnstakeTime = time.Now().UTC().AddDate(0, 0, -43)
	if err := s.PutAccount(context.Background(), account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	released, err := o.EarlyUnstake(context.Background(), "alice", account.ID)
	if err != nil {
		t.Fatalf("early unstake: %v", err)
	}
	if released.PenaltyAmount != 8_000_000 {
		t.Fatalf("expected penalty 8_000_000, got %d", released.PenaltyAmount)
	}
	if released.ReleasedAmount != 192_000_000 {
		t.Fatalf("expected released 192_000_000, got %d", released.ReleasedAmount)
	}
	if released.Status != domain.AccountReleased {
		t.Fatalf("expected Released, got %s", released.Status)
	}
}

func TestDissolveZeroReleasedSkipsLedgerCall(t *testing.T) {
	o, lg, _, s := newHarness(t)
	pool := seedPool(t, s)

	account, err := o.Stake(context.Background(), "alice", pool.ID, 200_000_000, 30)
	if err != nil {
		t.Fatalf("stake: %v", err)
	}
	account.Status = domain.AccountReleased
	account.ReleasedAmount = 0
	if err := s.PutAccount(context.Background(), account); err != nil {
		t.Fatalf("put account: %v", err)
	}

	transfersBefore := len(lg.transfers)
	dissolved, err := o.Dissolve(context.Background(), "alice", account.ID)
	if err != nil {
		t.Fatalf("dissolve: %v", err)
	}
	if dissolved.Status != domain.AccountDissolved {
		t.Fatalf("expected Dissolved, got %s", dissolved.Status)
	}
	if len(lg.transfers) != transfersBefore {
		t.Fatalf("expected no additional ledger transfer for a zero-released dissolve")
	}
	if dissolved.Tx.DissolveOnchain != 0 || dissolved.Tx.DissolvePCTx != "" {
		t.Fatalf("expected zero tx ids, got %+v", dissolved.Tx)
	}
}
