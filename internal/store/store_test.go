package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"stakingengine/internal/domain"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "entities.sqlite"), filepath.Join(dir, "index"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPoolRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.NextPoolID(ctx)
	if err != nil {
		t.Fatalf("next pool id: %v", err)
	}
	pool := &domain.Pool{ID: id, Status: domain.PoolCreated, Crypto: "ICP", PoolSize: 1_000_000, ClientVisible: true}
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("put pool: %v", err)
	}

	loaded, err := s.GetPool(ctx, id)
	if err != nil {
		t.Fatalf("get pool: %v", err)
	}
	if loaded.Crypto != "ICP" || loaded.PoolSize != 1_000_000 {
		t.Fatalf("unexpected pool loaded: %+v", loaded)
	}

	pool.Status = domain.PoolOpen
	if err := s.PutPool(ctx, pool); err != nil {
		t.Fatalf("update pool: %v", err)
	}
	reloaded, err := s.GetPool(ctx, id)
	if err != nil {
		t.Fatalf("reload pool: %v", err)
	}
	if reloaded.Status != domain.PoolOpen {
		t.Fatalf("expected status Open, got %s", reloaded.Status)
	}

	visible, err := s.ListVisiblePools(ctx)
	if err != nil {
		t.Fatalf("list visible pools: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != id {
		t.Fatalf("unexpected visible pools: %+v", visible)
	}
}

func TestPoolNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetPool(context.Background(), 999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAccountListingByPoolAndUser(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 3; i++ {
		id, err := s.NextAccountID(ctx)
		if err != nil {
			t.Fatalf("next account id: %v", err)
		}
		account := &domain.Account{ID: id, PoolID: 1, Owner: "alice", Status: domain.AccountCreated}
		if i == 2 {
			account.PoolID = 2
			account.Owner = "bob"
		}
		if err := s.PutAccount(ctx, account); err != nil {
			t.Fatalf("put account: %v", err)
		}
	}

	byPool, err := s.ListAccountsByPool(ctx, 1, PageRequest{})
	if err != nil {
		t.Fatalf("list by pool: %v", err)
	}
	if len(byPool) != 2 {
		t.Fatalf("expected 2 accounts in pool 1, got %d", len(byPool))
	}

	byUser, err := s.ListAccountsByUser(ctx, "bob")
	if err != nil {
		t.Fatalf("list by user: %v", err)
	}
	if len(byUser) != 1 || byUser[0].Owner != "bob" {
		t.Fatalf("unexpected accounts for bob: %+v", byUser)
	}

	if err := s.DeleteAccount(ctx, byUser[0].ID); err != nil {
		t.Fatalf("delete account: %v", err)
	}
	if _, err := s.GetAccount(ctx, byUser[0].ID); err != ErrNotFound {
		t.Fatalf("expected deleted account to be gone, got %v", err)
	}
}

func TestRewardDayIdempotence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.NextRewardID(ctx)
	if err != nil {
		t.Fatalf("next reward id: %v", err)
	}
	reward := &domain.Reward{ID: id, AccountID: 42, Day: "2026-07-30", Status: domain.RewardCreated}
	if err := s.PutReward(ctx, reward); err != nil {
		t.Fatalf("put reward: %v", err)
	}

	foundID, ok, err := s.RewardIDForDay(ctx, 42, "2026-07-30")
	if err != nil {
		t.Fatalf("reward id for day: %v", err)
	}
	if !ok || foundID != id {
		t.Fatalf("expected to find reward %d, got %d (ok=%v)", id, foundID, ok)
	}

	_, ok, err = s.RewardIDForDay(ctx, 42, "2026-07-31")
	if err != nil {
		t.Fatalf("reward id for day: %v", err)
	}
	if ok {
		t.Fatalf("expected no reward stamped for a different day")
	}
}

func TestPoolLedgerSequenceAndRunningBalance(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	entries := []int64{1_000, -200, 500}
	for _, amount := range entries {
		entry := &domain.PoolLedgerEntry{PoolID: 7, SignedAmount: amount, Kind: domain.LedgerStaking, CreatedAt: time.Now().UTC()}
		if err := s.AppendPoolLedgerEntry(ctx, entry); err != nil {
			t.Fatalf("append pool ledger entry: %v", err)
		}
	}

	page, err := s.ListPoolLedger(ctx, 7, PageRequest{})
	if err != nil {
		t.Fatalf("list pool ledger: %v", err)
	}
	if len(page) != 3 {
		t.Fatalf("expected 3 ledger entries, got %d", len(page))
	}
	if page[0].Seq != 1 || page[1].Seq != 2 || page[2].Seq != 3 {
		t.Fatalf("expected dense sequence 1,2,3, got %d,%d,%d", page[0].Seq, page[1].Seq, page[2].Seq)
	}
	if page[2].RunningBalance != 1_300 {
		t.Fatalf("expected running balance 1300, got %d", page[2].RunningBalance)
	}
}

func TestEventLogAppendAndList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i := 0; i < 2; i++ {
		event := &domain.Event{Principal: "alice", Type: domain.EventStake, Payload: map[string]string{"accountId": "1"}}
		if err := s.AppendEvent(ctx, event); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	events, err := s.ListEvents(ctx, PageRequest{})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestDeadlineIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AddToDeadlineIndex(ctx, "2026-08-01", 10); err != nil {
		t.Fatalf("add to deadline index: %v", err)
	}
	if err := s.AddToDeadlineIndex(ctx, "2026-08-01", 11); err != nil {
		t.Fatalf("add to deadline index: %v", err)
	}
	if err := s.AddToDeadlineIndex(ctx, "2026-08-02", 99); err != nil {
		t.Fatalf("add to deadline index: %v", err)
	}

	due, err := s.AccountsDueOn(ctx, "2026-08-01")
	if err != nil {
		t.Fatalf("accounts due on: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 accounts due, got %d: %v", len(due), due)
	}

	if err := s.RemoveFromDeadlineIndex(ctx, "2026-08-01", 10); err != nil {
		t.Fatalf("remove from deadline index: %v", err)
	}
	due, err = s.AccountsDueOn(ctx, "2026-08-01")
	if err != nil {
		t.Fatalf("accounts due on after remove: %v", err)
	}
	if len(due) != 1 || due[0] != 11 {
		t.Fatalf("expected only account 11 left, got %v", due)
	}
}

func TestRecoverableErrorIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := s.AddToRecoverableErrorIndex(ctx, 1, 100); err != nil {
		t.Fatalf("add to recoverable index: %v", err)
	}
	if err := s.AddToRecoverableErrorIndex(ctx, 2, 200); err != nil {
		t.Fatalf("add to recoverable index: %v", err)
	}

	all, err := s.AllRecoverableErrorAccounts(ctx)
	if err != nil {
		t.Fatalf("all recoverable accounts: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 recoverable accounts, got %d", len(all))
	}

	if err := s.RemoveFromRecoverableErrorIndex(ctx, 1, 100); err != nil {
		t.Fatalf("remove from recoverable index: %v", err)
	}
	all, err = s.AllRecoverableErrorAccounts(ctx)
	if err != nil {
		t.Fatalf("all recoverable accounts after remove: %v", err)
	}
	if len(all) != 1 || all[0] != 200 {
		t.Fatalf("expected only account 200 left, got %v", all)
	}
}
