// Package store is the entity store (component D): persistent ordered maps
// and secondary indexes with per-kind monotonic id generators. Two
// technologies back it, chosen for what each does best: modernc.org/sqlite
// for the relational entity tables (pools, accounts, rewards, pool-ledger,
// events, and the per-day reward stamp as a unique index), and goleveldb for
// the ordered-iteration secondary indexes (deadline sweep, recoverable-error
// sweep), mirroring
// services/escrow-gateway's SQLite tables and gateway/auth's goleveldb
// ordered index in this codebase.
package store

import (
	"context"

	"stakingengine/internal/domain"
)

// Store is the full persistence contract the lifecycle orchestrator,
// recovery orchestrator, reward engine, and scheduler depend on. It plays
// the role native/lending/engine.go's engineState interface plays for the
// lending engine: a narrow, mockable seam between business logic and
// storage.
type Store interface {
	PoolStore
	AccountStore
	RewardStore
	PoolLedgerStore
	EventStore
	IndexStore

	Close() error
}

// PoolStore persists staking pools.
type PoolStore interface {
	NextPoolID(ctx context.Context) (uint64, error)
	GetPool(ctx context.Context, id uint64) (*domain.Pool, error)
	PutPool(ctx context.Context, pool *domain.Pool) error
	ListPools(ctx context.Context) ([]*domain.Pool, error)
	ListVisiblePools(ctx context.Context) ([]*domain.Pool, error)
}

// AccountStore persists staking accounts.
type AccountStore interface {
	NextAccountID(ctx context.Context) (uint64, error)
	GetAccount(ctx context.Context, id uint64) (*domain.Account, error)
	PutAccount(ctx context.Context, account *domain.Account) error
	DeleteAccount(ctx context.Context, id uint64) error
	ListAccountsByPool(ctx context.Context, poolID uint64, page PageRequest) ([]*domain.Account, error)
	ListAccountsByUser(ctx context.Context, userID string) ([]*domain.Account, error)
	ListAccounts(ctx context.Context, page PageRequest) ([]*domain.Account, error)
}

// RewardStore persists rewards and enforces the at-most-once per
// (account, day) index.
type RewardStore interface {
	NextRewardID(ctx context.Context) (uint64, error)
	GetReward(ctx context.Context, id uint64) (*domain.Reward, error)
	PutReward(ctx context.Context, reward *domain.Reward) error
	RewardIDForDay(ctx context.Context, accountID uint64, day string) (uint64, bool, error)
	StampRewardDay(ctx context.Context, accountID uint64, day string, rewardID uint64) error
	ListRewardsByPool(ctx context.Context, poolID uint64, page PageRequest) ([]*domain.Reward, error)
}

// PoolLedgerStore persists the per-pool chronological transaction ledger.
type PoolLedgerStore interface {
	AppendPoolLedgerEntry(ctx context.Context, entry *domain.PoolLedgerEntry) error
	ListPoolLedger(ctx context.Context, poolID uint64, page PageRequest) ([]*domain.PoolLedgerEntry, error)
	ListPoolLedgerByKind(ctx context.Context, poolID uint64, kind domain.LedgerEntryKind, page PageRequest) ([]*domain.PoolLedgerEntry, error)
}

// EventStore persists the append-only audit event log.
type EventStore interface {
	AppendEvent(ctx context.Context, event *domain.Event) error
	ListEvents(ctx context.Context, page PageRequest) ([]*domain.Event, error)
}

// IndexStore persists the ordered secondary indexes described in §4.10:
// the per-day deadline index used for maturity sweeps and the per-pool
// recoverable-error index used for recovery sweeps.
type IndexStore interface {
	AddToDeadlineIndex(ctx context.Context, day string, accountID uint64) error
	RemoveFromDeadlineIndex(ctx context.Context, day string, accountID uint64) error
	AccountsDueOn(ctx context.Context, day string) ([]uint64, error)

	AddToRecoverableErrorIndex(ctx context.Context, poolID, accountID uint64) error
	RemoveFromRecoverableErrorIndex(ctx context.Context, poolID, accountID uint64) error
	AllRecoverableErrorAccounts(ctx context.Context) ([]uint64, error)
}

// PageRequest bounds a paginated query. Offset/Limit follow the admin
// paging convention used across this codebase's exposed APIs; Descending
// requests newest-first iteration order.
type PageRequest struct {
	Offset     int
	Limit      int
	Descending bool
}

// Normalize applies sane defaults to a zero-valued PageRequest.
func (p PageRequest) Normalize() PageRequest {
	if p.Limit <= 0 || p.Limit > 1000 {
		p.Limit = 100
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
