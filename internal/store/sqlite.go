package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"stakingengine/internal/domain"
)

// SQLStore persists pools, accounts, rewards, the pool-ledger and the event
// log in SQLite tables. It implements PoolStore, AccountStore, RewardStore,
// PoolLedgerStore and EventStore; IndexStore is implemented separately by
// LevelIndex (index_leveldb.go) and composed by Open into the full Store.
type SQLStore struct {
	db *sql.DB
}

// ErrNotFound is returned when a lookup by id finds no row.
var ErrNotFound = errors.New("store: entity not found")

// openSQLite opens (creating if absent) the SQLite database at path and
// applies the entity-store schema.
func openSQLite(path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLStore{db: db}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS id_sequences (
			kind TEXT PRIMARY KEY,
			last INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS pools (
			id INTEGER PRIMARY KEY,
			data TEXT NOT NULL,
			client_visible INTEGER NOT NULL,
			status TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS accounts (
			id INTEGER PRIMARY KEY,
			pool_id INTEGER NOT NULL,
			owner TEXT NOT NULL,
			status TEXT NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_pool ON accounts(pool_id);`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_owner ON accounts(owner);`,
		`CREATE TABLE IF NOT EXISTS rewards (
			id INTEGER PRIMARY KEY,
			pool_id INTEGER NOT NULL DEFAULT 0,
			account_id INTEGER NOT NULL,
			day TEXT NOT NULL,
			data TEXT NOT NULL
		);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_reward_day ON rewards(account_id, day);`,
		`CREATE INDEX IF NOT EXISTS idx_rewards_pool ON rewards(pool_id);`,
		`CREATE TABLE IF NOT EXISTS pool_ledger (
			pool_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			signed_amount INTEGER NOT NULL,
			running_balance INTEGER NOT NULL,
			kind TEXT NOT NULL,
			account_id INTEGER NOT NULL DEFAULT 0,
			neuron_id TEXT NOT NULL DEFAULT '',
			block_index INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY(pool_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_pool_ledger_kind ON pool_ledger(pool_id, kind);`,
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY,
			principal TEXT NOT NULL,
			type TEXT NOT NULL,
			payload TEXT NOT NULL,
			event_time TIMESTAMP NOT NULL
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

func (s *SQLStore) nextID(ctx context.Context, kind string) (uint64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var last uint64
	row := tx.QueryRowContext(ctx, `SELECT last FROM id_sequences WHERE kind = ?`, kind)
	switch err := row.Scan(&last); {
	case errors.Is(err, sql.ErrNoRows):
		last = 0
	case err != nil:
		return 0, err
	}
	next := last + 1
	if _, err := tx.ExecContext(ctx, `INSERT INTO id_sequences(kind, last) VALUES(?, ?)
		ON CONFLICT(kind) DO UPDATE SET last = excluded.last`, kind, next); err != nil {
		return 0, err
	}
	return next, tx.Commit()
}

const (
	kindPool   = "pool"
	kindAcct   = "account"
	kindReward = "reward"
)

// NextPoolID returns the next monotonic pool id.
func (s *SQLStore) NextPoolID(ctx context.Context) (uint64, error) { return s.nextID(ctx, kindPool) }

// NextAccountID returns the next monotonic account id.
func (s *SQLStore) NextAccountID(ctx context.Context) (uint64, error) { return s.nextID(ctx, kindAcct) }

// NextRewardID returns the next monotonic reward id.
func (s *SQLStore) NextRewardID(ctx context.Context) (uint64, error) { return s.nextID(ctx, kindReward) }

// GetPool loads a pool by id.
func (s *SQLStore) GetPool(ctx context.Context, id uint64) (*domain.Pool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM pools WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var pool domain.Pool
	if err := json.Unmarshal([]byte(raw), &pool); err != nil {
		return nil, err
	}
	return &pool, nil
}

// PutPool inserts or replaces a pool row.
func (s *SQLStore) PutPool(ctx context.Context, pool *domain.Pool) error {
	raw, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	visible := 0
	if pool.ClientVisible {
		visible = 1
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO pools(id, data, client_visible, status) VALUES(?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data, client_visible = excluded.client_visible, status = excluded.status`,
		pool.ID, string(raw), visible, string(pool.Status))
	return err
}

// ListPools returns every pool ordered by ascending id.
func (s *SQLStore) ListPools(ctx context.Context) ([]*domain.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM pools ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pools []*domain.Pool
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var pool domain.Pool
		if err := json.Unmarshal([]byte(raw), &pool); err != nil {
			return nil, err
		}
		pools = append(pools, &pool)
	}
	return pools, rows.Err()
}

// ListVisiblePools returns pools flagged client-visible, ordered by
// ascending id.
func (s *SQLStore) ListVisiblePools(ctx context.Context) ([]*domain.Pool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM pools WHERE client_visible = 1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var pools []*domain.Pool
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var pool domain.Pool
		if err := json.Unmarshal([]byte(raw), &pool); err != nil {
			return nil, err
		}
		pools = append(pools, &pool)
	}
	return pools, rows.Err()
}

// GetAccount loads an account by id.
func (s *SQLStore) GetAccount(ctx context.Context, id uint64) (*domain.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM accounts WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var account domain.Account
	if err := json.Unmarshal([]byte(raw), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// PutAccount inserts or replaces an account row.
func (s *SQLStore) PutAccount(ctx context.Context, account *domain.Account) error {
	raw, err := json.Marshal(account)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO accounts(id, pool_id, owner, status, data) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET pool_id = excluded.pool_id, owner = excluded.owner, status = excluded.status, data = excluded.data`,
		account.ID, account.PoolID, account.Owner, string(account.Status), string(raw))
	return err
}

// DeleteAccount removes an account row, used by the stake flow's
// pre-commit rollback when the payment-center call fails before any money
// has moved.
func (s *SQLStore) DeleteAccount(ctx context.Context, id uint64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return err
}

// ListAccountsByPool returns accounts belonging to poolID, paginated and
// ordered by ascending id (or descending, newest-first, when requested).
func (s *SQLStore) ListAccountsByPool(ctx context.Context, poolID uint64, page PageRequest) ([]*domain.Account, error) {
	page = page.Normalize()
	order := "ASC"
	if page.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT data FROM accounts WHERE pool_id = ? ORDER BY id %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, query, poolID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListAccountsByUser returns every account owned by userID. This is the
// "legacy per-user index" described in §4.10: rather than a separate index
// table that can drift, it queries the primary table directly, which is
// self-healing by construction (there is nothing to disagree with).
func (s *SQLStore) ListAccountsByUser(ctx context.Context, userID string) ([]*domain.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT data FROM accounts WHERE owner = ? ORDER BY id ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

// ListAccounts returns every account, paginated, for admin-scoped queries.
func (s *SQLStore) ListAccounts(ctx context.Context, page PageRequest) ([]*domain.Account, error) {
	page = page.Normalize()
	order := "ASC"
	if page.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT data FROM accounts ORDER BY id %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAccounts(rows)
}

func scanAccounts(rows *sql.Rows) ([]*domain.Account, error) {
	var accounts []*domain.Account
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var account domain.Account
		if err := json.Unmarshal([]byte(raw), &account); err != nil {
			return nil, err
		}
		accounts = append(accounts, &account)
	}
	return accounts, rows.Err()
}

// GetReward loads a reward by id.
func (s *SQLStore) GetReward(ctx context.Context, id uint64) (*domain.Reward, error) {
	row := s.db.QueryRowContext(ctx, `SELECT data FROM rewards WHERE id = ?`, id)
	var raw string
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	var reward domain.Reward
	if err := json.Unmarshal([]byte(raw), &reward); err != nil {
		return nil, err
	}
	return &reward, nil
}

// PutReward inserts or replaces a reward row and stamps the per-day index
// in the same statement set, so a reward and its idempotence stamp are
// never observed out of sync.
func (s *SQLStore) PutReward(ctx context.Context, reward *domain.Reward) error {
	raw, err := json.Marshal(reward)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO rewards(id, pool_id, account_id, day, data) VALUES(?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET data = excluded.data`,
		reward.ID, reward.PoolID, reward.AccountID, reward.Day, string(raw))
	return err
}

// ListRewardsByPool returns a page of a pool's reward rows, newest-id-first
// when Descending is set, for the operator reward-export tooling.
func (s *SQLStore) ListRewardsByPool(ctx context.Context, poolID uint64, page PageRequest) ([]*domain.Reward, error) {
	page = page.Normalize()
	order := "ASC"
	if page.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT data FROM rewards WHERE pool_id = ? ORDER BY id %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, query, poolID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var rewards []*domain.Reward
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var reward domain.Reward
		if err := json.Unmarshal([]byte(raw), &reward); err != nil {
			return nil, err
		}
		rewards = append(rewards, &reward)
	}
	return rewards, rows.Err()
}

// RewardIDForDay looks up the per-day reward stamp for (accountID, day).
func (s *SQLStore) RewardIDForDay(ctx context.Context, accountID uint64, day string) (uint64, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id FROM rewards WHERE account_id = ? AND day = ?`, accountID, day)
	var id uint64
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return id, true, nil
}

// StampRewardDay is a no-op beyond PutReward: the unique index on
// (account_id, day) is the stamp. Present to satisfy the Store interface
// and to make the at-most-once intent explicit at call sites.
func (s *SQLStore) StampRewardDay(ctx context.Context, accountID uint64, day string, rewardID uint64) error {
	return nil
}

// AppendPoolLedgerEntry appends a record to a pool's transaction ledger,
// assigning the next dense sequence number and computing the running
// balance from the previous record in the same transaction.
func (s *SQLStore) AppendPoolLedgerEntry(ctx context.Context, entry *domain.PoolLedgerEntry) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var lastSeq uint64
	var lastBalance int64
	row := tx.QueryRowContext(ctx, `SELECT seq, running_balance FROM pool_ledger WHERE pool_id = ? ORDER BY seq DESC LIMIT 1`, entry.PoolID)
	switch err := row.Scan(&lastSeq, &lastBalance); {
	case errors.Is(err, sql.ErrNoRows):
		lastSeq, lastBalance = 0, 0
	case err != nil:
		return err
	}

	entry.Seq = lastSeq + 1
	entry.RunningBalance = lastBalance + entry.SignedAmount
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO pool_ledger(pool_id, seq, signed_amount, running_balance, kind, account_id, neuron_id, block_index, created_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.PoolID, entry.Seq, entry.SignedAmount, entry.RunningBalance, string(entry.Kind), entry.AccountID, entry.NeuronID, entry.BlockIndex, entry.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListPoolLedger returns a page of a pool's ledger records, ordered by
// ascending sequence (or descending, newest-first, when requested).
func (s *SQLStore) ListPoolLedger(ctx context.Context, poolID uint64, page PageRequest) ([]*domain.PoolLedgerEntry, error) {
	page = page.Normalize()
	order := "ASC"
	if page.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT pool_id, seq, signed_amount, running_balance, kind, account_id, neuron_id, block_index, created_at
		FROM pool_ledger WHERE pool_id = ? ORDER BY seq %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, query, poolID, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

// ListPoolLedgerByKind returns a page of a pool's ledger records matching
// kind, the secondary type-index query described in §4.9.
func (s *SQLStore) ListPoolLedgerByKind(ctx context.Context, poolID uint64, kind domain.LedgerEntryKind, page PageRequest) ([]*domain.PoolLedgerEntry, error) {
	page = page.Normalize()
	order := "ASC"
	if page.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT pool_id, seq, signed_amount, running_balance, kind, account_id, neuron_id, block_index, created_at
		FROM pool_ledger WHERE pool_id = ? AND kind = ? ORDER BY seq %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, query, poolID, string(kind), page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanLedgerEntries(rows)
}

func scanLedgerEntries(rows *sql.Rows) ([]*domain.PoolLedgerEntry, error) {
	var entries []*domain.PoolLedgerEntry
	for rows.Next() {
		var e domain.PoolLedgerEntry
		var kind string
		if err := rows.Scan(&e.PoolID, &e.Seq, &e.SignedAmount, &e.RunningBalance, &kind, &e.AccountID, &e.NeuronID, &e.BlockIndex, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.LedgerEntryKind(kind)
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// AppendEvent appends a row to the audit event log.
func (s *SQLStore) AppendEvent(ctx context.Context, event *domain.Event) error {
	id, err := s.nextID(ctx, "event")
	if err != nil {
		return err
	}
	event.ID = id
	if event.EventTime.IsZero() {
		event.EventTime = time.Now().UTC()
	}
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO events(id, principal, type, payload, event_time) VALUES(?, ?, ?, ?, ?)`,
		event.ID, event.Principal, string(event.Type), string(payload), event.EventTime)
	return err
}

// ListEvents returns a page of the audit event log, newest-first when
// requested.
func (s *SQLStore) ListEvents(ctx context.Context, page PageRequest) ([]*domain.Event, error) {
	page = page.Normalize()
	order := "ASC"
	if page.Descending {
		order = "DESC"
	}
	query := fmt.Sprintf(`SELECT id, principal, type, payload, event_time FROM events ORDER BY id %s LIMIT ? OFFSET ?`, order)
	rows, err := s.db.QueryContext(ctx, query, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []*domain.Event
	for rows.Next() {
		var e domain.Event
		var eventType, payload string
		if err := rows.Scan(&e.ID, &e.Principal, &eventType, &payload, &e.EventTime); err != nil {
			return nil, err
		}
		e.Type = domain.EventType(eventType)
		if err := json.Unmarshal([]byte(payload), &e.Payload); err != nil {
			return nil, err
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}
