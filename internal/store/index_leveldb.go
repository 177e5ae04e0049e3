package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const (
	deadlinePrefix        = "deadline:"
	recoverableErrorPrefix = "recoverable:"
)

// LevelIndex is the goleveldb-backed ordered secondary index store: the
// per-day deadline index the maturity sweep iterates, and the per-pool
// recoverable-error index the recovery sweep iterates. Both are built on
// byte-sortable composite keys so a prefix scan returns an ordered listing
// with no secondary sort step, mirroring the nonce store's observed-key
// index in this codebase.
type LevelIndex struct {
	db *leveldb.DB
}

// NewLevelIndex opens (or creates) a LevelDB database at path.
func NewLevelIndex(path string) (*LevelIndex, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("store: leveldb index path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("store: resolve leveldb index path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb index: %w", err)
	}
	return &LevelIndex{db: db}, nil
}

// Close releases the underlying LevelDB resources.
func (l *LevelIndex) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func deadlineKey(day string, accountID uint64) string {
	return fmt.Sprintf("%s%s:%020d", deadlinePrefix, day, accountID)
}

// AddToDeadlineIndex records that accountID matures on day, so the maturity
// sweep can find it with a single prefix scan.
func (l *LevelIndex) AddToDeadlineIndex(ctx context.Context, day string, accountID uint64) error {
	return l.db.Put([]byte(deadlineKey(day, accountID)), encodeAccountID(accountID), nil)
}

// RemoveFromDeadlineIndex removes an account from the deadline index, used
// when an account unstakes early or is otherwise resolved before its
// scheduled maturity day.
func (l *LevelIndex) RemoveFromDeadlineIndex(ctx context.Context, day string, accountID uint64) error {
	return l.db.Delete([]byte(deadlineKey(day, accountID)), nil)
}

// AccountsDueOn returns every account id maturing on day.
func (l *LevelIndex) AccountsDueOn(ctx context.Context, day string) ([]uint64, error) {
	prefix := []byte(deadlinePrefix + day + ":")
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []uint64
	for iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		id, ok := decodeAccountIDKeySuffix(iter.Key(), prefix)
		if !ok {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate deadline index: %w", err)
	}
	return ids, nil
}

func recoverableErrorKey(poolID, accountID uint64) string {
	return fmt.Sprintf("%s%020d:%020d", recoverableErrorPrefix, poolID, accountID)
}

// AddToRecoverableErrorIndex pins an account into the recoverable-error
// index so the recovery sweep finds it regardless of which pool it belongs
// to.
func (l *LevelIndex) AddToRecoverableErrorIndex(ctx context.Context, poolID, accountID uint64) error {
	return l.db.Put([]byte(recoverableErrorKey(poolID, accountID)), encodeAccountID(accountID), nil)
}

// RemoveFromRecoverableErrorIndex clears an account from the
// recoverable-error index once the recovery orchestrator resolves it.
func (l *LevelIndex) RemoveFromRecoverableErrorIndex(ctx context.Context, poolID, accountID uint64) error {
	return l.db.Delete([]byte(recoverableErrorKey(poolID, accountID)), nil)
}

// AllRecoverableErrorAccounts returns every account id currently pinned in
// the recoverable-error index, across all pools.
func (l *LevelIndex) AllRecoverableErrorAccounts(ctx context.Context) ([]uint64, error) {
	prefix := []byte(recoverableErrorPrefix)
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var ids []uint64
	for iter.Next() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		val := iter.Value()
		if len(val) != 8 {
			continue
		}
		ids = append(ids, binary.BigEndian.Uint64(val))
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate recoverable-error index: %w", err)
	}
	return ids, nil
}

func encodeAccountID(id uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, id)
	return buf
}

func decodeAccountIDKeySuffix(key, prefix []byte) (uint64, bool) {
	if len(key) <= len(prefix) {
		return 0, false
	}
	suffix := string(key[len(prefix):])
	id, err := strconv.ParseUint(suffix, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
