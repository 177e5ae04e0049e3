package store

import "fmt"

// compositeStore satisfies Store by combining the SQLite-backed relational
// store with the goleveldb-backed ordered index store.
type compositeStore struct {
	*SQLStore
	*LevelIndex
}

// Close closes both backing stores, returning the first error encountered.
func (c *compositeStore) Close() error {
	sqlErr := c.SQLStore.Close()
	idxErr := c.LevelIndex.Close()
	if sqlErr != nil {
		return sqlErr
	}
	return idxErr
}

// Open opens the entity store at sqlitePath and the ordered-index store at
// levelIndexPath, returning the combined Store. Both paths are created if
// absent.
func Open(sqlitePath, levelIndexPath string) (Store, error) {
	sqlStore, err := openSQLite(sqlitePath)
	if err != nil {
		return nil, fmt.Errorf("store: open entity store: %w", err)
	}
	levelIndex, err := NewLevelIndex(levelIndexPath)
	if err != nil {
		_ = sqlStore.Close()
		return nil, fmt.Errorf("store: open index store: %w", err)
	}
	return &compositeStore{SQLStore: sqlStore, LevelIndex: levelIndex}, nil
}
