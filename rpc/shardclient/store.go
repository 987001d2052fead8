package shardclient

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
)

// LevelDBStore keeps immutable upstream responses on disk across restarts.
type LevelDBStore struct {
	db *leveldb.DB
}

// OpenLevelDBStore opens (or creates) a LevelDB database at path.
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, fmt.Errorf("leveldb cache path required")
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb cache path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb cache: %w", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key string) ([]byte, bool, error) {
	value, err := s.db.Get([]byte(key), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return nil, false, nil
	case err != nil:
		return nil, false, fmt.Errorf("leveldb get: %w", err)
	}
	return value, true, nil
}

func (s *LevelDBStore) Put(key string, value []byte) error {
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return fmt.Errorf("leveldb put: %w", err)
	}
	return nil
}

// Close releases the underlying LevelDB resources.
func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
