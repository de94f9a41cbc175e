package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/syndtr/goleveldb/leveldb"
	lerrors "github.com/syndtr/goleveldb/leveldb/errors"
)

// LevelKV is the local-file fallback backend used when PostgreSQL is
// unreachable. Keys are composed as "namespace:key", values are JSON.
type LevelKV struct {
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the fallback database at path.
func OpenLevelDB(path string) (*LevelKV, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback database: %v", err)
	}
	log.Printf("[Store] LevelDB fallback open at %s", path)
	return &LevelKV{db: db}, nil
}

func levelKey(namespace, key string) []byte {
	return []byte(namespace + ":" + key)
}

func (s *LevelKV) Read(_ context.Context, namespace, key string, out any) (bool, error) {
	raw, err := s.db.Get(levelKey(namespace, key), nil)
	if err == lerrors.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt blob %s/%s: %v", namespace, key, err)
	}
	return true, nil
}

func (s *LevelKV) Write(_ context.Context, namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %v", namespace, key, err)
	}
	return s.db.Put(levelKey(namespace, key), raw, nil)
}

func (s *LevelKV) Delete(_ context.Context, namespace, key string) error {
	return s.db.Delete(levelKey(namespace, key), nil)
}

func (s *LevelKV) Backend() string { return "leveldb" }

func (s *LevelKV) Close() error { return s.db.Close() }
