package store

import (
	"context"
	"log"
	"time"
)

// Open probes the configured backends once at startup and returns the
// first one that works: PostgreSQL, then the LevelDB file fallback,
// then memory-only. Detectors never special-case which backend is
// active; they see the same KV either way.
func Open(ctx context.Context, databaseURL, leveldbPath string) KV {
	if databaseURL != "" {
		probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		kv, err := ConnectPostgres(probeCtx, databaseURL)
		cancel()
		if err == nil {
			return kv
		}
		log.Printf("Warning: PostgreSQL unavailable, trying local fallback: %v", err)
	}

	if leveldbPath != "" {
		kv, err := OpenLevelDB(leveldbPath)
		if err == nil {
			return kv
		}
		log.Printf("Warning: LevelDB fallback unavailable, continuing in-memory only: %v", err)
	}

	log.Println("[Store] Using in-memory store; ledgers will not survive a restart")
	return NewMemoryKV()
}
