package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryKV is the last-resort backend: process-lifetime only. It is
// also what the detector tests run against.
type MemoryKV struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{blobs: make(map[string][]byte)}
}

func memKey(namespace, key string) string {
	return namespace + ":" + key
}

func (s *MemoryKV) Read(_ context.Context, namespace, key string, out any) (bool, error) {
	s.mu.RLock()
	raw, ok := s.blobs[memKey(namespace, key)]
	s.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt blob %s/%s: %v", namespace, key, err)
	}
	return true, nil
}

func (s *MemoryKV) Write(_ context.Context, namespace, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s/%s: %v", namespace, key, err)
	}
	s.mu.Lock()
	s.blobs[memKey(namespace, key)] = raw
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	delete(s.blobs, memKey(namespace, key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryKV) Backend() string { return "memory" }

func (s *MemoryKV) Close() error { return nil }
