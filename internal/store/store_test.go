package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewardloop/abuse-engine/pkg/models"
)

// exerciseKV runs the shared contract checks against any backend.
func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	var missing models.BlockEntry
	found, err := kv.Read(ctx, NSBlocklist, "nope", &missing)
	if err != nil {
		t.Fatalf("read missing: %v", err)
	}
	if found {
		t.Fatal("missing key reported as found")
	}

	entry := models.BlockEntry{
		UnblockAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Reason:    "suspicious_pattern",
	}
	if err := kv.Write(ctx, NSBlocklist, "1.2.3.4", entry); err != nil {
		t.Fatalf("write: %v", err)
	}

	var got models.BlockEntry
	found, err = kv.Read(ctx, NSBlocklist, "1.2.3.4", &got)
	if err != nil || !found {
		t.Fatalf("read back: found=%v err=%v", found, err)
	}
	if !got.UnblockAt.Equal(entry.UnblockAt) || got.Reason != entry.Reason {
		t.Errorf("round trip mismatch: %+v", got)
	}

	// Same key under another namespace is independent.
	var other models.BlockEntry
	if found, _ := kv.Read(ctx, NSIPRecords, "1.2.3.4", &other); found {
		t.Error("namespaces must not collide")
	}

	if err := kv.Delete(ctx, NSBlocklist, "1.2.3.4"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if found, _ := kv.Read(ctx, NSBlocklist, "1.2.3.4", &got); found {
		t.Error("key survived delete")
	}
}

func TestMemoryKV(t *testing.T) {
	kv := NewMemoryKV()
	defer kv.Close()

	if kv.Backend() != "memory" {
		t.Errorf("backend = %q", kv.Backend())
	}
	exerciseKV(t, kv)
}

func TestLevelKV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abuse-engine.db")
	kv, err := OpenLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer kv.Close()

	if kv.Backend() != "leveldb" {
		t.Errorf("backend = %q", kv.Backend())
	}
	exerciseKV(t, kv)
}

func TestLevelKV_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abuse-engine.db")
	ctx := context.Background()

	kv, err := OpenLevelDB(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := kv.Write(ctx, NSCooldowns, "0xA", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := kv.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	kv, err = OpenLevelDB(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer kv.Close()

	var stamp time.Time
	found, err := kv.Read(ctx, NSCooldowns, "0xA", &stamp)
	if err != nil || !found {
		t.Fatalf("read after reopen: found=%v err=%v", found, err)
	}
	if stamp.Year() != 2025 {
		t.Errorf("stamp = %v", stamp)
	}
}

func TestOpen_FallsBackToMemory(t *testing.T) {
	kv := Open(context.Background(), "", "")
	defer kv.Close()

	if kv.Backend() != "memory" {
		t.Errorf("backend = %q, want memory", kv.Backend())
	}
}

func TestOpen_PrefersLevelDBOverMemory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abuse-engine.db")
	kv := Open(context.Background(), "", path)
	defer kv.Close()

	if kv.Backend() != "leveldb" {
		t.Errorf("backend = %q, want leveldb", kv.Backend())
	}
}
