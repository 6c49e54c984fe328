package cooldown

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"AutoLP-Chain/internal/clock"
	apperrors "AutoLP-Chain/internal/errors"
	"AutoLP-Chain/internal/storage/sqldb"
)

type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (Record, bool, error) {
	return Record{}, false, errors.New("disk on fire")
}

func (brokenStore) Save(context.Context, string, Record) error { return errors.New("read-only") }

func TestGateLifecycle(t *testing.T) {
	fake := clock.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	gate := NewGate(NewMemoryStore(), "swap-eth", 48*time.Hour, fake)
	ctx := context.Background()

	if status, err := gate.Check(ctx); err != nil || status.Found {
		t.Fatalf("fresh gate must be open: %+v %v", status, err)
	}
	if err := gate.Mark(ctx, ""); err != nil {
		t.Fatalf("mark: %v", err)
	}

	fake.Advance(47 * time.Hour)
	status, err := gate.Check(ctx)
	if !apperrors.HasCode(err, CodeCooldownActive) {
		t.Fatalf("expected COOLDOWN_ACTIVE, got %v", err)
	}
	if status.Remaining != time.Hour {
		t.Fatalf("expected 1h remaining, got %s", status.Remaining)
	}

	fake.Advance(time.Hour)
	if _, err := gate.Check(ctx); err != nil {
		t.Fatalf("gate must open after the interval: %v", err)
	}
}

func TestGateTreatsUnreadableStoreAsOpen(t *testing.T) {
	gate := NewGate(brokenStore{}, "k", time.Hour, nil)
	if _, err := gate.Check(context.Background()); err != nil {
		t.Fatalf("broken store must not block: %v", err)
	}
	err := gate.Mark(context.Background(), "done")
	if !apperrors.HasCode(err, apperrors.CodeStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "cooldown.json")
	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, found, err := store.Load(ctx, "swap-eth"); err != nil || found {
		t.Fatalf("missing file must read as absent: %v %v", found, err)
	}

	when := time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC)
	if err := store.Save(ctx, "swap-eth", Record{Timestamp: when, Message: "Cooldown 48h"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	record, found, err := store.Load(ctx, "swap-eth")
	if err != nil || !found {
		t.Fatalf("load: %v %v", found, err)
	}
	if !record.Timestamp.Equal(when) || record.Message != "Cooldown 48h" {
		t.Fatalf("unexpected record %+v", record)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("temporary files must not be left behind, got %d entries", len(entries))
	}
}

func TestFileStoreReadsISOTimestamps(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldown.json")
	doc := `{
  "timestamp": "2025-01-02T03:04:05.678Z",
  "message": "Cooldown 48 jam setelah operasi"
}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewFileStore(path)
	record, found, err := store.Load(context.Background(), "")
	if err != nil || !found {
		t.Fatalf("load: %v %v", found, err)
	}
	want := time.Date(2025, 1, 2, 3, 4, 5, 678000000, time.UTC)
	if !record.Timestamp.Equal(want) {
		t.Fatalf("unexpected timestamp %s", record.Timestamp)
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cooldown.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	store, _ := NewFileStore(path)
	if _, _, err := store.Load(context.Background(), ""); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestUpsertQueryPerDialect(t *testing.T) {
	if q := upsertQuery(sqldb.Postgres); !strings.Contains(q, "ON CONFLICT (name)") {
		t.Fatalf("postgres upsert must use ON CONFLICT: %s", q)
	}
	if q := upsertQuery(sqldb.MySQL); !strings.Contains(q, "ON DUPLICATE KEY UPDATE") {
		t.Fatalf("mysql upsert must use ON DUPLICATE KEY: %s", q)
	}
}

func TestNewRedisStoreRequiresAddress(t *testing.T) {
	if _, err := NewRedisStore(context.Background(), RedisConfig{}); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
