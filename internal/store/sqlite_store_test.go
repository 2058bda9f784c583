package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/transfa/economy-service/internal/config"
)

func testStorageConfig(backend, path string) config.StorageConfig {
	return config.StorageConfig{Backend: backend, Path: path}
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "economy.db")

	s, err := Open(ctx, testStorageConfig("sqlite", path))
	if err != nil {
		t.Fatalf("Open err=%v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	empty, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load on fresh db err=%v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected empty ledger, got %v", empty)
	}

	orig := map[string]int64{"alice": 2500, "bob": 75}
	if err := s.Save(ctx, orig); err != nil {
		t.Fatalf("Save err=%v", err)
	}
	if err := s.Save(ctx, map[string]int64{"alice": 2400, "bob": 175}); err != nil {
		t.Fatalf("second Save err=%v", err)
	}

	loaded, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	assertBalances(t, loaded, map[string]int64{"alice": 2400, "bob": 175})
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "economy.db")

	first, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Save(ctx, map[string]int64{"alice": 42}); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}

	second, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = second.Close() })

	loaded, err := second.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	assertBalances(t, loaded, map[string]int64{"alice": 42})
}
