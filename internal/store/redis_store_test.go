package store

import (
	"context"
	"errors"
	"testing"

	"github.com/transfa/economy-service/internal/domain"
)

func TestRedisBalanceCodecRoundTrip(t *testing.T) {
	orig := map[string]int64{"alice": 100, "bob": 0}
	fields := encodeRedisBalances(orig)

	raw := make(map[string]string, len(fields))
	for k, v := range fields {
		raw[k] = v.(string)
	}
	decoded, err := decodeRedisBalances(raw)
	if err != nil {
		t.Fatalf("decode err=%v", err)
	}
	assertBalances(t, decoded, orig)
}

func TestRedisBalanceDecodeRejectsGarbage(t *testing.T) {
	_, err := decodeRedisBalances(map[string]string{"alice": "12.5"})
	if !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", err)
	}
}

func TestNewRedisStoreDefaultsKey(t *testing.T) {
	s := NewRedisStore(nil, "  ")
	if s.key != "economy:balances" {
		t.Fatalf("expected default key, got %q", s.key)
	}
}

func TestMemoryStoreFailureInjection(t *testing.T) {
	s := NewMemoryStore(map[string]int64{"alice": 1})
	s.FailWith(domain.ErrStorageUnavailable)
	if _, err := s.Load(context.Background()); !errors.Is(err, domain.ErrStorageUnavailable) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	s.FailWith(nil)
	loaded, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	assertBalances(t, loaded, map[string]int64{"alice": 1})
}
