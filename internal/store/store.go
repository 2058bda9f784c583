/**
 * @description
 * This file defines the `Store` interface, the durable side of the ledger. A store
 * maps account identity to balance (in minor units) and supports exactly two data
 * operations: a full load and a full atomic overwrite. Business rules live in the
 * app layer; backends only move bytes.
 *
 * @dependencies
 * - internal/config: Backend selection.
 * - internal/domain: ErrStorageUnavailable.
 */
package store

import (
	"context"
	"fmt"

	"github.com/transfa/economy-service/internal/config"
	"github.com/transfa/economy-service/internal/domain"
)

// Store persists the balance map.
type Store interface {
	// Load returns every persisted balance. A backend that has never been written
	// returns an empty map. Unreadable or corrupt data returns an error wrapping
	// domain.ErrStorageUnavailable.
	Load(ctx context.Context) (map[string]int64, error)
	// Save replaces the persisted map. Readers never observe a partial write.
	Save(ctx context.Context, balances map[string]int64) error
	// Close releases held resources. Calling it more than once is a no-op.
	Close() error
}

// Open builds the store selected by cfg.Backend.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Backend {
	case config.BackendFile:
		return NewFileStore(cfg.Path), nil
	case config.BackendSQLite:
		return OpenSQLiteStore(ctx, cfg.Path)
	case config.BackendPostgres:
		return OpenPostgresStore(ctx, cfg.DatabaseURL)
	case config.BackendRedis:
		return OpenRedisStore(ctx, cfg.RedisURL, cfg.RedisKey)
	case config.BackendMemory:
		return NewMemoryStore(nil), nil
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", domain.ErrStorageUnavailable, cfg.Backend)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrStorageUnavailable, op, err)
}

func validateBalances(balances map[string]int64) error {
	for id, balance := range balances {
		if id == "" {
			return fmt.Errorf("%w: empty account identity", domain.ErrStorageUnavailable)
		}
		if balance < 0 {
			return fmt.Errorf("%w: negative balance %d for account %s", domain.ErrStorageUnavailable, balance, id)
		}
	}
	return nil
}

func copyBalances(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
