package store

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS economy_balances (
	account_id TEXT PRIMARY KEY,
	balance    BIGINT NOT NULL CHECK (balance >= 0),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore keeps balances in PostgreSQL. Save rewrites the table inside a
// single transaction, so concurrent readers see either the previous or the new
// snapshot under MVCC.
type PostgresStore struct {
	db        *pgxpool.Pool
	closeOnce sync.Once
}

// OpenPostgresStore connects, pings and ensures the schema.
func OpenPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, unavailable("parse database url", err)
	}
	poolConfig.MaxConns = 4
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, unavailable("connect postgres", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping postgres", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, unavailable("create postgres schema", err)
	}
	return NewPostgresStore(pool), nil
}

// NewPostgresStore wraps an existing pool. The store owns the pool from now on.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Load(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.Query(ctx, "SELECT account_id, balance FROM economy_balances")
	if err != nil {
		return nil, unavailable("query balances", err)
	}
	defer rows.Close()

	balances := map[string]int64{}
	for rows.Next() {
		var id string
		var balance int64
		if err := rows.Scan(&id, &balance); err != nil {
			return nil, unavailable("scan balance", err)
		}
		balances[id] = balance
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate balances", err)
	}
	if err := validateBalances(balances); err != nil {
		return nil, err
	}
	return balances, nil
}

func (s *PostgresStore) Save(ctx context.Context, balances map[string]int64) error {
	if err := validateBalances(balances); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM economy_balances"); err != nil {
		return unavailable("clear balances", err)
	}

	now := time.Now().UTC()
	rows := make([][]interface{}, 0, len(balances))
	for id, balance := range balances {
		rows = append(rows, []interface{}{id, balance, now})
	}
	if _, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"economy_balances"},
		[]string{"account_id", "balance", "updated_at"},
		pgx.CopyFromRows(rows),
	); err != nil {
		return unavailable("copy balances", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.closeOnce.Do(s.db.Close)
	return nil
}
