package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS economy_balances (
	account_id TEXT PRIMARY KEY,
	balance    INTEGER NOT NULL CHECK (balance >= 0),
	updated_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteStore keeps balances in a single-file SQLite database.
type SQLiteStore struct {
	db        *sql.DB
	closeOnce sync.Once
	closeErr  error
}

// OpenSQLiteStore opens (or creates) the database at path and ensures the schema.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create data dir", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, unavailable("open sqlite", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between our own saves.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, unavailable("create sqlite schema", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account_id, balance FROM economy_balances")
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

func (s *SQLiteStore) Save(ctx context.Context, balances map[string]int64) error {
	if err := validateBalances(balances); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("begin tx", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM economy_balances"); err != nil {
		return unavailable("clear balances", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO economy_balances (account_id, balance, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)")
	if err != nil {
		return unavailable("prepare insert", err)
	}
	defer stmt.Close()

	for id, balance := range balances {
		if _, err := stmt.ExecContext(ctx, id, balance); err != nil {
			return unavailable("insert balance", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return unavailable("commit", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.db.Close()
	})
	return s.closeErr
}
