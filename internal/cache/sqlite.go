// SPDX-License-Identifier: MIT

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anilwee/dialog/internal/persistence/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS translations (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`

// SQLiteStore persists entries in a single SQLite table.
type SQLiteStore struct {
	counters
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("cache: sqlite backend requires a path")
	}
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("cache: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM translations WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		s.hit(false)
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: sqlite get: %w", err)
	}
	s.hit(true)
	return v, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key, value string) error {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO translations (key, value, created_at) VALUES (?, ?, ?)",
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("cache: sqlite put: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.puts.Add(1)
	}
	return nil
}

func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM translations").Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: sqlite count: %w", err)
	}
	return n, nil
}

// Verify runs an integrity check and returns any problems found.
func (s *SQLiteStore) Verify(ctx context.Context, full bool) ([]string, error) {
	return sqlite.VerifyIntegrity(ctx, s.db, full)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
