// Package sqlite provides a SQLite-backed kv.Store persisting chain state.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/louisbranch/accord/internal/platform/storage/sqlitemigrate"

	"github.com/louisbranch/accord/internal/kv"
	"github.com/louisbranch/accord/internal/kv/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists key-value state in a single SQLite table.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite chain-state store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Get implements kv.Store.
func (s *Store) Get(key []byte) ([]byte, error) {
	row := s.sqlDB.QueryRow(`SELECT value FROM chain_state WHERE key = ?`, key)
	var value []byte
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chain state: %w", err)
	}
	return value, nil
}

// Set implements kv.Store.
func (s *Store) Set(key, value []byte) error {
	_, err := s.sqlDB.Exec(`
INSERT INTO chain_state (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set chain state: %w", err)
	}
	return nil
}

// Delete implements kv.Store.
func (s *Store) Delete(key []byte) error {
	if _, err := s.sqlDB.Exec(`DELETE FROM chain_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete chain state: %w", err)
	}
	return nil
}

// Iterate implements kv.Store using a ranged scan in key order.
func (s *Store) Iterate(prefix []byte, fn func(key, value []byte) (bool, error)) error {
	var (
		rows *sql.Rows
		err  error
	)
	switch end := kv.PrefixEnd(prefix); {
	case len(prefix) == 0:
		rows, err = s.sqlDB.Query(
			`SELECT key, value FROM chain_state ORDER BY key`)
	case end == nil:
		rows, err = s.sqlDB.Query(
			`SELECT key, value FROM chain_state WHERE key >= ? ORDER BY key`, prefix)
	default:
		rows, err = s.sqlDB.Query(
			`SELECT key, value FROM chain_state WHERE key >= ? AND key < ? ORDER BY key`, prefix, end)
	}
	if err != nil {
		return fmt.Errorf("iterate chain state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var key, value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return fmt.Errorf("scan chain state row: %w", err)
		}
		cont, err := fn(key, value)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate chain state rows: %w", err)
	}
	return nil
}
