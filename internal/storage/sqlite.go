package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"

	"github.com/ygopack/packtrack/internal/common"
	"github.com/ygopack/packtrack/internal/service"
)

// SQLiteBackend is the indexed persistent object store, the top tier.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteBackend opens (or creates) the SQLite store at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("%w: dbPath is empty", common.ErrInvalidConfig)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't benefit from multiple connections.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create kv table: %w", classifySQLiteError(err))
	}

	return &SQLiteBackend{db: db, dbPath: dbPath}, nil
}

// Kind returns the backend tier identifier.
func (s *SQLiteBackend) Kind() service.BackendKind { return service.BackendIndexed }

// Probe verifies the store can be reached. Per the selection policy this
// is an open/ping rather than a write round-trip.
func (s *SQLiteBackend) Probe(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return classifySQLiteError(err)
	}
	return nil
}

// Get returns the stored value for key.
func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classifySQLiteError(err)
	}
	return []byte(value), true, nil
}

// Set stores value under key, replacing any existing entry.
func (s *SQLiteBackend) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, string(value))
	if err != nil {
		return classifySQLiteError(err)
	}
	return nil
}

// Remove deletes key. Removing an absent key is not an error.
func (s *SQLiteBackend) Remove(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return classifySQLiteError(err)
	}
	return nil
}

// Keys lists all stored keys in sorted order.
func (s *SQLiteBackend) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM kv ORDER BY key")
	if err != nil {
		return nil, classifySQLiteError(err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clear removes every entry.
func (s *SQLiteBackend) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv"); err != nil {
		return classifySQLiteError(err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

// classifySQLiteError maps driver errors onto the storage error taxonomy
// so the error boundary can tell quota from access failures.
func classifySQLiteError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrFull:
			return fmt.Errorf("%w: %v", common.ErrQuotaExceeded, err)
		case sqlite3.ErrAuth, sqlite3.ErrPerm, sqlite3.ErrReadonly:
			return fmt.Errorf("%w: %v", common.ErrAccessDenied, err)
		case sqlite3.ErrCorrupt, sqlite3.ErrNotADB:
			return fmt.Errorf("%w: %v", common.ErrCorruptedData, err)
		}
	}
	return err
}
