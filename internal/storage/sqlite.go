package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteMedium is a Medium backed by a single-table SQLite database. The
// table holds one row per key; the annotation store only ever uses one.
type SQLiteMedium struct {
	db *sql.DB
}

// DefaultDBPath returns the default database location under the user's
// home directory.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".whisper-web", "annotations.sqlite")
}

// OpenSQLite opens (creating if necessary) the database at path and
// ensures the kv table exists.
func OpenSQLite(path string) (*SQLiteMedium, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create kv table: %w", err)
	}

	return &SQLiteMedium{db: db}, nil
}

// Close closes the database connection.
func (m *SQLiteMedium) Close() error {
	return m.db.Close()
}

// Get returns the value for key and whether a row was found.
func (m *SQLiteMedium) Get(key string) (string, bool, error) {
	var value string
	err := m.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query kv: %w", err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous row.
func (m *SQLiteMedium) Set(key, value string) error {
	if _, err := m.db.Exec(`
		INSERT INTO kv (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value); err != nil {
		return fmt.Errorf("upsert kv: %w", err)
	}
	return nil
}

// Delete removes key; absent keys are a no-op.
func (m *SQLiteMedium) Delete(key string) error {
	if _, err := m.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete kv: %w", err)
	}
	return nil
}
