package checkpoint

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteBackend keeps the checkpoint document in a single-row SQLite table.
// The database is opened lazily and closed by Remove so the file can be
// deleted.
type SQLiteBackend struct {
	path string
	mu   sync.Mutex
	db   *sql.DB
}

// NewSQLiteBackend returns a backend for the database at path.
func NewSQLiteBackend(path string) *SQLiteBackend {
	return &SQLiteBackend{path: path}
}

// Path returns the database path.
func (b *SQLiteBackend) Path() string { return b.path }

func (b *SQLiteBackend) open() (*sql.DB, error) {
	if b.db != nil {
		return b.db, nil
	}
	if dir := filepath.Dir(b.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create parent for %s: %w", b.path, err)
		}
	}
	db, err := sql.Open("sqlite", b.path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS checkpoint (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			updated_at TEXT NOT NULL,
			data BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	b.db = db
	return db, nil
}

// Read implements Backend.
func (b *SQLiteBackend) Read() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := os.Stat(b.path); errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	db, err := b.open()
	if err != nil {
		return nil, err
	}

	var data []byte
	err = db.QueryRow(`SELECT data FROM checkpoint WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	return data, nil
}

// Write implements Backend. The upsert is a single statement, so SQLite's
// own journaling makes it atomic.
func (b *SQLiteBackend) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	db, err := b.open()
	if err != nil {
		return err
	}
	_, err = db.Exec(`
		INSERT INTO checkpoint (id, updated_at, data) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			data = excluded.data
	`, time.Now().UTC().Format(time.RFC3339Nano), data)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// Remove implements Backend by closing the database and deleting its files.
func (b *SQLiteBackend) Remove() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.db != nil {
		if err := b.db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}
		b.db = nil
	}
	for _, p := range []string{b.path, b.path + "-wal", b.path + "-shm", b.path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// Close implements Backend.
func (b *SQLiteBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	return err
}
