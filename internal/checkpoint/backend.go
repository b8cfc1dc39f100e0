package checkpoint

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Backend stores the serialized checkpoint document.
type Backend interface {
	// Read returns the stored document, or ErrNotFound.
	Read() ([]byte, error)
	// Write replaces the stored document.
	Write(data []byte) error
	// Remove deletes the stored document. Missing is not an error.
	Remove() error
	// Close releases resources.
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	ErrNotFound = errors.New("checkpoint not found")
	ErrCorrupt  = errors.New("checkpoint corrupt")
)

// OpenBackend picks a backend by file extension: ".db", ".sqlite" and
// ".sqlite3" use SQLite; anything else is a JSON file.
func OpenBackend(path string) (Backend, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteBackend(path), nil
	default:
		return NewFileBackend(path), nil
	}
}

// FileBackend keeps the checkpoint as a JSON file, replaced atomically via
// temp file and rename so a crash mid-write never leaves a torn document.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the checkpoint file path.
func (b *FileBackend) Path() string { return b.path }

// Read implements Backend.
func (b *FileBackend) Read() ([]byte, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", b.path, err)
	}
	return data, nil
}

// Write implements Backend.
func (b *FileBackend) Write(data []byte) error {
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", b.path, err)
	}

	tmp, err := os.CreateTemp(dir, ".pixmaster-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", b.path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file for %s: %w", b.path, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file for %s: %w", b.path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file for %s: %w", b.path, err)
	}
	if err := os.Rename(tmpPath, b.path); err != nil {
		cleanup()
		return fmt.Errorf("atomic rename for %s: %w", b.path, err)
	}
	return nil
}

// Remove implements Backend.
func (b *FileBackend) Remove() error {
	if err := os.Remove(b.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove checkpoint %s: %w", b.path, err)
	}
	return nil
}

// Close implements Backend.
func (b *FileBackend) Close() error { return nil }
