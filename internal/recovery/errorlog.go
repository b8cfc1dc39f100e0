package recovery

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one line of the error log.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	File      string         `json:"file"`
	Error     EntryError     `json:"error"`
	Context   map[string]any `json:"context"`
}

// EntryError describes the failure recorded in an Entry.
type EntryError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// ErrorLog appends one JSON object per line to a file and mirrors every
// entry in memory for end-of-run reporting. An empty path keeps entries in
// memory only.
type ErrorLog struct {
	mu      sync.Mutex
	path    string
	entries []Entry
	now     func() time.Time
}

// NewErrorLog returns a log writing to path.
func NewErrorLog(path string) *ErrorLog {
	return &ErrorLog{path: path, now: time.Now}
}

// Path returns the backing file path.
func (l *ErrorLog) Path() string { return l.path }

// Append records a failure for file. extra is copied into the entry context.
func (l *ErrorLog) Append(file string, err error, extra map[string]any) error {
	entry := Entry{
		Timestamp: l.now().UTC(),
		File:      file,
		Error: EntryError{
			Message: err.Error(),
			Code:    Code(err),
			Stack:   chain(err),
		},
		Context: make(map[string]any, len(extra)),
	}
	for k, v := range extra {
		entry.Context[k] = v
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)

	if l.path == "" {
		return nil
	}
	data, mErr := json.Marshal(entry)
	if mErr != nil {
		return fmt.Errorf("marshal error log entry: %w", mErr)
	}
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create error log directory: %w", err)
		}
	}
	f, oErr := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if oErr != nil {
		return fmt.Errorf("open error log: %w", oErr)
	}
	if _, wErr := f.Write(append(data, '\n')); wErr != nil {
		f.Close()
		return fmt.Errorf("write error log: %w", wErr)
	}
	return f.Close()
}

// Entries returns a copy of the entries appended during this process.
func (l *ErrorLog) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries appended during this process.
func (l *ErrorLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Clear deletes the backing file and empties the in-memory mirror.
func (l *ErrorLog) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	if l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove error log: %w", err)
	}
	return nil
}

// ReadEntries parses an error log file. A missing file yields no entries.
// Malformed lines are skipped.
func ReadEntries(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if err := sc.Err(); err != nil {
		return entries, fmt.Errorf("read error log: %w", err)
	}
	return entries, nil
}
