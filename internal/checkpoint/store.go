package checkpoint

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Clearer is the part of the error log the store removes on clean
// completion.
type Clearer interface {
	Clear() error
}

// Store saves and restores JobState through a Backend.
type Store struct {
	backend       Backend
	errors        Clearer
	runID         string
	startedAt     time.Time
	configuration map[string]any
	now           func() time.Time
}

// NewStore returns a store for a fresh run. errLog may be nil.
func NewStore(backend Backend, errLog Clearer, configuration map[string]any) *Store {
	return &Store{
		backend:       backend,
		errors:        errLog,
		runID:         uuid.NewString(),
		startedAt:     time.Now().UTC(),
		configuration: configuration,
		now:           time.Now,
	}
}

// RunID identifies the job across resumes.
func (s *Store) RunID() string { return s.runID }

// StartedAt is when the job (not this process) started.
func (s *Store) StartedAt() time.Time { return s.startedAt }

// Adopt continues the run described by a loaded state: its run ID and
// start time carry over to subsequent saves.
func (s *Store) Adopt(st *JobState) {
	if st == nil {
		return
	}
	if st.RunID != "" {
		s.runID = st.RunID
	}
	if !st.StartedAt.IsZero() {
		s.startedAt = st.StartedAt
	}
}

// Load returns the stored state, or nil when there is none or it was
// written with another schema version. A document that cannot be parsed
// yields ErrCorrupt.
func (s *Store) Load() (*JobState, error) {
	data, err := s.backend.Read()
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if st.Version != Version {
		return nil, nil
	}
	return st, nil
}

// Save rebuilds the full JobState from the ledger and the pending paths and
// overwrites the stored checkpoint.
func (s *Store) Save(ledger *Ledger, pending []string) error {
	st := s.Snapshot(ledger, pending)
	data, err := st.Marshal()
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}
	return s.backend.Write(data)
}

// Snapshot builds the JobState that Save would persist.
func (s *Store) Snapshot(ledger *Ledger, pending []string) *JobState {
	p := make([]string, len(pending))
	copy(p, pending)
	return &JobState{
		Version:       Version,
		RunID:         s.runID,
		StartedAt:     s.startedAt,
		LastUpdatedAt: s.now().UTC(),
		Configuration: s.configuration,
		Progress:      ledger.Progress(len(pending)),
		Files: Files{
			Processed: ledger.Records(),
			Pending:   p,
		},
	}
}

// Clear removes the checkpoint and the error log and empties ledger. It is
// meant for a job that finished with zero failures.
func (s *Store) Clear(ledger *Ledger) error {
	var errs []error
	if err := s.backend.Remove(); err != nil {
		errs = append(errs, err)
	}
	if s.errors != nil {
		if err := s.errors.Clear(); err != nil {
			errs = append(errs, err)
		}
	}
	if ledger != nil {
		ledger.Reset()
	}
	return errors.Join(errs...)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}
