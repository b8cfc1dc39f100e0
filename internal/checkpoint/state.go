// Package checkpoint persists batch progress so an interrupted run can
// resume without redoing completed files.
//
// The in-memory [Ledger] is owned by the caller and handed to [Store.Save],
// which recomputes progress from it on every call and overwrites the
// checkpoint atomically.
package checkpoint

import (
	"encoding/json"
	"time"
)

// Version is the checkpoint schema version. Checkpoints written with a
// different version are ignored on load.
const Version = 1

// Status is the terminal state of one file in a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// FileError is the failure recorded against a file.
type FileError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// FileRecord is the outcome of processing one file.
type FileRecord struct {
	Path       string     `json:"path"`
	Status     Status     `json:"status"`
	Attempts   int        `json:"attempts"`
	Error      *FileError `json:"error,omitempty"`
	Outputs    []string   `json:"outputs,omitempty"`
	SkipReason string     `json:"skipReason,omitempty"`
}

// Progress counters. Succeeded includes skipped files, so
// Succeeded+Failed == Processed and Processed+Remaining == Total.
type Progress struct {
	Total     int `json:"total"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Remaining int `json:"remaining"`
}

// Files lists processed records and still-pending paths.
type Files struct {
	Processed []FileRecord `json:"processed"`
	Pending   []string     `json:"pending"`
}

// JobState is the persisted checkpoint document.
type JobState struct {
	Version       int            `json:"version"`
	RunID         string         `json:"runId"`
	StartedAt     time.Time      `json:"startedAt"`
	LastUpdatedAt time.Time      `json:"lastUpdatedAt"`
	Configuration map[string]any `json:"configuration,omitempty"`
	Progress      Progress       `json:"progress"`
	Files         Files          `json:"files"`
}

// StartIndex is the count-based resume position: the number of files
// already processed.
func (s *JobState) StartIndex() int {
	return s.Progress.Processed
}

// Marshal serializes the state as indented JSON.
func (s *JobState) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Unmarshal parses a JobState.
func Unmarshal(data []byte) (*JobState, error) {
	var s JobState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
