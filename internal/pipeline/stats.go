package pipeline

import (
	"time"

	"github.com/backmassage/pixmaster/internal/checkpoint"
	"github.com/backmassage/pixmaster/internal/display"
)

// RunStats tracks aggregate counters and byte totals across a batch run.
type RunStats struct {
	Total       int // Files discovered.
	Succeeded   int
	Skipped     int // Up to date or LFS pointer.
	Failed      int
	LFSPointers int
	Resumed     int // Completed in an earlier run and skipped without checks.

	InputBytes  int64
	OutputBytes int64
	Elapsed     time.Duration

	DryRun      bool
	Interrupted bool
	Cleared     bool // Checkpoint and error log were removed after a clean run.
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.InputBytes - s.OutputBytes
}

func (s *RunStats) add(out fileOutcome) {
	switch {
	case out.LFSPointer:
		s.LFSPointers++
		s.Skipped++
	case out.Record.Status == checkpoint.StatusSkipped:
		s.Skipped++
	case out.Record.Status == checkpoint.StatusFailed:
		s.Failed++
	default:
		s.Succeeded++
	}
	s.InputBytes += out.InputBytes
	s.OutputBytes += out.OutputBytes
}

// Summary converts the stats into the end-of-job report. errorLog and
// checkpoint are shown only when they were retained.
func (s *RunStats) Summary(errorLog, checkpoint string) display.Summary {
	sum := display.Summary{
		Total:       s.Total,
		Succeeded:   s.Succeeded,
		Skipped:     s.Skipped,
		Failed:      s.Failed,
		LFSPointers: s.LFSPointers,
		Resumed:     s.Resumed,
		InputBytes:  s.InputBytes,
		OutputBytes: s.OutputBytes,
		Elapsed:     s.Elapsed,
		ErrorLog:    errorLog,
	}
	switch {
	case s.DryRun:
		sum.Title = "Dry run"
	case s.Interrupted:
		sum.Title = "Interrupted"
	}
	if !s.DryRun && !s.Cleared {
		sum.Checkpoint = checkpoint
	}
	return sum
}
