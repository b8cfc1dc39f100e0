package pipeline

import (
	"os"
	"time"
)

// ModTimeFunc returns the modification time of path, or ok=false when the
// path does not exist.
type ModTimeFunc func(path string) (t time.Time, ok bool)

// StatModTime is the ModTimeFunc backed by os.Stat.
func StatModTime(path string) (time.Time, bool) {
	fi, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return fi.ModTime(), true
}

// Freshness is the result of NeedsProcessing.
type Freshness int

const (
	Stale        Freshness = iota // Convert: forced, or an output is missing or older.
	UpToDate                      // Every output is at least as new as the input.
	InputMissing                  // The input vanished; nothing to convert.
)

func (f Freshness) String() string {
	switch f {
	case UpToDate:
		return "up-to-date"
	case InputMissing:
		return "input-missing"
	default:
		return "stale"
	}
}

// NeedsProcessing decides whether input must be converted into outputs.
// force always wins. Otherwise a missing input is reported as such, and the
// file is stale when any output is missing or older than the input.
func NeedsProcessing(input string, outputs []string, force bool, modTime ModTimeFunc) Freshness {
	if force {
		return Stale
	}
	in, ok := modTime(input)
	if !ok {
		return InputMissing
	}
	for _, out := range outputs {
		t, ok := modTime(out)
		if !ok || t.Before(in) {
			return Stale
		}
	}
	return UpToDate
}
