package checkpoint

// Ledger is the ordered record of files processed in a job. It is not safe
// for concurrent use; a job has a single writer.
type Ledger struct {
	order   []string
	records map[string]FileRecord
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]FileRecord)}
}

// LedgerFromState rebuilds a ledger from a loaded checkpoint.
func LedgerFromState(s *JobState) *Ledger {
	l := NewLedger()
	if s == nil {
		return l
	}
	for _, r := range s.Files.Processed {
		l.Record(r)
	}
	return l
}

// Record stores r, replacing any earlier record for the same path in place.
func (l *Ledger) Record(r FileRecord) {
	if _, ok := l.records[r.Path]; !ok {
		l.order = append(l.order, r.Path)
	}
	l.records[r.Path] = r
}

// Get returns the record for path.
func (l *Ledger) Get(path string) (FileRecord, bool) {
	r, ok := l.records[path]
	return r, ok
}

// IsProcessed reports whether path completed without failure, i.e. whether a
// resumed run may skip it. Failed files are retried on resume.
func (l *Ledger) IsProcessed(path string) bool {
	r, ok := l.records[path]
	return ok && r.Status != StatusFailed
}

// Len returns the number of recorded files.
func (l *Ledger) Len() int { return len(l.order) }

// Records returns all records in first-recorded order.
func (l *Ledger) Records() []FileRecord {
	out := make([]FileRecord, 0, len(l.order))
	for _, p := range l.order {
		out = append(out, l.records[p])
	}
	return out
}

// Failed returns the records with StatusFailed.
func (l *Ledger) Failed() []FileRecord {
	var out []FileRecord
	for _, p := range l.order {
		if r := l.records[p]; r.Status == StatusFailed {
			out = append(out, r)
		}
	}
	return out
}

// Progress derives counters from the ledger and the number of files still
// pending.
func (l *Ledger) Progress(remaining int) Progress {
	p := Progress{Processed: len(l.order), Remaining: remaining}
	for _, path := range l.order {
		switch l.records[path].Status {
		case StatusFailed:
			p.Failed++
		case StatusSkipped:
			p.Skipped++
			p.Succeeded++
		default:
			p.Succeeded++
		}
	}
	p.Total = p.Processed + p.Remaining
	return p
}

// Reset empties the ledger.
func (l *Ledger) Reset() {
	l.order = nil
	l.records = make(map[string]FileRecord)
}
