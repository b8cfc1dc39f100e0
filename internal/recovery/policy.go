package recovery

import (
	"strings"
	"time"
)

// retryableCodes are transient filesystem and network conditions.
var retryableCodes = map[string]bool{
	"EBUSY":        true,
	"ETIMEDOUT":    true,
	"ECONNRESET":   true,
	"ECONNREFUSED": true,
	"ECONNABORTED": true,
	"EAGAIN":       true,
	"EMFILE":       true,
	"ENFILE":       true,
	"EPIPE":        true,
	"ENOTFOUND":    true,
	"EAI_AGAIN":    true,
	"EHOSTUNREACH": true,
	"ENETUNREACH":  true,
}

// lfsMarker in an error message flags a failed large-file fetch, which is
// worth retrying regardless of code.
const lfsMarker = "LFS"

// Policy decides retryability and backoff. MaxRetries is the total number
// of attempts per unit of work.
type Policy struct {
	MaxRetries  int
	BaseDelay   time.Duration
	Exponential bool
}

// DefaultPolicy is three attempts, one second apart, doubling.
var DefaultPolicy = Policy{
	MaxRetries:  3,
	BaseDelay:   time.Second,
	Exponential: true,
}

// Attempts returns the effective attempt limit (at least 1).
func (p Policy) Attempts() int {
	if p.MaxRetries < 1 {
		return 1
	}
	return p.MaxRetries
}

// IsRetryable reports whether err is worth another attempt.
func (p Policy) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if retryableCodes[Code(err)] {
		return true
	}
	return strings.Contains(err.Error(), lfsMarker)
}

// maxDelay caps exponential backoff. A BaseDelay above it is still honored.
const maxDelay = time.Hour

// DelayForAttempt returns the pause after failed attempt n (1-based).
// Attempt 1 always waits BaseDelay; later attempts double when Exponential
// is set, up to maxDelay.
func (p Policy) DelayForAttempt(n int) time.Duration {
	if n <= 1 || !p.Exponential || p.BaseDelay <= 0 {
		return p.BaseDelay
	}
	limit := max(maxDelay, p.BaseDelay)
	d := p.BaseDelay
	for i := 1; i < n && d < limit; i++ {
		d *= 2
	}
	return min(d, limit)
}
