package recovery

import (
	"context"
	"time"
)

// Context describes the unit of work for logging. Extra is merged into the
// error log entry context alongside retryCount.
type Context struct {
	File      string
	Operation string
	Extra     map[string]any
}

// Outcome is the terminal result of [Execute] on the non-fatal path.
type Outcome[T any] struct {
	Success  bool
	Value    T
	Err      error
	Attempts int
}

// RetryFunc is notified before each backoff sleep.
type RetryFunc func(file string, attempt int, delay time.Duration, err error)

// LogFailureFunc is notified when a failure could not be appended to the
// error log. logErr is the write error, err the failure being logged.
type LogFailureFunc func(file string, err, logErr error)

// Coordinator holds the retry policy, the error log, and the
// continue-on-error setting shared by every unit of work in a job.
type Coordinator struct {
	policy          Policy
	log             *ErrorLog
	continueOnError bool
	sleep           func(time.Duration)
	onRetry         RetryFunc
	onLogFailure    LogFailureFunc
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithSleep replaces time.Sleep, for tests.
func WithSleep(fn func(time.Duration)) Option {
	return func(c *Coordinator) { c.sleep = fn }
}

// WithRetryHook registers fn to run before every backoff sleep.
func WithRetryHook(fn RetryFunc) Option {
	return func(c *Coordinator) { c.onRetry = fn }
}

// WithLogFailureHook registers fn to run when an error log append fails.
func WithLogFailureHook(fn LogFailureFunc) Option {
	return func(c *Coordinator) { c.onLogFailure = fn }
}

// NewCoordinator builds a Coordinator. log may be nil to disable logging.
func NewCoordinator(policy Policy, log *ErrorLog, continueOnError bool, opts ...Option) *Coordinator {
	c := &Coordinator{
		policy:          policy,
		log:             log,
		continueOnError: continueOnError,
		sleep:           time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the coordinator's retry policy.
func (c *Coordinator) Policy() Policy { return c.policy }

// ContinueOnError reports whether terminal failures are contained.
func (c *Coordinator) ContinueOnError() bool { return c.continueOnError }

// Execute runs op until it succeeds, fails with a non-retryable error, or
// exhausts the policy's attempts. The final failure, and only the final
// failure, is appended to the error log. When continue-on-error is off the
// failure is also returned as a *FatalError.
//
// A failure seen after ctx is done belongs to the interruption, not to the
// unit of work: it is neither retried, logged, nor made fatal. The backoff
// sleep is not interruptible; ctx is handed to op unchanged.
func Execute[T any](ctx context.Context, c *Coordinator, wc Context, op func(ctx context.Context, attempt int) (T, error)) (Outcome[T], error) {
	limit := c.policy.Attempts()
	for attempt := 1; ; attempt++ {
		value, err := op(ctx, attempt)
		if err == nil {
			return Outcome[T]{Success: true, Value: value, Attempts: attempt}, nil
		}
		if ctx.Err() != nil {
			return Outcome[T]{Success: false, Err: err, Attempts: attempt}, nil
		}

		if attempt >= limit || !c.policy.IsRetryable(err) {
			c.record(wc, err, attempt)
			out := Outcome[T]{Success: false, Err: err, Attempts: attempt}
			if !c.continueOnError {
				return out, &FatalError{File: wc.File, Attempts: attempt, Err: err}
			}
			return out, nil
		}

		delay := c.policy.DelayForAttempt(attempt)
		if c.onRetry != nil {
			c.onRetry(wc.File, attempt, delay, err)
		}
		c.sleep(delay)
	}
}

// Record appends a terminal failure that did not go through Execute, such
// as a missing input or a file that stayed an LFS pointer after pulling.
func (c *Coordinator) Record(wc Context, err error, attempts int) {
	c.record(wc, err, attempts)
}

func (c *Coordinator) record(wc Context, err error, attempts int) {
	if c.log == nil {
		return
	}
	extra := make(map[string]any, len(wc.Extra)+2)
	for k, v := range wc.Extra {
		extra[k] = v
	}
	if wc.Operation != "" {
		extra["operation"] = wc.Operation
	}
	extra["retryCount"] = attempts
	// A failed log write must not mask the failure being logged.
	if logErr := c.log.Append(wc.File, err, extra); logErr != nil && c.onLogFailure != nil {
		c.onLogFailure(wc.File, err, logErr)
	}
}
