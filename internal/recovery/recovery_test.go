package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Code ---

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"coded", NewCodedError("ECORRUPT", "bad data", nil), "ECORRUPT"},
		{"wrapped coded", fmt.Errorf("outer: %w", NewCodedError("EBUSY", "", errors.New("x"))), "EBUSY"},
		{"errno", &fs.PathError{Op: "open", Path: "a", Err: syscall.EBUSY}, "EBUSY"},
		{"not exist", fs.ErrNotExist, "ENOENT"},
		{"deadline", context.DeadlineExceeded, "ETIMEDOUT"},
		{"plain", errors.New("boom"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Code(tt.err))
		})
	}
}

func TestFatalError(t *testing.T) {
	inner := NewCodedError("ECORRUPT", "decode failed", nil)
	err := fmt.Errorf("job: %w", &FatalError{File: "a.png", Attempts: 1, Err: inner})

	assert.True(t, IsFatal(err))
	assert.False(t, IsFatal(inner))
	assert.Equal(t, "ECORRUPT", Code(err))
	assert.Contains(t, err.Error(), "a.png")
}

// --- Policy ---

func TestPolicy_IsRetryable(t *testing.T) {
	p := DefaultPolicy
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"busy", NewCodedError("EBUSY", "", nil), true},
		{"timeout errno", &os.PathError{Op: "read", Path: "x", Err: syscall.ETIMEDOUT}, true},
		{"connection reset", NewCodedError("ECONNRESET", "", nil), true},
		{"lfs marker", errors.New("git LFS fetch failed for x.png"), true},
		{"corrupt", NewCodedError("ECORRUPT", "bad", nil), false},
		{"not found", fs.ErrNotExist, false},
		{"plain", errors.New("nope"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.IsRetryable(tt.err))
		})
	}
}

func TestPolicy_DelayForAttempt(t *testing.T) {
	exp := Policy{MaxRetries: 5, BaseDelay: 50 * time.Millisecond, Exponential: true}
	assert.Equal(t, 50*time.Millisecond, exp.DelayForAttempt(1))
	assert.Equal(t, 100*time.Millisecond, exp.DelayForAttempt(2))
	assert.Equal(t, 200*time.Millisecond, exp.DelayForAttempt(3))
	assert.Equal(t, 400*time.Millisecond, exp.DelayForAttempt(4))

	flat := Policy{MaxRetries: 5, BaseDelay: 50 * time.Millisecond}
	for n := 1; n <= 4; n++ {
		assert.Equal(t, 50*time.Millisecond, flat.DelayForAttempt(n))
	}
}

func TestPolicy_DelayForAttemptSaturates(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		n      int
		want   time.Duration
	}{
		{"reaches cap", Policy{BaseDelay: time.Second, Exponential: true}, 13, time.Hour},
		{"just below cap", Policy{BaseDelay: time.Second, Exponential: true}, 12, 2048 * time.Second},
		{"shift past int64", Policy{BaseDelay: time.Second, Exponential: true}, 35, time.Hour},
		{"shift width", Policy{BaseDelay: 50 * time.Millisecond, Exponential: true}, 64, time.Hour},
		{"huge attempt", Policy{BaseDelay: time.Nanosecond, Exponential: true}, math.MaxInt, time.Hour},
		{"base above cap", Policy{BaseDelay: 2 * time.Hour, Exponential: true}, 40, 2 * time.Hour},
		{"zero base", Policy{Exponential: true}, 1000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy.DelayForAttempt(tt.n)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, time.Duration(0))
		})
	}
}

func TestPolicy_Attempts(t *testing.T) {
	assert.Equal(t, 1, Policy{MaxRetries: 0}.Attempts())
	assert.Equal(t, 4, Policy{MaxRetries: 4}.Attempts())
}

// --- ErrorLog ---

func TestErrorLog_AppendWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "errors.log")
	log := NewErrorLog(path)

	require.NoError(t, log.Append("a.png", NewCodedError("ECORRUPT", "bad header", nil), map[string]any{"retryCount": 1}))
	require.NoError(t, log.Append("b.png", errors.New("boom"), nil))

	entries, err := ReadEntries(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "a.png", entries[0].File)
	assert.Equal(t, "ECORRUPT", entries[0].Error.Code)
	assert.Equal(t, "bad header", entries[0].Error.Message)
	assert.EqualValues(t, 1, entries[0].Context["retryCount"])
	assert.Equal(t, "b.png", entries[1].File)
	assert.Equal(t, 2, log.Len())
}

func TestErrorLog_Clear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "errors.log")
	log := NewErrorLog(path)
	require.NoError(t, log.Append("a.png", errors.New("x"), nil))

	require.NoError(t, log.Clear())
	assert.NoFileExists(t, path)
	assert.Zero(t, log.Len())
	require.NoError(t, log.Clear(), "clearing twice is fine")
}

func TestReadEntries_MissingFile(t *testing.T) {
	entries, err := ReadEntries(filepath.Join(t.TempDir(), "none.log"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// --- Coordinator ---

type sleepRecorder struct{ slept []time.Duration }

func (s *sleepRecorder) sleep(d time.Duration) { s.slept = append(s.slept, d) }

func newTestCoordinator(t *testing.T, policy Policy, continueOnError bool) (*Coordinator, *ErrorLog, *sleepRecorder) {
	t.Helper()
	log := NewErrorLog(filepath.Join(t.TempDir(), "errors.log"))
	rec := &sleepRecorder{}
	return NewCoordinator(policy, log, continueOnError, WithSleep(rec.sleep)), log, rec
}

func TestExecute_SucceedsAfterRetries(t *testing.T) {
	c, log, rec := newTestCoordinator(t, Policy{MaxRetries: 3, BaseDelay: 10 * time.Millisecond, Exponential: true}, true)

	calls := 0
	out, err := Execute(context.Background(), c, Context{File: "a.png"}, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", NewCodedError("EBUSY", "locked", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "ok", out.Value)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, calls)
	assert.Zero(t, log.Len(), "success never writes the error log")
	assert.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, rec.slept)
}

func TestExecute_NonRetryableFailsOnce(t *testing.T) {
	c, log, rec := newTestCoordinator(t, DefaultPolicy, true)

	out, err := Execute(context.Background(), c, Context{File: "bad.png", Operation: "convert"}, func(context.Context, int) (int, error) {
		return 0, NewCodedError("ECORRUPT", "corrupt input", nil)
	})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 1, out.Attempts)
	assert.Empty(t, rec.slept)

	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad.png", entries[0].File)
	assert.Equal(t, 1, entries[0].Context["retryCount"])
	assert.Equal(t, "convert", entries[0].Context["operation"])
}

func TestExecute_ExhaustionLogsOnce(t *testing.T) {
	c, log, rec := newTestCoordinator(t, Policy{MaxRetries: 4, BaseDelay: time.Millisecond}, true)

	out, err := Execute(context.Background(), c, Context{File: "a.png"}, func(context.Context, int) (struct{}, error) {
		return struct{}{}, NewCodedError("ETIMEDOUT", "slow disk", nil)
	})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Equal(t, 4, out.Attempts)
	assert.Len(t, rec.slept, 3)
	require.Equal(t, 1, log.Len())
	assert.Equal(t, 4, log.Entries()[0].Context["retryCount"])
}

func TestExecute_FatalWithoutContinueOnError(t *testing.T) {
	c, log, _ := newTestCoordinator(t, DefaultPolicy, false)

	out, err := Execute(context.Background(), c, Context{File: "a.png"}, func(context.Context, int) (int, error) {
		return 0, errors.New("unsupported")
	})

	require.Error(t, err)
	assert.True(t, IsFatal(err))
	assert.False(t, out.Success)
	assert.Equal(t, 1, log.Len(), "fatal failures are still logged")
}

func TestExecute_RetryHook(t *testing.T) {
	var hooked []int
	log := NewErrorLog("")
	c := NewCoordinator(Policy{MaxRetries: 3, BaseDelay: time.Millisecond}, log, true,
		WithSleep(func(time.Duration) {}),
		WithRetryHook(func(_ string, attempt int, _ time.Duration, _ error) { hooked = append(hooked, attempt) }),
	)

	_, err := Execute(context.Background(), c, Context{File: "a"}, func(context.Context, int) (int, error) {
		return 0, NewCodedError("EAGAIN", "", nil)
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, hooked)
}

func TestExecute_CancelledContextIsNotLogged(t *testing.T) {
	tests := []struct {
		name            string
		continueOnError bool
		fail            error
	}{
		{"retryable", true, NewCodedError("ETIMEDOUT", "slow disk", nil)},
		{"non-retryable", true, NewCodedError("ECORRUPT", "killed mid-write", nil)},
		{"without continue-on-error", false, context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, log, rec := newTestCoordinator(t, DefaultPolicy, tt.continueOnError)
			ctx, cancel := context.WithCancel(context.Background())

			out, err := Execute(ctx, c, Context{File: "a.png"}, func(context.Context, int) (int, error) {
				cancel()
				return 0, tt.fail
			})

			require.NoError(t, err, "an interruption is not a fatal file failure")
			assert.False(t, out.Success)
			assert.Equal(t, 1, out.Attempts)
			assert.ErrorIs(t, out.Err, tt.fail)
			assert.Empty(t, rec.slept)
			assert.Zero(t, log.Len())
			entries, rerr := ReadEntries(log.Path())
			require.NoError(t, rerr)
			assert.Empty(t, entries)
		})
	}
}

func TestExecute_LogFailureHook(t *testing.T) {
	tests := []struct {
		name     string
		path     func(t *testing.T) string
		wantHook bool
	}{
		{"writable", func(t *testing.T) string { return filepath.Join(t.TempDir(), "errors.log") }, false},
		{"path is a directory", func(t *testing.T) string { return t.TempDir() }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotFile string
			var gotErr, gotLogErr error
			c := NewCoordinator(DefaultPolicy, NewErrorLog(tt.path(t)), true,
				WithSleep(func(time.Duration) {}),
				WithLogFailureHook(func(file string, err, logErr error) {
					gotFile, gotErr, gotLogErr = file, err, logErr
				}),
			)
			corrupt := NewCodedError("ECORRUPT", "bad header", nil)

			out, err := Execute(context.Background(), c, Context{File: "a.png"}, func(context.Context, int) (int, error) {
				return 0, corrupt
			})
			require.NoError(t, err)
			assert.False(t, out.Success)

			if !tt.wantHook {
				assert.Nil(t, gotLogErr)
				return
			}
			assert.Equal(t, "a.png", gotFile)
			assert.ErrorIs(t, gotErr, corrupt)
			assert.Error(t, gotLogErr)
		})
	}
}

func TestExecute_BackoffTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	alwaysBusy := func(context.Context, int) (int, error) {
		return 0, NewCodedError("EBUSY", "", nil)
	}

	exp := NewCoordinator(Policy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, Exponential: true}, nil, true)
	start := time.Now()
	_, _ = Execute(context.Background(), exp, Context{File: "a"}, alwaysBusy)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)

	flat := NewCoordinator(Policy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond}, nil, true)
	start = time.Now()
	_, _ = Execute(context.Background(), flat, Context{File: "a"}, alwaysBusy)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 200*time.Millisecond)
}
