package codec

import (
	"bytes"
	"context"
	"io"
	"os/exec"
)

// ExecResult holds the outcome of a single ffmpeg invocation.
type ExecResult struct {
	Stderr string
	Err    error
}

// runFunc executes a built argument slice. Swapped out in tests.
type runFunc func(ctx context.Context, args []string) ExecResult

// execRunner runs args[0] with the rest as arguments. When tee is non-nil,
// stderr is copied to it as it arrives; it is always captured for
// classification.
func execRunner(tee io.Writer) runFunc {
	return func(ctx context.Context, args []string) ExecResult {
		cmd := exec.CommandContext(ctx, args[0], args[1:]...)

		var stderrBuf bytes.Buffer
		if tee != nil {
			cmd.Stderr = io.MultiWriter(&stderrBuf, tee)
		} else {
			cmd.Stderr = &stderrBuf
		}

		err := cmd.Run()
		return ExecResult{
			Stderr: stderrBuf.String(),
			Err:    err,
		}
	}
}
