// Command pixmaster converts a directory tree of images into web-ready
// formats, resuming interrupted batches from a checkpoint.
package main

import (
	"errors"
	"fmt"
	"os"
)

// version and commit are injected at build time via -ldflags.
var (
	version = "0.1.0"
	commit  = "unknown"
)

func main() {
	os.Exit(exitCode(newRootCmd().Execute()))
}

// exitCode maps a command error to the process exit status. Files that
// failed under continue-on-error never surface as an error here.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var silent *silentError
	if !errors.As(err, &silent) {
		fmt.Fprintf(os.Stderr, "pixmaster: %v\n", err)
	}
	return 1
}

// silentError is returned once the failure has already been logged.
type silentError struct{ err error }

func (e *silentError) Error() string { return e.err.Error() }
func (e *silentError) Unwrap() error { return e.err }
