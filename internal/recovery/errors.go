// Package recovery executes per-file work with bounded retries and records
// terminal failures to an append-only error log.
//
// Errors are classified by a short machine code (EBUSY, ETIMEDOUT, ...).
// [Policy] decides which codes are transient; [Execute] drives the attempt
// loop and writes exactly one [Entry] per unit of work that ends in failure.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
	"syscall"
)

// CodedError attaches a machine-readable code to an error.
type CodedError struct {
	Code    string
	Message string
	Err     error
}

// NewCodedError builds a CodedError. msg may be empty, in which case the
// wrapped error's text is used.
func NewCodedError(code, msg string, err error) *CodedError {
	return &CodedError{Code: code, Message: msg, Err: err}
}

func (e *CodedError) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Code
	}
}

func (e *CodedError) Unwrap() error { return e.Err }

// FatalError aborts the whole job. It wraps the per-file error that
// escaped because continue-on-error was disabled, or a job-level failure
// such as an unusable output root.
type FatalError struct {
	File     string
	Attempts int
	Err      error
}

func (e *FatalError) Error() string {
	if e.File == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// IsFatal reports whether err carries a *FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}

var errnoCodes = map[syscall.Errno]string{
	syscall.EBUSY:        "EBUSY",
	syscall.ETIMEDOUT:    "ETIMEDOUT",
	syscall.ECONNRESET:   "ECONNRESET",
	syscall.ECONNREFUSED: "ECONNREFUSED",
	syscall.ECONNABORTED: "ECONNABORTED",
	syscall.EAGAIN:       "EAGAIN",
	syscall.EMFILE:       "EMFILE",
	syscall.ENFILE:       "ENFILE",
	syscall.EPIPE:        "EPIPE",
	syscall.ENOENT:       "ENOENT",
	syscall.EACCES:       "EACCES",
	syscall.EPERM:        "EPERM",
	syscall.ENOSPC:       "ENOSPC",
	syscall.EEXIST:       "EEXIST",
	syscall.EISDIR:       "EISDIR",
	syscall.ENOTDIR:      "ENOTDIR",
	syscall.EHOSTUNREACH: "EHOSTUNREACH",
	syscall.ENETUNREACH:  "ENETUNREACH",
}

// Code extracts a machine code from err. Explicit CodedErrors win, then
// syscall errnos, then well-known sentinel errors. Returns "" when no code
// can be derived.
func Code(err error) string {
	if err == nil {
		return ""
	}
	var ce *CodedError
	if errors.As(err, &ce) && ce.Code != "" {
		return ce.Code
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if code, ok := errnoCodes[errno]; ok {
			return code
		}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return "ENOTFOUND"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "ETIMEDOUT"
	case errors.Is(err, fs.ErrNotExist):
		return "ENOENT"
	case errors.Is(err, fs.ErrPermission):
		return "EACCES"
	}
	return ""
}

// chain renders err and every error it wraps, outermost first. Go errors
// carry no stack, so the wrap chain stands in for one in the error log.
func chain(err error) string {
	var lines []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		lines = append(lines, fmt.Sprintf("%T: %s", e, e.Error()))
	}
	return strings.Join(lines, "\n")
}
