// Package lfs detects Git LFS pointer files and fetches their content.
package lfs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/backmassage/pixmaster/internal/recovery"
)

// pointerHeader is the first line of every LFS pointer file.
const pointerHeader = "version https://git-lfs.github.com/spec/v1"

// maxPointerSize bounds how much of a file is read to recognize a pointer.
// Real pointers are around 130 bytes.
const maxPointerSize = 1024

// CodeLFS tags pull failures. The message always contains "LFS" so the
// retry policy treats them as transient.
const CodeLFS = "ELFS"

// IsPointer reports whether path is an unfetched LFS pointer. Unreadable
// files are not pointers.
func IsPointer(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() > maxPointerSize {
		return false
	}
	head, err := io.ReadAll(io.LimitReader(f, maxPointerSize))
	if err != nil {
		return false
	}
	return bytes.HasPrefix(head, []byte(pointerHeader))
}

// Client pulls pointer content with the git binary.
type Client struct {
	// Git is the git binary; empty means "git".
	Git string
}

// IsPointer implements the pipeline's pointer predicate.
func (c *Client) IsPointer(path string) bool { return IsPointer(path) }

// Pull fetches the real content of path from its repository's LFS remote.
func (c *Client) Pull(ctx context.Context, path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return pullError(path, "", err)
	}
	root, err := c.repoRoot(ctx, filepath.Dir(abs))
	if err != nil {
		return pullError(path, "", err)
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		return pullError(path, "", err)
	}

	cmd := exec.CommandContext(ctx, c.git(), "-C", root, "lfs", "pull",
		"--include="+filepath.ToSlash(rel), "--exclude=")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return pullError(path, strings.TrimSpace(stderr.String()), err)
	}
	return nil
}

func (c *Client) git() string {
	if c.Git == "" {
		return "git"
	}
	return c.Git
}

func (c *Client) repoRoot(ctx context.Context, dir string) (string, error) {
	out, err := exec.CommandContext(ctx, c.git(), "-C", dir, "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", fmt.Errorf("%s is not inside a git repository: %w", dir, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func pullError(path, detail string, err error) error {
	msg := "LFS pull failed for " + path
	if detail != "" {
		msg += ": " + detail
	}
	return recovery.NewCodedError(CodeLFS, msg, err)
}
