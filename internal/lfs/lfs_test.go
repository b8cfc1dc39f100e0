package lfs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/pixmaster/internal/recovery"
)

const samplePointer = `version https://git-lfs.github.com/spec/v1
oid sha256:4d7a214614ab2935c943f9e0ff69d22eadbb8f32b1258daaa5e2ca24d17e2393
size 12345
`

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestIsPointer(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{"pointer", []byte(samplePointer), true},
		{"png bytes", []byte("\x89PNG\r\n\x1a\n...."), false},
		{"empty", nil, false},
		{"header later in file", []byte("junk\n" + samplePointer), false},
		{"too large", []byte(samplePointer + strings.Repeat("x", 2048)), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPointer(write(t, "a.png", tt.data)))
		})
	}
}

func TestIsPointer_Missing(t *testing.T) {
	assert.False(t, IsPointer(filepath.Join(t.TempDir(), "nope.png")))
}

func TestPull_OutsideRepoIsRetryableLFSError(t *testing.T) {
	c := &Client{Git: "/nonexistent/git"}
	err := c.Pull(context.Background(), write(t, "a.png", []byte(samplePointer)))
	require.Error(t, err)
	assert.Equal(t, CodeLFS, recovery.Code(err))
	assert.Contains(t, err.Error(), "LFS")
	assert.True(t, recovery.DefaultPolicy.IsRetryable(err))
}
