package codec

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/backmassage/pixmaster/internal/recovery"
)

// FFmpeg is a Processor backed by the ffmpeg binary.
type FFmpeg struct {
	bin     string
	verbose bool
	run     runFunc
}

// NewFFmpeg returns an FFmpeg processor. bin defaults to "ffmpeg". When
// verbose is set, ffmpeg's stderr is copied to tee as well as captured.
func NewFFmpeg(bin string, verbose bool, tee io.Writer) *FFmpeg {
	if bin == "" {
		bin = "ffmpeg"
	}
	if !verbose {
		tee = nil
	}
	return &FFmpeg{bin: bin, verbose: verbose, run: execRunner(tee)}
}

// Process implements Processor. Every output is attempted even after an
// earlier one fails; the first failure is returned.
func (f *FFmpeg) Process(ctx context.Context, input string, outputs []OutputConfig) ([]OutputResult, error) {
	results := make([]OutputResult, 0, len(outputs))
	var firstErr error
	for _, out := range outputs {
		res := f.processOne(ctx, input, out)
		if res.Err != nil && firstErr == nil {
			firstErr = res.Err
		}
		results = append(results, res)
	}
	return results, firstErr
}

func (f *FFmpeg) processOne(ctx context.Context, input string, out OutputConfig) OutputResult {
	res := OutputResult{OutputPath: out.OutputPath}
	if !Supported(out.Format) {
		res.Err = recovery.NewCodedError(CodeUnsupported, "unsupported output format "+out.Format, nil)
		return res
	}

	dir := filepath.Dir(out.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		res.Err = recovery.NewCodedError(recovery.Code(err), "create output directory", err)
		return res
	}
	tmp := TempPath(out.OutputPath)

	state := newEncoderState(out.Format)
	for {
		args := Build(f.bin, input, tmp, state.Current(), out, f.verbose)
		r := f.run(ctx, args)
		if r.Err == nil {
			break
		}
		_ = os.Remove(tmp)
		if state.Advance(r.Stderr) {
			continue
		}
		res.Err = execError(f.bin, out.Format, r)
		return res
	}

	if err := os.Rename(tmp, out.OutputPath); err != nil {
		_ = os.Remove(tmp)
		res.Err = recovery.NewCodedError(recovery.Code(err), "finalize output", err)
		return res
	}
	if info, err := os.Stat(out.OutputPath); err == nil {
		res.Bytes = info.Size()
	}
	res.Success = true
	return res
}

// TempPath is where an output is encoded before it is renamed into place:
// a hidden ".part" sibling that keeps the real extension so ffmpeg picks
// the right muxer.
func TempPath(outputPath string) string {
	dir, base := filepath.Split(outputPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(dir, "."+stem+".part"+ext)
}

func execError(bin, format string, r ExecResult) error {
	if errors.Is(r.Err, exec.ErrNotFound) {
		return recovery.NewCodedError("ENOENT", bin+" not found in PATH", r.Err)
	}
	msg := lastLine(r.Stderr)
	if msg == "" {
		msg = r.Err.Error()
	}
	return recovery.NewCodedError(Classify(r.Stderr), fmt.Sprintf("encode %s: %s", format, msg), r.Err)
}
