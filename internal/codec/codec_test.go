package codec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backmassage/pixmaster/internal/recovery"
)

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func TestBuild_PerFormat(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		encoder string
		quality int
		flag    string
		want    string
		muxer   string
	}{
		{"webp", FormatWebP, "libwebp", 80, "-quality", "80", "webp"},
		{"avif aom", FormatAVIF, "libaom-av1", 60, "-crf", "26", "avif"},
		{"avif svt", FormatAVIF, "libsvtav1", 100, "-crf", "0", "avif"},
		{"jpeg", FormatJPEG, "mjpeg", 100, "-q:v", "2", "image2"},
		{"png", FormatPNG, "png", 1, "-compression_level", "9", "image2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := OutputConfig{OutputPath: "/o/x", Format: tt.format, Options: Options{Quality: tt.quality}}
			args := Build("ffmpeg", "/in/a.png", "/o/.x.part", tt.encoder, out, false)

			assert.Equal(t, "ffmpeg", args[0])
			assert.Equal(t, "/in/a.png", argValue(args, "-i"))
			assert.Equal(t, tt.encoder, argValue(args, "-c:v"))
			assert.Equal(t, tt.want, argValue(args, tt.flag))
			assert.Equal(t, tt.muxer, argValue(args, "-f"))
			assert.Equal(t, "error", argValue(args, "-loglevel"))
			assert.Equal(t, "/o/.x.part", args[len(args)-1])
		})
	}
}

func TestBuild_VerboseAndResize(t *testing.T) {
	out := OutputConfig{Format: FormatWebP, Options: Options{Quality: 75}, Resize: &Resize{Width: 800}}
	args := Build("ffmpeg", "in", "dst", "libwebp", out, true)
	assert.Equal(t, "info", argValue(args, "-loglevel"))
	assert.Equal(t, "scale=800:-1", argValue(args, "-vf"))
}

func TestScaleFilter(t *testing.T) {
	tests := []struct {
		r    *Resize
		want string
	}{
		{nil, ""},
		{&Resize{}, ""},
		{&Resize{Width: 100}, "scale=100:-1"},
		{&Resize{Height: 50}, "scale=-1:50"},
		{&Resize{Width: 100, Height: 50}, "scale=100:50:force_original_aspect_ratio=decrease"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScaleFilter(tt.r))
	}
}

func TestQualityMappings(t *testing.T) {
	assert.Equal(t, 63, AVIFCRF(1))
	assert.Equal(t, 0, AVIFCRF(100))
	assert.Equal(t, 0, AVIFCRF(500), "clamped")
	assert.Equal(t, 31, JPEGQScale(1))
	assert.Equal(t, 2, JPEGQScale(100))
	assert.Equal(t, 9, PNGLevel(1))
	assert.Equal(t, 0, PNGLevel(100))

	for q := 1; q < 100; q++ {
		assert.GreaterOrEqual(t, AVIFCRF(q), AVIFCRF(q+1))
		assert.GreaterOrEqual(t, JPEGQScale(q), JPEGQScale(q+1))
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   string
	}{
		{"a.png: Invalid data found when processing input", CodeCorrupt},
		{"Unknown encoder 'libwebp'", CodeUnsupported},
		{"Error opening output: Device or resource busy", "EBUSY"},
		{"Resource temporarily unavailable", "EAGAIN"},
		{"av_interleaved_write_frame(): No space left on device", "ENOSPC"},
		{"in.png: No such file or directory", "ENOENT"},
		{"out.webp: Permission denied", "EACCES"},
		{"something odd happened", CodeCodec},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.stderr), tt.stderr)
	}
}

func TestEncoderState_Fallback(t *testing.T) {
	s := newEncoderState(FormatAVIF)
	assert.Equal(t, "libaom-av1", s.Current())
	assert.False(t, s.Advance("Invalid data found"), "only missing encoders fall back")
	assert.True(t, s.Advance("Unknown encoder 'libaom-av1'"))
	assert.Equal(t, "libsvtav1", s.Current())
	assert.False(t, s.Advance("Unknown encoder 'libsvtav1'"))
}

func TestTempPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "dir", ".photo.part.webp"), TempPath(filepath.Join("out", "dir", "photo.webp")))
}

// fakeRun writes the destination (last arg) unless stderr is set.
func fakeRun(calls *[][]string, failures map[string]string) runFunc {
	return func(_ context.Context, args []string) ExecResult {
		*calls = append(*calls, args)
		enc := argValue(args, "-c:v")
		if stderr, ok := failures[enc]; ok {
			return ExecResult{Stderr: stderr, Err: errors.New("exit status 1")}
		}
		dst := args[len(args)-1]
		if err := os.WriteFile(dst, []byte("encoded-"+enc), 0o644); err != nil {
			return ExecResult{Err: err}
		}
		return ExecResult{}
	}
}

func TestFFmpeg_ProcessWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	f := NewFFmpeg("", false, nil)
	f.run = fakeRun(&calls, nil)

	outs := []OutputConfig{
		{OutputPath: filepath.Join(dir, "sub", "a.webp"), Format: FormatWebP, Options: Options{Quality: 80}},
		{OutputPath: filepath.Join(dir, "sub", "a.jpg"), Format: FormatJPEG, Options: Options{Quality: 90}},
	}
	results, err := f.Process(context.Background(), "in.png", outs)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.True(t, r.Success)
		assert.FileExists(t, r.OutputPath)
		assert.Positive(t, r.Bytes)
		assert.NoFileExists(t, TempPath(r.OutputPath))
	}
	assert.Len(t, calls, 2)
}

func TestFFmpeg_EncoderFallback(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	f := NewFFmpeg("ffmpeg", false, nil)
	f.run = fakeRun(&calls, map[string]string{"libaom-av1": "Unknown encoder 'libaom-av1'"})

	out := OutputConfig{OutputPath: filepath.Join(dir, "a.avif"), Format: FormatAVIF, Options: Options{Quality: 50}}
	results, err := f.Process(context.Background(), "in.png", []OutputConfig{out})
	require.NoError(t, err)
	assert.True(t, results[0].Success)
	require.Len(t, calls, 2)
	assert.Equal(t, "libsvtav1", argValue(calls[1], "-c:v"))

	data, err := os.ReadFile(out.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, "encoded-libsvtav1", string(data))
}

func TestFFmpeg_FailureIsCoded(t *testing.T) {
	dir := t.TempDir()
	var calls [][]string
	f := NewFFmpeg("ffmpeg", false, nil)
	f.run = fakeRun(&calls, map[string]string{"libwebp": "frame=0\nin.png: Invalid data found when processing input\n"})

	outs := []OutputConfig{
		{OutputPath: filepath.Join(dir, "a.webp"), Format: FormatWebP, Options: Options{Quality: 80}},
		{OutputPath: filepath.Join(dir, "a.png"), Format: FormatPNG, Options: Options{Quality: 80}},
	}
	results, err := f.Process(context.Background(), "in.png", outs)
	require.Error(t, err)
	assert.Equal(t, CodeCorrupt, recovery.Code(err))
	assert.True(t, strings.Contains(err.Error(), "Invalid data found"))

	assert.False(t, results[0].Success)
	assert.NoFileExists(t, outs[0].OutputPath)
	assert.True(t, results[1].Success, "later outputs are still attempted")
}

func TestFFmpeg_UnsupportedFormat(t *testing.T) {
	f := NewFFmpeg("", false, nil)
	_, err := f.Process(context.Background(), "in.png", []OutputConfig{{OutputPath: "x.bmp", Format: "bmp"}})
	assert.Equal(t, CodeUnsupported, recovery.Code(err))
}
