// Package check provides system diagnostics (the check subcommand) and
// pre-batch dependency validation (CheckDeps) for ffmpeg, ffprobe, the
// image encoders, and git-lfs.
package check

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/rules"
)

// Sentinel errors returned by CheckDeps when a required tool or encoder is missing.
var (
	ErrFfmpegNotFound  = errors.New("ffmpeg not found on PATH")
	ErrFfprobeNotFound = errors.New("ffprobe not found on PATH")
	ErrGitLFSNotFound  = errors.New("git lfs not available (needed for --auto-pull)")
	ErrNoEncoder       = errors.New("ffmpeg has no encoder for output format")
)

// Logger is the minimal logging interface needed by RunCheck.
// Defined here (rather than importing the logging package) so that check
// remains dependency-light and testable with a mock logger.
type Logger interface {
	Info(string, ...interface{})
	Success(string, ...interface{})
	Warn(string, ...interface{})
	Error(string, ...interface{})
	Debug(bool, string, ...interface{})
}

// Swapped out in tests.
var (
	lookPath = exec.LookPath
	output   = func(name string, args ...string) ([]byte, error) {
		return exec.Command(name, args...).Output()
	}
	runSilent = func(name string, args ...string) bool {
		cmd := exec.Command(name, args...)
		cmd.Stdout = nil
		cmd.Stderr = nil
		return cmd.Run() == nil
	}
)

// RunCheck prints availability of ffmpeg, ffprobe, git-lfs, and an encoder
// for every supported output format, test-encoding one tiny frame per
// format. It is informational; the return value reports whether everything
// needed by cfg is usable.
func RunCheck(cfg *config.Config, log Logger) bool {
	log.Info("=== System Check ===")

	ok := checkVersion(log, "ffmpeg", cfg.FFmpegPath, "-version")
	if !checkVersion(log, "ffprobe", cfg.FFprobePath, "-version") {
		log.Warn("  ffprobe is only used for images the Go decoders cannot read")
	}
	if !checkVersion(log, "git-lfs", cfg.GitPath, "lfs", "version") && cfg.AutoPull {
		ok = false
	}
	if !ok {
		return false
	}

	available, err := listEncoders(cfg.FFmpegPath)
	if err != nil {
		log.Warn("Could not list encoders: %v", err)
		return false
	}

	wanted := make(map[string]bool, len(cfg.Outputs))
	for _, o := range cfg.Outputs {
		wanted[o.Format] = true
	}
	log.Info("Image encoders:")
	for _, format := range []string{codec.FormatWebP, codec.FormatAVIF, codec.FormatJPEG, codec.FormatPNG} {
		enc := firstAvailable(format, available)
		switch {
		case enc == "":
			log.Error("  %-5s none of %s", format, strings.Join(codec.Encoders(format), ", "))
			if wanted[format] {
				ok = false
			}
		case runSilent(cfg.FFmpegPath, testEncodeArgs(enc)...):
			log.Success("  %-5s %s", format, enc)
		default:
			log.Error("  %-5s %s listed but test encode failed", format, enc)
			if wanted[format] {
				ok = false
			}
		}
	}
	return ok
}

// checkVersion verifies bin is runnable and logs the first line of its
// version output.
func checkVersion(log Logger, label, bin string, args ...string) bool {
	if _, err := lookPath(bin); err != nil {
		log.Error("%s not found (%s)", label, bin)
		return false
	}
	out, err := output(bin, args...)
	if err != nil {
		log.Warn("%s found but version query failed: %v", label, err)
		return false
	}
	log.Success("%s: %s", label, firstLine(string(out)))
	return true
}

// CheckDeps is the pre-batch validation. ffmpeg must be on PATH with an
// encoder for every configured output format. ffprobe is required only
// when a rule has size bounds, and git-lfs only with auto-pull. Returns a
// sentinel error (possibly wrapped) on failure.
func CheckDeps(cfg *config.Config) error {
	if _, err := lookPath(cfg.FFmpegPath); err != nil {
		return ErrFfmpegNotFound
	}
	if rules.NewEngine(cfg.Rules).NeedsDimensions() {
		if _, err := lookPath(cfg.FFprobePath); err != nil {
			return ErrFfprobeNotFound
		}
	}
	if cfg.AutoPull && !runSilent(cfg.GitPath, "lfs", "version") {
		return ErrGitLFSNotFound
	}

	available, err := listEncoders(cfg.FFmpegPath)
	if err != nil {
		return fmt.Errorf("list ffmpeg encoders: %w", err)
	}
	for _, o := range cfg.Outputs {
		if firstAvailable(o.Format, available) == "" {
			return fmt.Errorf("%w %s (want one of %s)", ErrNoEncoder, o.Format, strings.Join(codec.Encoders(o.Format), ", "))
		}
	}
	return nil
}

// --- internal helpers ---

func listEncoders(ffmpeg string) (map[string]bool, error) {
	out, err := output(ffmpeg, "-hide_banner", "-encoders")
	if err != nil {
		return nil, err
	}
	return ParseEncoders(string(out)), nil
}

// ParseEncoders extracts encoder names from `ffmpeg -encoders` output. The
// legend above the "------" separator is ignored.
func ParseEncoders(out string) map[string]bool {
	names := make(map[string]bool)
	inList := false
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if !inList {
			inList = strings.HasPrefix(fields[0], "------")
			continue
		}
		if len(fields) >= 2 {
			names[fields[1]] = true
		}
	}
	return names
}

func firstAvailable(format string, available map[string]bool) string {
	for _, enc := range codec.Encoders(format) {
		if available[enc] {
			return enc
		}
	}
	return ""
}

// testEncodeArgs returns the ffmpeg arguments for a one-frame test encode
// with enc.
func testEncodeArgs(enc string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "lavfi", "-i", "color=black:s=64x64:d=0.04",
		"-frames:v", "1",
		"-c:v", enc,
		"-f", "null", "-",
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "\n"); idx > 0 {
		return s[:idx]
	}
	return s
}
