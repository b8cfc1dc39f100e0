// Package config holds runtime configuration: defaults, config-file loading,
// CLI flag binding, and validation.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/rules"
)

// ColorMode controls ANSI color output.
type ColorMode string

const (
	ColorAuto   ColorMode = "auto"   // Enable colors when stdout is a TTY (default).
	ColorAlways ColorMode = "always" // Force colors on.
	ColorNever  ColorMode = "never"  // Disable colors entirely.
)

// FallbackQuality is used for an output format with no default quality.
const FallbackQuality = 80

// Output is one representation written for every input image.
type Output struct {
	Format string `yaml:"format" toml:"format" json:"format"`
	Suffix string `yaml:"suffix" toml:"suffix" json:"suffix,omitempty"`
	Width  int    `yaml:"width" toml:"width" json:"width,omitempty"`
	Height int    `yaml:"height" toml:"height" json:"height,omitempty"`
}

// Config holds all runtime settings. It is populated by [DefaultConfig],
// then a config file ([LoadFile]), then environment and CLI flags
// ([Flags.Apply]), and finally checked by [Config.Validate].
type Config struct {
	// Paths (set from positional args or the config file).
	InputDir   string
	OutputDir  string
	ConfigFile string // File the settings were loaded from, if any.

	// Conversion.
	Outputs    []Output
	Quality    rules.Quality    // Default quality per format.
	RuleSpecs  []rules.RuleSpec // As written in the config file.
	Rules      []*rules.Rule    // Compiled by Validate.
	Extensions []string         // Lowercase, with leading dot.

	// Behavior flags.
	Force    bool // Reprocess even when outputs are newer than the input.
	AutoPull bool // Fetch LFS pointer files instead of skipping them.
	DryRun   bool

	// Error handling.
	ContinueOnError    bool          // Default: true.
	MaxRetries         int           // Default: 3 attempts per file.
	RetryDelay         time.Duration // Default: 1s.
	ExponentialBackoff bool          // Default: true.
	ErrorLog           string        // Default: ".pixmaster/errors.jsonl".

	// Checkpointing.
	Resume             bool
	Checkpoint         string // Default: ".pixmaster/checkpoint.json". ".db"/".sqlite" selects SQLite.
	CheckpointInterval int    // Save every N files. Default: 1.

	// Watch mode.
	WatchDebounce time.Duration // Default: 500ms.

	// External tools.
	FFmpegPath  string
	FFprobePath string
	GitPath     string

	// Display and logging.
	Verbose   bool
	Metrics   bool // Print collected run metrics at the end.
	ColorMode ColorMode
	LogFile   string
}

// DefaultConfig returns a Config with every default set.
func DefaultConfig() Config {
	return Config{
		Outputs: []Output{{Format: codec.FormatWebP}},
		Quality: rules.Quality{
			codec.FormatWebP: 80,
			codec.FormatAVIF: 60,
			codec.FormatJPEG: 85,
			codec.FormatPNG:  90,
		},
		Extensions:         []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff", ".bmp", ".avif", ".heic"},
		ContinueOnError:    true,
		MaxRetries:         3,
		RetryDelay:         time.Second,
		ExponentialBackoff: true,
		ErrorLog:           filepath.Join(".pixmaster", "errors.jsonl"),
		Checkpoint:         filepath.Join(".pixmaster", "checkpoint.json"),
		CheckpointInterval: 1,
		WatchDebounce:      500 * time.Millisecond,
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		GitPath:            "git",
		ColorMode:          ColorAuto,
	}
}

// NormalizeDirArg strips trailing slashes from a directory path.
// The filesystem root "/" is returned unchanged so we don't produce an empty string.
func NormalizeDirArg(path string) string {
	if path == "/" {
		return "/"
	}
	return strings.TrimRight(path, "/")
}

// Validate checks and normalizes every field, compiling RuleSpecs into
// Rules. Any error here is fatal for the job.
func (c *Config) Validate() error {
	if err := c.ValidateSettings(); err != nil {
		return err
	}
	if c.InputDir == "" || c.OutputDir == "" {
		return errors.New("need exactly input_dir and output_dir")
	}
	return nil
}

// ValidateSettings is Validate without the input/output directory
// requirement, for commands that only touch job state.
func (c *Config) ValidateSettings() error {
	switch c.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
		// valid
	default:
		return fmt.Errorf("invalid color mode %q (use 'auto', 'always' or 'never')", c.ColorMode)
	}

	if err := c.validateOutputs(); err != nil {
		return err
	}
	if err := c.validateQuality(); err != nil {
		return err
	}

	compiled, err := rules.CompileRules(c.RuleSpecs)
	if err != nil {
		return fmt.Errorf("invalid quality rules: %w", err)
	}
	c.Rules = compiled

	exts, err := normalizeExtensions(c.Extensions)
	if err != nil {
		return err
	}
	c.Extensions = exts

	switch {
	case c.MaxRetries < 1:
		return errors.New("max retries must be at least 1")
	case c.RetryDelay < 0:
		return errors.New("retry delay must not be negative")
	case c.CheckpointInterval < 1:
		return errors.New("checkpoint interval must be at least 1")
	case c.WatchDebounce < 0:
		return errors.New("watch debounce must not be negative")
	case c.Checkpoint == "":
		return errors.New("checkpoint path must not be empty")
	case c.ErrorLog == "":
		return errors.New("error log path must not be empty")
	}
	return nil
}

func (c *Config) validateOutputs() error {
	if len(c.Outputs) == 0 {
		return errors.New("at least one output format is required")
	}
	seen := make(map[string]bool, len(c.Outputs))
	for i := range c.Outputs {
		o := &c.Outputs[i]
		o.Format = rules.CanonicalFormat(o.Format)
		if !codec.Supported(o.Format) {
			return fmt.Errorf("output %d: unsupported format %q (use webp, avif, jpeg or png)", i+1, o.Format)
		}
		if strings.ContainsAny(o.Suffix, `/\`) {
			return fmt.Errorf("output %d: suffix %q must not contain path separators", i+1, o.Suffix)
		}
		if o.Width < 0 || o.Height < 0 {
			return fmt.Errorf("output %d: width and height must not be negative", i+1)
		}
		key := o.Format + "|" + o.Suffix
		if seen[key] {
			return fmt.Errorf("output %d: duplicate %s output with suffix %q", i+1, o.Format, o.Suffix)
		}
		seen[key] = true
	}
	return nil
}

func (c *Config) validateQuality() error {
	q := make(rules.Quality, len(c.Quality))
	for format, v := range c.Quality {
		if v < rules.MinQuality || v > rules.MaxQuality {
			return fmt.Errorf("default quality %s=%d: %w", format, v, rules.ErrQualityRange)
		}
		q[rules.CanonicalFormat(format)] = v
	}
	for _, o := range c.Outputs {
		if _, ok := q[o.Format]; !ok {
			q[o.Format] = FallbackQuality
		}
	}
	c.Quality = q
	return nil
}

func normalizeExtensions(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, errors.New("at least one input extension is required")
	}
	set := make(map[string]bool, len(in))
	for _, e := range in {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = true
	}
	out := make([]string, 0, len(set))
	for e := range set {
		out = append(out, e)
	}
	sort.Strings(out)
	return out, nil
}

// ValidatePaths ensures the resolved output directory is not inside (or equal
// to) the resolved input directory. This prevents the pipeline from
// recursively discovering its own output files. Both arguments must be
// absolute, symlink-resolved paths.
func (c *Config) ValidatePaths(inputAbs, outputAbs string) error {
	sep := string(filepath.Separator)
	if outputAbs == inputAbs || strings.HasPrefix(outputAbs+sep, inputAbs+sep) {
		return errors.New("output directory must not be inside input directory")
	}
	return nil
}

// Snapshot is the configuration recorded in the checkpoint, so `status`
// can show what a retained job was run with.
func (c *Config) Snapshot() map[string]any {
	outputs := make([]map[string]any, 0, len(c.Outputs))
	for _, o := range c.Outputs {
		m := map[string]any{"format": o.Format}
		if o.Suffix != "" {
			m["suffix"] = o.Suffix
		}
		if o.Width > 0 {
			m["width"] = o.Width
		}
		if o.Height > 0 {
			m["height"] = o.Height
		}
		outputs = append(outputs, m)
	}
	quality := make(map[string]any, len(c.Quality))
	for k, v := range c.Quality {
		quality[k] = v
	}
	return map[string]any{
		"inputDir":           c.InputDir,
		"outputDir":          c.OutputDir,
		"outputs":            outputs,
		"quality":            quality,
		"rules":              len(c.RuleSpecs),
		"force":              c.Force,
		"autoPull":           c.AutoPull,
		"continueOnError":    c.ContinueOnError,
		"maxRetries":         c.MaxRetries,
		"retryDelayMs":       c.RetryDelay.Milliseconds(),
		"exponentialBackoff": c.ExponentialBackoff,
		"checkpointInterval": c.CheckpointInterval,
	}
}
