package config

// This file binds CLI flags and environment overrides.
// Flags are grouped into conversion, error handling, checkpoint, display.
// Only flags the user actually passed override the config file, so file
// values hold unless set on the command line.

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Environment variables read by [Load].
const (
	EnvConfig     = "PIXMASTER_CONFIG"
	EnvErrorLog   = "PIXMASTER_ERROR_LOG"
	EnvCheckpoint = "PIXMASTER_CHECKPOINT"
)

// Flags holds raw flag values until Apply merges them onto a Config.
type Flags struct {
	fs *pflag.FlagSet

	configFile string

	formats  []string
	quality  map[string]int
	force    bool
	autoPull bool
	dryRun   bool

	continueOnError    bool
	noContinueOnError  bool
	maxRetries         int
	retryDelay         string
	noExponentialRetry bool
	errorLog           string

	resume             bool
	checkpoint         string
	checkpointInterval int

	verbose bool
	metrics bool
	color   bool
	noColor bool
	logFile string
}

// BindFlags registers every configuration flag on fs. Call Apply after
// fs has been parsed.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	defineConversionFlags(fs, f)
	defineErrorFlags(fs, f)
	defineCheckpointFlags(fs, f)
	defineDisplayFlags(fs, f)
	return f
}

// defineConversionFlags registers --config, --format, --quality, --force, --auto-pull, --dry-run.
func defineConversionFlags(fs *pflag.FlagSet, f *Flags) {
	fs.StringVar(&f.configFile, "config", "", "Config file (.yaml, .yml, .toml, .json); env "+EnvConfig)
	fs.StringSliceVar(&f.formats, "format", nil, "Output formats, comma separated (webp, avif, jpeg, png)")
	fs.StringToIntVarP(&f.quality, "quality", "q", nil, "Default quality per format, e.g. webp=80,avif=55")
	fs.BoolVarP(&f.force, "force", "f", false, "Reprocess files even when outputs are up to date")
	fs.BoolVar(&f.autoPull, "auto-pull", false, "Fetch Git LFS pointer files instead of skipping them")
	fs.BoolVarP(&f.dryRun, "dry-run", "d", false, "Preview only; write no outputs and no checkpoint")
}

// defineErrorFlags registers retry and continue-on-error flags.
func defineErrorFlags(fs *pflag.FlagSet, f *Flags) {
	fs.BoolVar(&f.continueOnError, "continue-on-error", true, "Keep going after a file fails")
	fs.BoolVar(&f.noContinueOnError, "no-continue-on-error", false, "Abort the job on the first failed file")
	fs.IntVar(&f.maxRetries, "max-retries", 3, "Attempts per file for transient errors")
	fs.StringVar(&f.retryDelay, "retry-delay", "1s", "Base delay between attempts (e.g. 500ms, 2s)")
	fs.BoolVar(&f.noExponentialRetry, "no-exponential-backoff", false, "Use a constant retry delay")
	fs.StringVar(&f.errorLog, "error-log", "", "Error log path (JSON lines); env "+EnvErrorLog)
}

// defineCheckpointFlags registers --resume, --checkpoint, --checkpoint-interval.
func defineCheckpointFlags(fs *pflag.FlagSet, f *Flags) {
	fs.BoolVarP(&f.resume, "resume", "r", false, "Resume from the checkpoint, skipping completed files")
	fs.StringVar(&f.checkpoint, "checkpoint", "", "Checkpoint path (.json, or .db/.sqlite for SQLite); env "+EnvCheckpoint)
	fs.IntVar(&f.checkpointInterval, "checkpoint-interval", 1, "Save the checkpoint every N files")
}

// defineDisplayFlags registers --color, --no-color, --verbose, --metrics, --log.
func defineDisplayFlags(fs *pflag.FlagSet, f *Flags) {
	fs.BoolVar(&f.color, "color", false, "Force colored logs")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored logs")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "Verbose output")
	fs.BoolVar(&f.metrics, "metrics", false, "Print run metrics at the end")
	fs.StringVarP(&f.logFile, "log", "l", "", "Append logs to file")
}

// Load builds the effective configuration: defaults, then the config file
// (--config, $PIXMASTER_CONFIG, or one of DefaultFileNames in cwd), then
// environment, then flags. It does not validate.
func Load(f *Flags, args []string, getenv func(string) string, cwd string) (*Config, error) {
	cfg := DefaultConfig()

	path := f.configFile
	if path == "" {
		path = getenv(EnvConfig)
	}
	if path == "" {
		path = FindFile(cwd)
	}
	if path != "" {
		if err := LoadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := f.Apply(&cfg, args, getenv); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Apply copies environment overrides and every explicitly set flag onto
// cfg, then the positional input/output directories.
func (f *Flags) Apply(cfg *Config, args []string, getenv func(string) string) error {
	if v := getenv(EnvErrorLog); v != "" {
		cfg.ErrorLog = v
	}
	if v := getenv(EnvCheckpoint); v != "" {
		cfg.Checkpoint = v
	}

	changed := f.fs.Changed
	if changed("format") {
		outs := make([]Output, 0, len(f.formats))
		for _, format := range f.formats {
			outs = append(outs, Output{Format: strings.TrimSpace(format)})
		}
		cfg.Outputs = outs
	}
	if changed("quality") {
		merged := cfg.Quality.Clone()
		for k, v := range f.quality {
			merged[k] = v
		}
		cfg.Quality = merged
	}
	if changed("force") {
		cfg.Force = f.force
	}
	if changed("auto-pull") {
		cfg.AutoPull = f.autoPull
	}
	if changed("dry-run") {
		cfg.DryRun = f.dryRun
	}

	if changed("continue-on-error") {
		cfg.ContinueOnError = f.continueOnError
	}
	if changed("no-continue-on-error") && f.noContinueOnError {
		cfg.ContinueOnError = false
	}
	if changed("max-retries") {
		cfg.MaxRetries = f.maxRetries
	}
	if changed("retry-delay") {
		d, err := ParseDuration(f.retryDelay)
		if err != nil {
			return fmt.Errorf("--retry-delay: %w", err)
		}
		cfg.RetryDelay = d
	}
	if changed("no-exponential-backoff") && f.noExponentialRetry {
		cfg.ExponentialBackoff = false
	}
	if changed("error-log") {
		cfg.ErrorLog = f.errorLog
	}

	if changed("resume") {
		cfg.Resume = f.resume
	}
	if changed("checkpoint") {
		cfg.Checkpoint = f.checkpoint
	}
	if changed("checkpoint-interval") {
		cfg.CheckpointInterval = f.checkpointInterval
	}

	if changed("verbose") {
		cfg.Verbose = f.verbose
	}
	if changed("metrics") {
		cfg.Metrics = f.metrics
	}
	if changed("log") {
		cfg.LogFile = f.logFile
	}
	if f.noColor {
		cfg.ColorMode = ColorNever
	} else if f.color {
		cfg.ColorMode = ColorAlways
	}

	return parsePositionalArgs(args, cfg)
}

// parsePositionalArgs sets InputDir and OutputDir from two positional args.
// With none, the config file must have provided them.
func parsePositionalArgs(args []string, cfg *Config) error {
	switch len(args) {
	case 0:
		return nil
	case 2:
		cfg.InputDir = NormalizeDirArg(args[0])
		cfg.OutputDir = NormalizeDirArg(args[1])
		return nil
	default:
		return fmt.Errorf("need exactly input_dir and output_dir (got %d arguments)", len(args))
	}
}

// parseInt parses a string as an integer; returns a clear error on failure.
func parseInt(s, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%s must be a whole number (got %q)", name, s)
	}
	return n, nil
}
