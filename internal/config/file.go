package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/backmassage/pixmaster/internal/rules"
)

// DefaultFileNames are the config files looked for in the working directory
// when --config is not given, in order.
var DefaultFileNames = []string{"pixmaster.yaml", "pixmaster.yml", "pixmaster.toml", "pixmaster.json"}

// ErrUnknownFormat is returned for a config file with an unrecognized
// extension.
var ErrUnknownFormat = errors.New("unknown config file format (use .yaml, .yml, .toml or .json)")

// fileConfig mirrors the config file. Pointer fields distinguish "absent"
// from a zero value so that only keys present in the file override
// defaults.
type fileConfig struct {
	Input      *string          `yaml:"input" toml:"input" json:"input"`
	Output     *string          `yaml:"output" toml:"output" json:"output"`
	Outputs    []Output         `yaml:"outputs" toml:"outputs" json:"outputs"`
	Quality    map[string]int   `yaml:"quality" toml:"quality" json:"quality"`
	Rules      []rules.RuleSpec `yaml:"rules" toml:"rules" json:"rules"`
	Extensions []string         `yaml:"extensions" toml:"extensions" json:"extensions"`
	Force      *bool            `yaml:"force" toml:"force" json:"force"`
	AutoPull   *bool            `yaml:"autoPull" toml:"autoPull" json:"autoPull"`

	ErrorHandling *errorHandlingFile `yaml:"errorHandling" toml:"errorHandling" json:"errorHandling"`
	Checkpoint    *checkpointFile    `yaml:"checkpoint" toml:"checkpoint" json:"checkpoint"`
	Watch         *watchFile         `yaml:"watch" toml:"watch" json:"watch"`
	Tools         *toolsFile         `yaml:"tools" toml:"tools" json:"tools"`
}

type errorHandlingFile struct {
	ContinueOnError    *bool   `yaml:"continueOnError" toml:"continueOnError" json:"continueOnError"`
	MaxRetries         *int    `yaml:"maxRetries" toml:"maxRetries" json:"maxRetries"`
	RetryDelay         *string `yaml:"retryDelay" toml:"retryDelay" json:"retryDelay"`
	ExponentialBackoff *bool   `yaml:"exponentialBackoff" toml:"exponentialBackoff" json:"exponentialBackoff"`
	ErrorLog           *string `yaml:"errorLog" toml:"errorLog" json:"errorLog"`
}

type checkpointFile struct {
	Path     *string `yaml:"path" toml:"path" json:"path"`
	Interval *int    `yaml:"interval" toml:"interval" json:"interval"`
}

type watchFile struct {
	Debounce *string `yaml:"debounce" toml:"debounce" json:"debounce"`
}

type toolsFile struct {
	FFmpeg  *string `yaml:"ffmpeg" toml:"ffmpeg" json:"ffmpeg"`
	FFprobe *string `yaml:"ffprobe" toml:"ffprobe" json:"ffprobe"`
	Git     *string `yaml:"git" toml:"git" json:"git"`
}

// FindFile returns the first of DefaultFileNames present in dir, or "".
func FindFile(dir string) string {
	for _, name := range DefaultFileNames {
		p := filepath.Join(dir, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// LoadFile reads the config file at path and applies every key it sets onto
// cfg. The format is chosen by extension. Unknown keys are an error.
// Relative input/output paths are resolved against the file's directory.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("parse YAML config %s: %w", path, err)
		}
	case ".toml":
		md, err := toml.Decode(string(data), &fc)
		if err != nil {
			return fmt.Errorf("parse TOML config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("parse TOML config %s: unknown key %q", path, undecoded[0].String())
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&fc); err != nil {
			return fmt.Errorf("parse JSON config %s: %w", path, err)
		}
	default:
		return fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	if err := fc.apply(cfg, filepath.Dir(path)); err != nil {
		return fmt.Errorf("config %s: %w", path, err)
	}
	cfg.ConfigFile = path
	return nil
}

func (fc *fileConfig) apply(cfg *Config, baseDir string) error {
	if fc.Input != nil {
		cfg.InputDir = NormalizeDirArg(resolveRelative(baseDir, *fc.Input))
	}
	if fc.Output != nil {
		cfg.OutputDir = NormalizeDirArg(resolveRelative(baseDir, *fc.Output))
	}
	if fc.Outputs != nil {
		cfg.Outputs = fc.Outputs
	}
	if fc.Quality != nil {
		// File quality keys override individual defaults; unnamed formats keep theirs.
		merged := cfg.Quality.Clone()
		for k, v := range fc.Quality {
			merged[rules.CanonicalFormat(k)] = v
		}
		cfg.Quality = merged
	}
	if fc.Rules != nil {
		cfg.RuleSpecs = fc.Rules
	}
	if fc.Extensions != nil {
		cfg.Extensions = fc.Extensions
	}
	setBool(&cfg.Force, fc.Force)
	setBool(&cfg.AutoPull, fc.AutoPull)

	if eh := fc.ErrorHandling; eh != nil {
		setBool(&cfg.ContinueOnError, eh.ContinueOnError)
		setInt(&cfg.MaxRetries, eh.MaxRetries)
		setBool(&cfg.ExponentialBackoff, eh.ExponentialBackoff)
		setString(&cfg.ErrorLog, eh.ErrorLog)
		if eh.RetryDelay != nil {
			d, err := ParseDuration(*eh.RetryDelay)
			if err != nil {
				return fmt.Errorf("errorHandling.retryDelay: %w", err)
			}
			cfg.RetryDelay = d
		}
	}
	if cp := fc.Checkpoint; cp != nil {
		setString(&cfg.Checkpoint, cp.Path)
		setInt(&cfg.CheckpointInterval, cp.Interval)
	}
	if w := fc.Watch; w != nil && w.Debounce != nil {
		d, err := ParseDuration(*w.Debounce)
		if err != nil {
			return fmt.Errorf("watch.debounce: %w", err)
		}
		cfg.WatchDebounce = d
	}
	if t := fc.Tools; t != nil {
		setString(&cfg.FFmpegPath, t.FFmpeg)
		setString(&cfg.FFprobePath, t.FFprobe)
		setString(&cfg.GitPath, t.Git)
	}
	return nil
}

// ParseDuration accepts Go duration strings ("1.5s", "250ms") and bare
// integers, which are milliseconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty duration")
	}
	if n, err := parseInt(s, "duration"); err == nil {
		return time.Duration(n) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q (e.g. 500ms, 2s)", s)
	}
	return d, nil
}

func resolveRelative(baseDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
