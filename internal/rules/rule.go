package rules

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Quality maps an output format name (e.g. "webp") to a quality in 1–100.
type Quality map[string]int

// Clone returns an independent copy of q.
func (q Quality) Clone() Quality {
	out := make(Quality, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// Quality bounds shared by rules and defaults.
const (
	MinQuality = 1
	MaxQuality = 100
)

// Dimensions are the pixel size of an input image.
type Dimensions struct {
	Width  int
	Height int
}

// RuleSpec is the loosely-typed rule shape read from a config file. It is
// converted into a validated [Rule] by [NewRule] before the engine sees it.
type RuleSpec struct {
	Pattern   string         `yaml:"pattern" toml:"pattern" json:"pattern,omitempty"`
	Directory string         `yaml:"directory" toml:"directory" json:"directory,omitempty"`
	MinWidth  int            `yaml:"minWidth" toml:"minWidth" json:"minWidth,omitempty"`
	MinHeight int            `yaml:"minHeight" toml:"minHeight" json:"minHeight,omitempty"`
	MaxWidth  int            `yaml:"maxWidth" toml:"maxWidth" json:"maxWidth,omitempty"`
	MaxHeight int            `yaml:"maxHeight" toml:"maxHeight" json:"maxHeight,omitempty"`
	Quality   map[string]int `yaml:"quality" toml:"quality" json:"quality"`
}

// Validation errors returned by [NewRule].
var (
	ErrNoCriteria     = errors.New("rule needs at least one of pattern, directory, or size constraints")
	ErrEmptyQuality   = errors.New("rule quality must not be empty")
	ErrQualityRange   = errors.New("quality must be between 1 and 100")
	ErrBadSize        = errors.New("size constraints must be positive integers")
	ErrInvertedBounds = errors.New("minimum size exceeds maximum size")
)

// Rule is a validated, immutable quality override. Construct with [NewRule].
type Rule struct {
	pattern   string // lowercased glob, "" when absent
	directory string // normalized, with trailing slash, "" when absent

	minWidth, minHeight int
	maxWidth, maxHeight int

	quality     Quality
	specificity int
	index       int // declaration order
}

// NewRule validates spec and builds a Rule. index is the rule's position in
// the configuration and decides ties between equally specific rules.
func NewRule(spec RuleSpec, index int) (*Rule, error) {
	r := &Rule{
		pattern:   strings.ToLower(strings.TrimSpace(spec.Pattern)),
		directory: normalizeDir(spec.Directory),
		minWidth:  spec.MinWidth,
		minHeight: spec.MinHeight,
		maxWidth:  spec.MaxWidth,
		maxHeight: spec.MaxHeight,
		index:     index,
	}

	for _, v := range []int{spec.MinWidth, spec.MinHeight, spec.MaxWidth, spec.MaxHeight} {
		if v < 0 {
			return nil, ErrBadSize
		}
	}
	if r.minWidth > 0 && r.maxWidth > 0 && r.minWidth > r.maxWidth {
		return nil, fmt.Errorf("width: %w", ErrInvertedBounds)
	}
	if r.minHeight > 0 && r.maxHeight > 0 && r.minHeight > r.maxHeight {
		return nil, fmt.Errorf("height: %w", ErrInvertedBounds)
	}
	if r.pattern == "" && r.directory == "" && !r.hasSizeBounds() {
		return nil, ErrNoCriteria
	}
	if r.pattern != "" {
		if _, err := path.Match(r.pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", spec.Pattern, err)
		}
	}

	if len(spec.Quality) == 0 {
		return nil, ErrEmptyQuality
	}
	r.quality = make(Quality, len(spec.Quality))
	for format, q := range spec.Quality {
		if q < MinQuality || q > MaxQuality {
			return nil, fmt.Errorf("%s=%d: %w", format, q, ErrQualityRange)
		}
		r.quality[CanonicalFormat(format)] = q
	}

	r.specificity = Specificity(r)
	return r, nil
}

// CompileRules validates a list of specs in declaration order.
func CompileRules(specs []RuleSpec) ([]*Rule, error) {
	out := make([]*Rule, 0, len(specs))
	for i, spec := range specs {
		r, err := NewRule(spec, i)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Directory returns the normalized directory (with trailing slash), or "".
func (r *Rule) Directory() string { return r.directory }

// Quality returns a copy of the rule's quality overrides.
func (r *Rule) Quality() Quality { return r.quality.Clone() }

// Score returns the cached specificity score.
func (r *Rule) Score() int { return r.specificity }

func (r *Rule) hasSizeBounds() bool {
	return r.minWidth > 0 || r.minHeight > 0 || r.maxWidth > 0 || r.maxHeight > 0
}

// String renders the rule's criteria for log output.
func (r *Rule) String() string {
	var parts []string
	if r.pattern != "" {
		parts = append(parts, "pattern="+r.pattern)
	}
	if r.directory != "" {
		parts = append(parts, "directory="+r.directory)
	}
	if r.minWidth > 0 {
		parts = append(parts, fmt.Sprintf("minWidth=%d", r.minWidth))
	}
	if r.minHeight > 0 {
		parts = append(parts, fmt.Sprintf("minHeight=%d", r.minHeight))
	}
	if r.maxWidth > 0 {
		parts = append(parts, fmt.Sprintf("maxWidth=%d", r.maxWidth))
	}
	if r.maxHeight > 0 {
		parts = append(parts, fmt.Sprintf("maxHeight=%d", r.maxHeight))
	}
	return "rule#" + fmt.Sprint(r.index+1) + "(" + strings.Join(parts, " ") + ")"
}

// normalizeDir converts separators to forward slashes, strips "./" and
// leading slashes, and appends a trailing slash. Empty input stays empty.
func normalizeDir(dir string) string {
	d := strings.TrimSpace(strings.ReplaceAll(dir, "\\", "/"))
	for strings.HasPrefix(d, "./") {
		d = d[2:]
	}
	d = strings.TrimLeft(d, "/")
	if d == "" || d == "." {
		return ""
	}
	if !strings.HasSuffix(d, "/") {
		d += "/"
	}
	return d
}

// CanonicalFormat lowercases a format name and folds the "jpg" alias into
// "jpeg".
func CanonicalFormat(format string) string {
	f := strings.ToLower(strings.TrimSpace(format))
	if f == "jpg" {
		return "jpeg"
	}
	return f
}
