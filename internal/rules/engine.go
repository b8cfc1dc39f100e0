package rules

import "sort"

// Engine resolves per-file quality from an immutable rule set. The rules are
// ordered once at construction: ascending specificity, declaration order
// within equal scores.
type Engine struct {
	rules     []*Rule
	needsDims bool
}

// NewEngine builds an Engine over rules. The slice is copied.
func NewEngine(rules []*Rule) *Engine {
	sorted := make([]*Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].specificity != sorted[j].specificity {
			return sorted[i].specificity < sorted[j].specificity
		}
		return sorted[i].index < sorted[j].index
	})

	e := &Engine{rules: sorted}
	for _, r := range sorted {
		if r.hasSizeBounds() {
			e.needsDims = true
			break
		}
	}
	return e
}

// Len returns the number of rules.
func (e *Engine) Len() int { return len(e.rules) }

// NeedsDimensions reports whether any rule has size bounds, i.e. whether
// callers should bother probing image dimensions.
func (e *Engine) NeedsDimensions() bool { return e.needsDims }

// Matching returns the rules that apply to relPath in application order
// (least specific first).
func (e *Engine) Matching(relPath string, dims *Dimensions) []*Rule {
	var out []*Rule
	for _, r := range e.rules {
		if r.Matches(relPath, dims) {
			out = append(out, r)
		}
	}
	return out
}

// Resolve merges defaults with the quality maps of every matching rule.
// Later (more specific) rules overwrite only the keys they name. With no
// matches the result equals defaults. defaults is never modified.
func (e *Engine) Resolve(relPath string, dims *Dimensions, defaults Quality) Quality {
	out := defaults.Clone()
	for _, r := range e.Matching(relPath, dims) {
		for format, q := range r.quality {
			out[format] = q
		}
	}
	return out
}
