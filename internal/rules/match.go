package rules

import (
	"path"
	"strings"
)

// Matches reports whether r applies to the file at relPath. All criteria
// present on the rule must hold; absent criteria match vacuously.
func (r *Rule) Matches(relPath string, dims *Dimensions) bool {
	return r.matchPattern(relPath) && r.matchDirectory(relPath) && r.matchSize(dims)
}

// matchPattern globs the lowercased basename. Directories never take part.
func (r *Rule) matchPattern(relPath string) bool {
	if r.pattern == "" {
		return true
	}
	base := path.Base(strings.ReplaceAll(relPath, "\\", "/"))
	ok, err := path.Match(r.pattern, strings.ToLower(base))
	return err == nil && ok
}

// matchDirectory is a substring match on the slash-normalized path. The
// trailing slash on the rule directory bounds the end of the name, so
// "images/" matches "site/images/a.png" and "my-images/a.png" but not
// "images-backup/a.png".
func (r *Rule) matchDirectory(relPath string) bool {
	if r.directory == "" {
		return true
	}
	return strings.Contains(strings.ReplaceAll(relPath, "\\", "/"), r.directory)
}

// matchSize fails closed: a size-bounded rule never matches a file whose
// dimensions are unknown.
func (r *Rule) matchSize(dims *Dimensions) bool {
	if !r.hasSizeBounds() {
		return true
	}
	if dims == nil {
		return false
	}
	if r.minWidth > 0 && dims.Width < r.minWidth {
		return false
	}
	if r.minHeight > 0 && dims.Height < r.minHeight {
		return false
	}
	if r.maxWidth > 0 && dims.Width > r.maxWidth {
		return false
	}
	if r.maxHeight > 0 && dims.Height > r.maxHeight {
		return false
	}
	return true
}
