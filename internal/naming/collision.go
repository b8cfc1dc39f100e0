package naming

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// CollisionResolver hands out output paths so that no two inputs write the
// same file. The first input to ask for a path gets it; later ones get
// "<stem>-dupN<ext>". Asking again with the same input and path returns
// the earlier answer, and since numbers are handed out in request order,
// replaying inputs in the same order reproduces the same names. Safe for
// concurrent use.
type CollisionResolver struct {
	mu     sync.Mutex
	owners map[string]string // granted output -> input
	grants map[grant]string  // (input, requested) -> granted output
	next   map[string]int    // requested output -> next dup number to try
}

type grant struct {
	input, requested string
}

// NewCollisionResolver returns an empty resolver.
func NewCollisionResolver() *CollisionResolver {
	return &CollisionResolver{
		owners: make(map[string]string),
		grants: make(map[grant]string),
		next:   make(map[string]int),
	}
}

// Resolve returns the output path input should write instead of requested.
func (cr *CollisionResolver) Resolve(input, requested string) string {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	key := grant{input, requested}
	if out, ok := cr.grants[key]; ok {
		return out
	}
	out := requested
	if owner, taken := cr.owners[requested]; taken && owner != input {
		out = cr.freeDup(requested)
	}
	cr.owners[out] = input
	cr.grants[key] = out
	return out
}

// freeDup returns the lowest unclaimed -dupN variant of requested at or
// above the last number handed out for it.
func (cr *CollisionResolver) freeDup(requested string) string {
	ext := filepath.Ext(requested)
	stem := strings.TrimSuffix(requested, ext)
	n := max(cr.next[requested], 1)
	for {
		candidate := fmt.Sprintf("%s-dup%d%s", stem, n, ext)
		if _, taken := cr.owners[candidate]; !taken {
			cr.next[requested] = n + 1
			return candidate
		}
		n++
	}
}

// Owner returns the input that claimed output, if any.
func (cr *CollisionResolver) Owner(output string) (string, bool) {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	in, ok := cr.owners[output]
	return in, ok
}
