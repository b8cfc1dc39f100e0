package rules

import "strings"

// Specificity weights. Per-criterion bonuses are capped so that the
// combination bonus of a two-criterion rule always exceeds the largest
// possible single-criterion score.
const (
	patternWeight   = 1000
	directoryWeight = 500
	sizeWeight      = 100
	comboWeight     = 2000
	maxBonus        = 99
)

// Specificity scores how narrowly r targets files. Higher scores are applied
// later during resolution and win on overlapping format keys.
//
//	pattern:    1000 + literal characters in the glob (max +99)
//	directory:   500 + path segment depth (max +99)
//	size:        100
//	combination: 2000 per criterion type beyond the first
func Specificity(r *Rule) int {
	score := 0
	kinds := 0
	if r.pattern != "" {
		score += patternWeight + min(literalCount(r.pattern), maxBonus)
		kinds++
	}
	if r.directory != "" {
		score += directoryWeight + min(segmentDepth(r.directory), maxBonus)
		kinds++
	}
	if r.hasSizeBounds() {
		score += sizeWeight
		kinds++
	}
	if kinds > 1 {
		score += comboWeight * (kinds - 1)
	}
	return score
}

// literalCount counts glob characters that are not wildcards. Bracket
// expressions count as a single wildcard; escaped characters are literal.
func literalCount(pattern string) int {
	n := 0
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?':
		case '[':
			for i < len(pattern) && pattern[i] != ']' {
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				i++
				n++
			}
		default:
			n++
		}
	}
	return n
}

func segmentDepth(dir string) int {
	n := 0
	for _, seg := range strings.Split(dir, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}
