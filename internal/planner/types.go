package planner

import (
	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/rules"
)

// FilePlan holds every decision made for one input file. It is produced by
// BuildPlan and consumed by the pipeline (freshness check, codec call).
type FilePlan struct {
	InputPath string // Absolute path of the source image.
	RelPath   string // Slash-separated path relative to the input root.

	Quality rules.Quality     // Resolved quality per format.
	Rules   []string          // Matching rules, least specific first (for verbose logs).
	Dims    *rules.Dimensions // nil when not probed or unknown.
	Note    string            // Set when probing failed and size rules were skipped.

	Outputs []codec.OutputConfig
}

// OutputPaths returns the output file paths in configuration order.
func (p *FilePlan) OutputPaths() []string {
	paths := make([]string, len(p.Outputs))
	for i, o := range p.Outputs {
		paths[i] = o.OutputPath
	}
	return paths
}
