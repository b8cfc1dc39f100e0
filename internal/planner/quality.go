package planner

import (
	"context"
	"fmt"

	"github.com/backmassage/pixmaster/internal/rules"
)

// QualityResult holds the resolved per-file quality and how it was reached.
type QualityResult struct {
	Quality rules.Quality
	Rules   []string
	Dims    *rules.Dimensions
	Note    string
}

// ResolveQuality merges defaults with every rule matching relPath. Image
// dimensions are probed only when some rule has size bounds; a probe
// failure leaves them unknown, so size-bounded rules do not match.
func ResolveQuality(ctx context.Context, engine *rules.Engine, dims DimensionsFunc, input, relPath string, defaults rules.Quality) QualityResult {
	var res QualityResult
	if engine.NeedsDimensions() && dims != nil {
		d, err := dims(ctx, input)
		if err != nil {
			res.Note = fmt.Sprintf("dimensions unknown (%v); size rules skipped", err)
		} else {
			res.Dims = d
		}
	}

	for _, r := range engine.Matching(relPath, res.Dims) {
		res.Rules = append(res.Rules, r.String())
	}
	res.Quality = engine.Resolve(relPath, res.Dims, defaults)
	return res
}
