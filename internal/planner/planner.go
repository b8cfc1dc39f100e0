package planner

import (
	"context"
	"path/filepath"

	"github.com/backmassage/pixmaster/internal/codec"
	"github.com/backmassage/pixmaster/internal/config"
	"github.com/backmassage/pixmaster/internal/naming"
	"github.com/backmassage/pixmaster/internal/rules"
)

// DimensionsFunc reports the pixel size of an image.
type DimensionsFunc func(ctx context.Context, path string) (*rules.Dimensions, error)

// Planner builds FilePlans for one job. The collision resolver is shared
// across all files so output names stay unique within the run.
type Planner struct {
	cfg      *config.Config
	engine   *rules.Engine
	resolver *naming.CollisionResolver
	dims     DimensionsFunc
}

// New returns a Planner for cfg, which must already be validated. dims may
// be nil when no rule has size bounds.
func New(cfg *config.Config, dims DimensionsFunc) *Planner {
	return &Planner{
		cfg:      cfg,
		engine:   rules.NewEngine(cfg.Rules),
		resolver: naming.NewCollisionResolver(),
		dims:     dims,
	}
}

// Engine returns the rule engine built from the configuration.
func (p *Planner) Engine() *rules.Engine { return p.engine }

// Plan resolves quality for relPath and builds its FilePlan.
func (p *Planner) Plan(ctx context.Context, relPath string) *FilePlan {
	input := filepath.Join(p.cfg.InputDir, filepath.FromSlash(relPath))
	q := ResolveQuality(ctx, p.engine, p.dims, input, relPath, p.cfg.Quality)
	plan := BuildPlan(p.cfg, relPath, q.Quality, p.resolver)
	plan.Rules = q.Rules
	plan.Dims = q.Dims
	plan.Note = q.Note
	return plan
}

// BuildPlan produces the FilePlan for relPath with an already resolved
// quality map. Each configured output gets its path (mirrored under the
// output root, de-duplicated through resolver) and the quality for its
// format.
func BuildPlan(cfg *config.Config, relPath string, quality rules.Quality, resolver *naming.CollisionResolver) *FilePlan {
	plan := &FilePlan{
		InputPath: filepath.Join(cfg.InputDir, filepath.FromSlash(relPath)),
		RelPath:   relPath,
		Quality:   quality,
		Outputs:   make([]codec.OutputConfig, 0, len(cfg.Outputs)),
	}

	for _, o := range cfg.Outputs {
		requested := naming.OutputPath(cfg.OutputDir, relPath, o.Suffix, codec.Extension(o.Format))
		out := requested
		if resolver != nil {
			out = resolver.Resolve(plan.InputPath, requested)
		}

		q, ok := quality[o.Format]
		if !ok {
			q = config.FallbackQuality
		}

		oc := codec.OutputConfig{
			OutputPath: out,
			Format:     o.Format,
			Options:    codec.Options{Quality: q},
		}
		if o.Width > 0 || o.Height > 0 {
			oc.Resize = &codec.Resize{Width: o.Width, Height: o.Height}
		}
		plan.Outputs = append(plan.Outputs, oc)
	}
	return plan
}

// Claim reserves the output paths relPath would get without resolving
// quality. Files skipped on resume still claim their names so later files
// are de-duplicated exactly as in the run that processed them.
func (p *Planner) Claim(relPath string) []string {
	return BuildPlan(p.cfg, relPath, p.cfg.Quality, p.resolver).OutputPaths()
}
