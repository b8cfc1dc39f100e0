package display

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/muesli/termenv"
)

// ProgressLine renders a one-line "[bar] n/total" status without running a
// TUI program. The bar uses the default gradient when color is on and
// plain '#'/'-' cells otherwise.
type ProgressLine struct {
	bar   progress.Model
	color bool
}

// NewProgressLine returns a renderer with a bar of width cells.
func NewProgressLine(width int, color bool) *ProgressLine {
	opts := []progress.Option{progress.WithWidth(width), progress.WithoutPercentage()}
	if color {
		opts = append(opts, progress.WithDefaultGradient())
	} else {
		opts = append(opts, progress.WithColorProfile(termenv.Ascii), progress.WithFillCharacters('#', '-'))
	}
	return &ProgressLine{bar: progress.New(opts...), color: color}
}

// Render returns the bar for done of total followed by the counter and
// label.
func (p *ProgressLine) Render(done, total int, label string) string {
	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total)
	}
	line := fmt.Sprintf("%s %d/%d", p.bar.ViewAs(pct), done, total)
	if label != "" {
		line += " " + label
	}
	return line
}
