package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	summaryTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	summaryLabelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	summaryOKStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
	summaryWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	summaryErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	summaryPanelStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Summary is the end-of-job report.
type Summary struct {
	Title       string
	Total       int
	Succeeded   int
	Skipped     int
	Failed      int
	LFSPointers int
	Resumed     int
	InputBytes  int64
	OutputBytes int64
	Elapsed     time.Duration
	ErrorLog    string // Shown only when Failed > 0.
	Checkpoint  string // Shown only when the checkpoint was retained.
}

type summaryRow struct {
	label string
	value string
	style *lipgloss.Style
}

func (s Summary) rows() []summaryRow {
	rows := []summaryRow{
		{"Files", FormatCount(s.Total), nil},
		{"Succeeded", FormatCount(s.Succeeded), &summaryOKStyle},
		{"Skipped", FormatCount(s.Skipped), nil},
	}
	if s.Resumed > 0 {
		rows = append(rows, summaryRow{"Resumed past", FormatCount(s.Resumed), nil})
	}
	if s.LFSPointers > 0 {
		rows = append(rows, summaryRow{"LFS pointers", FormatCount(s.LFSPointers), &summaryWarnStyle})
	}
	failedStyle := &summaryOKStyle
	if s.Failed > 0 {
		failedStyle = &summaryErrorStyle
	}
	rows = append(rows, summaryRow{"Failed", FormatCount(s.Failed), failedStyle})
	if saved := FormatSavings(s.InputBytes, s.OutputBytes); saved != "" {
		rows = append(rows, summaryRow{"Size", saved, nil})
	}
	if s.Elapsed > 0 {
		rows = append(rows, summaryRow{"Elapsed", s.Elapsed.Round(time.Millisecond).String(), nil})
	}
	if s.Failed > 0 && s.ErrorLog != "" {
		rows = append(rows, summaryRow{"Error log", s.ErrorLog, &summaryErrorStyle})
	}
	if s.Checkpoint != "" {
		rows = append(rows, summaryRow{"Checkpoint", s.Checkpoint + " (use --resume)", nil})
	}
	return rows
}

// Render draws the summary as a bordered lipgloss panel when color is set,
// or as aligned plain lines otherwise.
func (s Summary) Render(color bool) string {
	title := s.Title
	if title == "" {
		title = "Summary"
	}
	rows := s.rows()

	if !color {
		var b strings.Builder
		b.WriteString("=== " + title + " ===\n")
		for _, r := range rows {
			fmt.Fprintf(&b, "  %-14s%s\n", r.label, r.value)
		}
		return b.String()
	}

	lines := []string{summaryTitleStyle.Render(title)}
	for _, r := range rows {
		value := r.value
		if r.style != nil {
			value = r.style.Render(value)
		}
		lines = append(lines, summaryLabelStyle.Render(r.label)+value)
	}
	return summaryPanelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, lines...)) + "\n"
}
