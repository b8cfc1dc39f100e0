package display

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatBytes returns a human-readable IEC size (B, KiB, MiB, ...).
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		return "-" + humanize.IBytes(uint64(-bytes))
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatSavings describes the output size relative to the input, e.g.
// "1.2 MiB -> 300 KiB (-75.0%)". Returns "" when in is zero.
func FormatSavings(in, out int64) string {
	if in <= 0 {
		return ""
	}
	pct := (float64(out) - float64(in)) / float64(in) * 100
	return fmt.Sprintf("%s -> %s (%+.1f%%)", FormatBytes(in), FormatBytes(out), pct)
}

// FormatCount renders n with thousands separators.
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}
