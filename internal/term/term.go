// Package term holds the process-wide color decision and the ANSI
// sequences derived from it. logging and display read the sequences; they
// are empty strings while color is off, so concatenating them is harmless.
package term

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/backmassage/pixmaster/internal/config"
)

// Bold bright foreground sequences, set by Configure.
var (
	Red     string
	Green   string
	Yellow  string
	Blue    string
	Cyan    string
	Magenta string
	NC      string // reset
)

var profile = termenv.Ascii

// Configure picks the color profile for stdout and sets the sequences.
// Called once from logging.NewLogger.
func Configure(mode config.ColorMode) {
	apply(Detect(mode, IsTerminal(os.Stdout), os.Getenv))
}

// Detect returns the profile for mode. Auto needs a terminal and honors
// NO_COLOR (https://no-color.org) and TERM=dumb; CLICOLOR_FORCE enables
// color without a terminal.
func Detect(mode config.ColorMode, tty bool, getenv func(string) string) termenv.Profile {
	switch mode {
	case config.ColorAlways:
		return termenv.ANSI
	case config.ColorNever:
		return termenv.Ascii
	}
	if getenv("NO_COLOR") != "" || strings.EqualFold(getenv("TERM"), "dumb") {
		return termenv.Ascii
	}
	if !tty && getenv("CLICOLOR_FORCE") == "" {
		return termenv.Ascii
	}
	return termenv.ANSI
}

func apply(p termenv.Profile) {
	profile = p
	if p == termenv.Ascii {
		Red, Green, Yellow, Blue, Cyan, Magenta, NC = "", "", "", "", "", "", ""
		return
	}
	bold := func(c termenv.ANSIColor) string {
		return termenv.CSI + "1;" + c.Sequence(false) + "m"
	}
	Red = bold(termenv.ANSIBrightRed)
	Green = bold(termenv.ANSIBrightGreen)
	Yellow = bold(termenv.ANSIBrightYellow)
	Blue = bold(termenv.ANSIBrightBlue)
	Cyan = bold(termenv.ANSIBrightCyan)
	Magenta = bold(termenv.ANSIBrightMagenta)
	NC = termenv.CSI + termenv.ResetSeq + "m"
}

// Enabled reports whether color output is on.
func Enabled() bool { return profile != termenv.Ascii }

// IsTerminal reports whether f is a terminal, Cygwin and MSYS ptys
// included.
func IsTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
