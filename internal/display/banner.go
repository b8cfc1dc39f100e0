package display

import (
	"fmt"
	"io"

	"github.com/backmassage/pixmaster/internal/term"
)

// PrintBanner prints the ASCII art banner; uses Magenta if colors are enabled.
func PrintBanner(w io.Writer, version string) {
	fmt.Fprint(w, term.Magenta)
	fmt.Fprint(w, ` ____  _      __  __           _
|  _ \(_)_  _|  \/  | __ _ ___| |_ ___ _ __
| |_) | \ \/ / |\/| |/ _`+"`"+` / __| __/ _ \ '__|
|  __/| |>  <| |  | | (_| \__ \ ||  __/ |
|_|   |_/_/\_\_|  |_|\__,_|___/\__\___|_|
`)
	fmt.Fprint(w, term.NC)
	if version != "" {
		fmt.Fprintf(w, "v%s\n", version)
	}
}
