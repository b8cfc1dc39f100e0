package probe

import "github.com/backmassage/pixmaster/internal/rules"

// Info describes the first video stream of an image as reported by
// ffprobe.
type Info struct {
	Codec  string
	PixFmt string
	Width  int
	Height int
}

// Dimensions converts the info into the rule engine's size descriptor.
// Returns nil when either side is unknown.
func (i *Info) Dimensions() *rules.Dimensions {
	if i == nil || i.Width <= 0 || i.Height <= 0 {
		return nil
	}
	return &rules.Dimensions{Width: i.Width, Height: i.Height}
}
