package codec

import "context"

// Supported output formats.
const (
	FormatWebP = "webp"
	FormatAVIF = "avif"
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// Extension returns the file extension (with dot) written for format, or ""
// for an unknown format.
func Extension(format string) string {
	switch format {
	case FormatWebP:
		return ".webp"
	case FormatAVIF:
		return ".avif"
	case FormatJPEG:
		return ".jpg"
	case FormatPNG:
		return ".png"
	}
	return ""
}

// Supported reports whether format can be encoded.
func Supported(format string) bool { return Extension(format) != "" }

// Options are the encoder settings for one output.
type Options struct {
	Quality int
}

// Resize bounds the output. A zero side keeps the aspect ratio.
type Resize struct {
	Width  int
	Height int
}

// OutputConfig is one requested output of an input image.
type OutputConfig struct {
	OutputPath string
	Format     string
	Options    Options
	Resize     *Resize
}

// OutputResult reports what happened to one OutputConfig.
type OutputResult struct {
	OutputPath string
	Success    bool
	Err        error
	Bytes      int64
}

// Processor converts an input file into every requested output. The
// returned error is the first output failure, if any; results always have
// one entry per config.
type Processor interface {
	Process(ctx context.Context, input string, outputs []OutputConfig) ([]OutputResult, error)
}
