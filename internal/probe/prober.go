package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF header decoding
	_ "image/jpeg" // register JPEG header decoding
	_ "image/png"  // register PNG header decoding
	"os"
	"os/exec"

	"github.com/backmassage/pixmaster/internal/rules"
)

// ErrNoStream is returned when ffprobe finds no video stream to measure.
var ErrNoStream = errors.New("no image stream")

// Prober measures images. Bin is the ffprobe binary used for formats the
// standard library cannot decode; empty means "ffprobe".
type Prober struct {
	Bin string
}

// Dimensions returns the pixel size of the image at path.
func (p *Prober) Dimensions(ctx context.Context, path string) (*rules.Dimensions, error) {
	if d, err := decodeConfig(path); err == nil {
		return d, nil
	} else if errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	info, err := p.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	d := info.Dimensions()
	if d == nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, ErrNoStream)
	}
	return d, nil
}

func decodeConfig(path string) (*rules.Dimensions, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, err
	}
	return &rules.Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Probe runs a single ffprobe JSON call against path and returns the first
// video stream.
func (p *Prober) Probe(ctx context.Context, path string) (*Info, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	cmd := exec.CommandContext(ctx, bin,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-select_streams", "v:0",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseJSON(out)
}

// ParseJSON converts raw ffprobe JSON output into an Info.
// Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*Info, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	for _, s := range raw.Streams {
		if s.CodecType == "video" {
			return &Info{Codec: s.CodecName, PixFmt: s.PixFmt, Width: s.Width, Height: s.Height}, nil
		}
	}
	return nil, ErrNoStream
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index     int    `json:"index"`
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	PixFmt    string `json:"pix_fmt"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}
