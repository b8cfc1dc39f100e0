package codec

import (
	"fmt"
	"strconv"
)

// Quality mapping ranges for encoders that do not take 1–100 directly.
const (
	avifCRFMax  = 63
	jpegQMin    = 2
	jpegQMax    = 31
	pngLevelMax = 9
)

// Build constructs the ffmpeg argument slice that encodes input into dst
// using encoder. dst is normally a temp path next to the final output.
func Build(bin, input, dst, encoder string, out OutputConfig, verbose bool) []string {
	args := make([]string, 0, 32)

	// --- Preamble ---
	args = append(args, bin, "-hide_banner", "-nostdin", "-y")
	if verbose {
		args = append(args, "-loglevel", "info")
	} else {
		args = append(args, "-loglevel", "error")
	}

	// --- Input ---
	args = append(args, "-i", input)

	// --- Filters ---
	if vf := ScaleFilter(out.Resize); vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-frames:v", "1", "-map_metadata", "-1")

	// --- Codec ---
	args = appendCodec(args, out.Format, encoder, out.Options.Quality)

	// --- Output ---
	args = append(args, dst)
	return args
}

// appendCodec adds the encoder, its quality setting, and the muxer.
func appendCodec(args []string, format, encoder string, quality int) []string {
	q := clamp(quality, 1, 100)
	switch format {
	case FormatWebP:
		args = append(args, "-c:v", encoder, "-quality", strconv.Itoa(q), "-f", "webp")
	case FormatAVIF:
		crf := strconv.Itoa(AVIFCRF(q))
		switch encoder {
		case "libsvtav1":
			args = append(args, "-c:v", encoder, "-crf", crf, "-preset", "8")
		default:
			args = append(args, "-c:v", encoder, "-crf", crf, "-b:v", "0", "-still-picture", "1")
		}
		args = append(args, "-pix_fmt", "yuv420p", "-f", "avif")
	case FormatJPEG:
		args = append(args, "-c:v", encoder, "-q:v", strconv.Itoa(JPEGQScale(q)),
			"-pix_fmt", "yuvj420p", "-f", "image2", "-update", "1")
	case FormatPNG:
		args = append(args, "-c:v", encoder, "-compression_level", strconv.Itoa(PNGLevel(q)),
			"-f", "image2", "-update", "1")
	}
	return args
}

// ScaleFilter renders a scale filter that fits the image inside r without
// changing its aspect ratio. Returns "" when r is nil or empty.
func ScaleFilter(r *Resize) string {
	if r == nil || (r.Width <= 0 && r.Height <= 0) {
		return ""
	}
	switch {
	case r.Width > 0 && r.Height > 0:
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", r.Width, r.Height)
	case r.Width > 0:
		return fmt.Sprintf("scale=%d:-1", r.Width)
	default:
		return fmt.Sprintf("scale=-1:%d", r.Height)
	}
}

// AVIFCRF maps quality 1–100 onto the AV1 CRF scale, where 0 is best.
func AVIFCRF(q int) int {
	q = clamp(q, 1, 100)
	return avifCRFMax - (q*avifCRFMax)/100
}

// JPEGQScale maps quality 1–100 onto mjpeg's q:v scale (2 best, 31 worst).
func JPEGQScale(q int) int {
	q = clamp(q, 1, 100)
	return jpegQMax - ((q-1)*(jpegQMax-jpegQMin))/99
}

// PNGLevel maps quality onto zlib compression level. PNG is lossless, so
// higher quality trades size for speed with a lower level.
func PNGLevel(q int) int {
	q = clamp(q, 1, 100)
	return pngLevelMax - ((q-1)*pngLevelMax)/99
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
