package codec

// encoderCandidates lists the ffmpeg encoders tried for each format, in
// preference order.
var encoderCandidates = map[string][]string{
	FormatWebP: {"libwebp"},
	FormatAVIF: {"libaom-av1", "libsvtav1"},
	FormatJPEG: {"mjpeg"},
	FormatPNG:  {"png"},
}

// Encoders returns the candidate encoders for format.
func Encoders(format string) []string {
	return encoderCandidates[format]
}

// encoderState walks the candidate encoders for one output. A run that
// fails because the encoder is missing moves to the next candidate; any
// other failure ends the walk.
type encoderState struct {
	candidates []string
	idx        int
}

func newEncoderState(format string) *encoderState {
	return &encoderState{candidates: Encoders(format)}
}

// Current returns the encoder to use for the next run.
func (s *encoderState) Current() string {
	if s.idx >= len(s.candidates) {
		return ""
	}
	return s.candidates[s.idx]
}

// Advance inspects stderr from a failed run and reports whether another
// encoder is worth trying.
func (s *encoderState) Advance(stderr string) bool {
	if !MatchEncoderMissing(stderr) {
		return false
	}
	s.idx++
	return s.idx < len(s.candidates)
}
