package codec

import (
	"regexp"
	"strings"
)

// Pre-compiled stderr classifiers, checked in order by [Classify].
var (
	reEncoderMissing = regexp.MustCompile(
		`(?i)Unknown encoder|Encoder .* not found|Requested encoder .* not available`)

	reCorrupt = regexp.MustCompile(
		`(?i)Invalid data found when processing input|` +
			`corrupt|Truncated|premature end|` +
			`Could not find codec parameters|` +
			`Error while decoding`)

	reUnsupported = regexp.MustCompile(
		`(?i)not supported|unsupported|Unknown format|` +
			`No decoder for|Invalid pixel format`)

	reBusy = regexp.MustCompile(`(?i)Device or resource busy|Resource busy`)

	reAgain = regexp.MustCompile(`(?i)Resource temporarily unavailable`)

	reNoSpace = regexp.MustCompile(`(?i)No space left on device`)

	reNotFound = regexp.MustCompile(`(?i)No such file or directory`)

	reDenied = regexp.MustCompile(`(?i)Permission denied`)
)

// Error codes produced by [Classify] beyond the errno-style ones.
const (
	CodeCorrupt     = "ECORRUPT"
	CodeUnsupported = "EUNSUPPORTED"
	CodeCodec       = "ECODEC"
)

// MatchEncoderMissing reports whether stderr says the chosen encoder is not
// compiled into ffmpeg.
func MatchEncoderMissing(stderr string) bool {
	return reEncoderMissing.MatchString(stderr)
}

// Classify maps ffmpeg stderr to an error code. Unrecognized failures are
// ECODEC.
func Classify(stderr string) string {
	switch {
	case reBusy.MatchString(stderr):
		return "EBUSY"
	case reAgain.MatchString(stderr):
		return "EAGAIN"
	case reNoSpace.MatchString(stderr):
		return "ENOSPC"
	case reDenied.MatchString(stderr):
		return "EACCES"
	case reNotFound.MatchString(stderr):
		return "ENOENT"
	case reEncoderMissing.MatchString(stderr):
		return CodeUnsupported
	case reCorrupt.MatchString(stderr):
		return CodeCorrupt
	case reUnsupported.MatchString(stderr):
		return CodeUnsupported
	}
	return CodeCodec
}

// lastLine returns the last non-empty line of stderr, which is where ffmpeg
// puts the fatal message.
func lastLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}
