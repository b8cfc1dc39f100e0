// Package codec encodes image outputs by running ffmpeg, one invocation per
// output target.
//
// Files:
//   - types.go:    Processor interface, OutputConfig and OutputResult
//   - builder.go:  per-format ffmpeg argument construction and quality mapping
//   - errors.go:   stderr classification into error codes
//   - encoders.go: encoder fallback state for a single output
//   - executor.go: process execution with stderr capture
//   - ffmpeg.go:   the FFmpeg Processor (temp file, rename, results)
package codec
