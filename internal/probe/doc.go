// Package probe reads the pixel dimensions of input images.
//
// JPEG, PNG and GIF headers are decoded in-process with image.DecodeConfig.
// Anything else (WebP, AVIF, TIFF, HEIC, ...) falls back to a single ffprobe
// JSON call.
package probe
