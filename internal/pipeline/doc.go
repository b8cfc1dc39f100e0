// Package pipeline orchestrates file discovery, per-file processing, and
// batch summary reporting.
//
// Each file moves through one state machine:
//
//	Pending → LFS check → freshness check → convert → {Succeeded, Skipped, Failed}
//
// Conversion runs through the recovery coordinator, outcomes land in the
// checkpoint ledger, and the checkpoint is saved every
// config.CheckpointInterval files. A run that finishes with zero failures
// removes the checkpoint and the error log.
//
//   - Discover: sorted relative paths with a configured extension (discover.go)
//   - NeedsProcessing: timestamp comparison against every output (freshness.go)
//   - Runner: Run (batch) and ProcessOne (watch) (runner.go)
//   - Watch: fsnotify-driven conversion of changed files (watch.go)
//   - Metrics: OpenTelemetry counters and histograms (metrics.go)
package pipeline
