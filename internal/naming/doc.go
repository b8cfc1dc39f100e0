// Package naming maps input images to output file paths and keeps those
// paths unique within a run.
//
// Files:
//   - outputpath.go: OutputPath (mirror the input tree, swap the extension)
//   - collision.go:  CollisionResolver (in-run "-dupN" disambiguation)
package naming
