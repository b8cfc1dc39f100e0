// Package planner turns one discovered input file into a FilePlan: the
// resolved per-format quality and the list of outputs the codec should
// write.
//
//   - FilePlan and Planner (types.go)
//   - BuildPlan: output paths, collision resolution, per-output options (planner.go)
//   - ResolveQuality: rule engine with on-demand dimension probing (quality.go)
package planner
