// Package rules resolves per-file output quality from a set of override
// rules ranked by specificity.
//
// A [Rule] targets files by basename glob, directory, and/or pixel
// dimensions. [Engine.Resolve] folds the quality maps of every matching
// rule onto the configured defaults, least specific first, so the most
// specific rule has the last word on each format key it names while keys it
// leaves out keep the values set by broader rules or the defaults.
package rules
