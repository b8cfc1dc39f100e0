package naming

import (
	"path/filepath"
	"strings"
)

// OutputPath builds the output file path for an input file relative to the
// scan root. The input's directory structure is mirrored under outputDir.
// ext includes the dot (e.g. ".webp").
//
//	<outputDir>/<relDir>/<stem><suffix><ext>
func OutputPath(outputDir, relPath, suffix, ext string) string {
	rel := filepath.FromSlash(relPath)
	dir := filepath.Dir(rel)
	base := filepath.Base(rel)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(outputDir, dir, stem+suffix+ext)
}
