// Package textnorm normalizes text used as identity keys: judge names and
// blob key segments. Court records mix full-width and half-width characters,
// so NFKC runs before anything else.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// JudgeName produces the lookup key for a judge: NFKC-folded with all
// whitespace removed. Two spellings of the same judge that differ only in
// width or spacing map to the same key.
func JudgeName(name string) string {
	folded := norm.NFKC.String(name)
	return strings.Join(strings.Fields(folded), "")
}

// KeySegment sanitizes a value for use as one segment of a blob key.
// Path separators would otherwise split the segment.
func KeySegment(value string) string {
	folded := norm.NFKC.String(value)
	folded = strings.ReplaceAll(folded, "/", "_")
	folded = strings.ReplaceAll(folded, "\\", "_")
	return strings.TrimSpace(folded)
}
