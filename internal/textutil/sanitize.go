package textutil

import (
	"regexp"
	"strings"
)

var (
	unsafePathChars  = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRunPat = regexp.MustCompile(`\s+`)
)

// SanitizePathSegment removes characters media servers reject in file names,
// collapses whitespace, and trims trailing dots and spaces.
func SanitizePathSegment(name string) string {
	name = unsafePathChars.ReplaceAllString(name, "")
	name = whitespaceRunPat.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	return strings.TrimRight(name, ". ")
}
