package inference

import (
	"regexp"
	"strings"
)

var blankLineRuns = regexp.MustCompile(`\n[ \t]*(\n[ \t]*)+`)

// NormalizeReply collapses runs of two or more consecutive line breaks to a
// single blank line and trims outer whitespace. It is idempotent and
// independent of the sanitization pass applied at render time.
func NormalizeReply(raw string) string {
	return strings.TrimSpace(blankLineRuns.ReplaceAllString(raw, "\n\n"))
}
