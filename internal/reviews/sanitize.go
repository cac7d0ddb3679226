package reviews

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var stripMarkup = bluemonday.StrictPolicy()

// sanitizeText removes markup and control characters and collapses runs of whitespace within
// each line. Entities produced by the policy are decoded again since review text is stored raw
// and escaped at render time.
func sanitizeText(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return ""
	}
	stripped := html.UnescapeString(stripMarkup.Sanitize(trimmed))

	normalized := strings.ReplaceAll(strings.ReplaceAll(stripped, "\r\n", "\n"), "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, line := range lines {
		line = strings.Map(func(r rune) rune {
			if unicode.IsControl(r) {
				return -1
			}
			return r
		}, line)
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
