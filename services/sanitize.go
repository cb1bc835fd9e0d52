package services

import (
	"regexp"
	"strings"
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
)

// sanitizeContent strips HTML from user-supplied message content.
// script and style elements are removed with their contents, any other
// markup loses its tags, and surrounding whitespace is trimmed. The
// output contains no '<' or '>', so sanitizing twice is a no-op.
func sanitizeContent(content string) string {
	content = scriptRe.ReplaceAllString(content, "")
	content = styleRe.ReplaceAllString(content, "")

	var b strings.Builder
	b.Grow(len(content))
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
