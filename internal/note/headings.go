package note

import (
	"regexp"
	"strings"
)

// Matches ATX headings: # Title through ###### Title.
var headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// extractHeadings finds Markdown headings in document order, skipping lines
// inside fenced code blocks.
func extractHeadings(body string) []Heading {
	var headings []Heading
	inFence := false
	offset := 0

	for lineNum, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		} else if !inFence {
			if match := headingPattern.FindStringSubmatch(line); match != nil {
				text := match[2]
				headings = append(headings, Heading{
					Level:  len(match[1]),
					Text:   text,
					Anchor: Slugify(text),
					Line:   lineNum,
					Offset: offset,
				})
			}
		}
		offset += len(line) + 1
	}
	return headings
}

// Slugify converts heading text into a lowercase anchor: letters and digits
// kept, spaces collapsed into single hyphens, everything else dropped.
func Slugify(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastHyphen := true // suppress a leading hyphen

	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
