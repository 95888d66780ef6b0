package note

import (
	"regexp"
	"strings"
)

// Matches tag candidates: #name, #nested/tag. Leading character must be
// alphanumeric; later characters may include _, -, and /.
var tagPattern = regexp.MustCompile(`#([A-Za-z0-9][A-Za-z0-9_/-]*)`)

// extractTags finds hashtag labels in the body. Candidates inside inline or
// fenced code are skipped, as are numeric-only names and heading hashes.
func extractTags(body string) []TagRef {
	matches := tagPattern.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}

	mask := codeMask(body)
	var tags []TagRef
	for _, m := range matches {
		start := m[0]

		// Reject '#' glued to a preceding word or another '#': not a tag.
		if start > 0 {
			prev := body[start-1]
			if isWordByte(prev) || prev == '#' || prev == '&' {
				continue
			}
		}

		if start < len(mask) && mask[start] {
			continue
		}

		name := body[m[2]:m[3]]
		name = strings.Trim(name, "/")
		if name == "" || isNumericOnly(name) {
			continue
		}

		tag := TagRef{
			Original: body[start:m[1]],
			Name:     name,
			Span:     Span{Start: start, End: m[1]},
		}

		if strings.Contains(name, "/") {
			tag.IsNested = true
			tag.Parents = nestedParents(name)
		}

		tags = append(tags, tag)
	}
	return tags
}

// TagNamesIn extracts the distinct tag names found in an arbitrary piece of
// text, in first-seen order, with the same code-span skipping as Parse.
func TagNamesIn(text string) []string {
	tags := extractTags(text)
	if len(tags) == 0 {
		return nil
	}
	names := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if _, dup := seen[tag.Name]; dup {
			continue
		}
		seen[tag.Name] = struct{}{}
		names = append(names, tag.Name)
	}
	return names
}

// nestedParents returns every prefix of a nested tag: a/b/c ⇒ [a, a/b].
func nestedParents(name string) []string {
	parts := strings.Split(name, "/")
	parents := make([]string, 0, len(parts)-1)
	for i := 1; i < len(parts); i++ {
		parents = append(parents, strings.Join(parts[:i], "/"))
	}
	return parents
}

// codeMask marks byte positions that sit inside inline or fenced code.
// Fence toggles (``` or ~~~) claim whole lines; within ordinary lines,
// backtick parity claims inline spans.
func codeMask(body string) []bool {
	mask := make([]bool, len(body))
	inFence := false
	pos := 0

	for pos <= len(body) {
		end := strings.IndexByte(body[pos:], '\n')
		var line string
		if end < 0 {
			line = body[pos:]
			end = len(body)
		} else {
			line = body[pos : pos+end]
			end = pos + end + 1
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			markRange(mask, pos, end)
		} else if inFence {
			markRange(mask, pos, end)
		} else {
			markInlineCode(mask, line, pos)
		}

		if end >= len(body) {
			break
		}
		pos = end
	}
	return mask
}

// markInlineCode marks spans between backtick pairs on one line.
func markInlineCode(mask []bool, line string, offset int) {
	open := -1
	for i := 0; i < len(line); i++ {
		if line[i] != '`' {
			continue
		}
		if open < 0 {
			open = i
		} else {
			markRange(mask, offset+open, offset+i+1)
			open = -1
		}
	}
}

func markRange(mask []bool, start, end int) {
	for i := start; i < end && i < len(mask); i++ {
		mask[i] = true
	}
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

func isNumericOnly(name string) bool {
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
