package note

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Matches frontmatter at the start of a document: ---\n...\n---
var frontmatterPattern = regexp.MustCompile(`(?s)^---\r?\n(.*?)\r?\n---[ \t]*\r?\n?`)

// extractFrontmatter splits raw text into frontmatter key/values and the
// remaining body. Malformed YAML never fails: the whole input becomes the
// body and a warning is returned.
func extractFrontmatter(raw string) (map[string]any, string, []string) {
	match := frontmatterPattern.FindStringSubmatch(raw)
	if match == nil {
		return map[string]any{}, raw, nil
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(match[1]), &fm); err != nil {
		return map[string]any{}, raw, []string{
			"malformed frontmatter treated as body: " + firstLine(err.Error()),
		}
	}
	if fm == nil {
		fm = map[string]any{}
	}

	body := raw[len(match[0]):]
	return fm, body, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}

func splitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
