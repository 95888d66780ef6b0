package note

import (
	"regexp"
	"strings"
)

// Matches wiki-links: [[Target]], [[Target|Display]], [[Target#Anchor]],
// and embeds ![[Target]].
var wikiLinkPattern = regexp.MustCompile(`(!?)\[\[([^\[\]]+)\]\]`)

// DefaultNormalizeChars are the path-hostile characters substituted in link
// targets. Angle brackets and quotes are deliberately excluded so technical
// references like Map<K,V> keep their meaning.
const DefaultNormalizeChars = `\/:*?|`

// extractLinks finds all wiki-links in the body. normalizeChars lists the
// characters replaced by "-" in targets; pass DefaultNormalizeChars for the
// standard set.
func extractLinks(body string, normalizeChars string) []LinkRef {
	matches := wikiLinkPattern.FindAllStringSubmatchIndex(body, -1)
	if len(matches) == 0 {
		return nil
	}

	links := make([]LinkRef, 0, len(matches))
	for _, m := range matches {
		original := body[m[0]:m[1]]
		isEmbed := m[3] > m[2]
		inner := body[m[4]:m[5]]

		// [[target#anchor|display]]: alias first, then anchor.
		targetPart, display, _ := strings.Cut(inner, "|")
		target, anchor, _ := strings.Cut(targetPart, "#")

		target = NormalizeTarget(target, normalizeChars)
		if target == "" && anchor == "" {
			continue
		}

		links = append(links, LinkRef{
			Original:    original,
			Target:      target,
			DisplayText: strings.TrimSpace(display),
			Anchor:      strings.TrimSpace(anchor),
			Span:        Span{Start: m[0], End: m[1]},
			IsEmbed:     isEmbed,
		})
	}
	return links
}

// NormalizeTarget collapses whitespace and substitutes the configured
// path-hostile characters with "-". The substitution set is a configuration
// decision: the default keeps angle brackets and quotes intact so that
// targets naming generic types survive losslessly.
func NormalizeTarget(target string, normalizeChars string) string {
	target = strings.Join(strings.Fields(target), " ")
	if normalizeChars == "" {
		return target
	}

	var b strings.Builder
	b.Grow(len(target))
	for _, r := range target {
		if strings.ContainsRune(normalizeChars, r) {
			b.WriteByte('-')
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LinkTargetsIn extracts and normalizes the distinct wiki-link targets found
// in an arbitrary piece of text, in first-seen order.
func LinkTargetsIn(text string, normalizeChars string) []string {
	links := extractLinks(text, normalizeChars)
	if len(links) == 0 {
		return nil
	}
	return LinkTargetsWithin(links, Span{Start: 0, End: len(text)})
}

// LinkTargetsWithin returns the distinct targets of links whose span starts
// inside the given range, in first-seen order.
func LinkTargetsWithin(links []LinkRef, span Span) []string {
	var targets []string
	seen := make(map[string]struct{})
	for _, l := range links {
		if !span.Contains(l.Span.Start) {
			continue
		}
		if _, dup := seen[l.Target]; dup {
			continue
		}
		seen[l.Target] = struct{}{}
		targets = append(targets, l.Target)
	}
	return targets
}
