// Package note parses raw Markdown notes into structured documents:
// frontmatter key/values, body text, wiki-links, tags, and headings.
// Parsing never fails for malformed input; problems degrade to warnings.
package note

// Span marks a half-open byte range [Start, End) within a document body.
type Span struct {
	Start int
	End   int
}

// Contains reports whether pos falls inside the span.
func (s Span) Contains(pos int) bool {
	return pos >= s.Start && pos < s.End
}

// LinkRef is a wiki-style cross-reference found in body text.
type LinkRef struct {
	// Original is the exact source text, brackets included.
	Original string

	// Target is the normalized link destination. Characters meaningful to
	// technical identifiers (angle brackets, quotes) are preserved.
	Target string

	// DisplayText is the optional alias after "|".
	DisplayText string

	// Anchor is the optional heading anchor after "#".
	Anchor string

	// Span locates the link within the body.
	Span Span

	// IsEmbed is true for embedded references (![[...]]).
	IsEmbed bool
}

// TagRef is a hashtag-style label found in body text.
type TagRef struct {
	// Original is the exact source text including the leading "#".
	Original string

	// Name is the tag without the leading "#".
	Name string

	// Span locates the tag within the body.
	Span Span

	// IsNested is true for hierarchy tags like "project/go/testing".
	IsNested bool

	// Parents holds every prefix tag a nested tag implies membership in.
	Parents []string
}

// Heading is a Markdown heading, ordered by document position.
type Heading struct {
	// Level is the heading depth, 1 through 6.
	Level int

	// Text is the heading text without the leading hashes.
	Text string

	// Anchor is the slugified heading text.
	Anchor string

	// Line is the 0-indexed line number within the body.
	Line int

	// Offset is the byte offset of the heading line within the body.
	Offset int
}

// ParsedDocument is the parse result for one file version.
// It is immutable after creation.
type ParsedDocument struct {
	Frontmatter map[string]any
	Body        string
	Links       []LinkRef
	Tags        []TagRef
	Headings    []Heading

	// Warnings records recoverable parse problems (malformed frontmatter).
	Warnings []string
}

// FrontmatterString returns a string frontmatter value, or "" when absent
// or of another type.
func (d *ParsedDocument) FrontmatterString(key string) string {
	if v, ok := d.Frontmatter[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// FrontmatterBool returns a bool frontmatter value, or false when absent.
func (d *ParsedDocument) FrontmatterBool(key string) bool {
	if v, ok := d.Frontmatter[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// FrontmatterTags returns tags declared in frontmatter, accepting both a
// YAML list and a comma-separated string.
func (d *ParsedDocument) FrontmatterTags() []string {
	v, ok := d.Frontmatter["tags"]
	if !ok {
		return nil
	}

	switch tv := v.(type) {
	case []any:
		var tags []string
		for _, item := range tv {
			if s, ok := item.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return tags
	case string:
		var tags []string
		for _, part := range splitCommaList(tv) {
			if part != "" {
				tags = append(tags, part)
			}
		}
		return tags
	}
	return nil
}
