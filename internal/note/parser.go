package note

// Options configures parsing behavior.
type Options struct {
	// NormalizeChars are the characters replaced by "-" in link targets.
	// Empty uses DefaultNormalizeChars.
	NormalizeChars string
}

// Parser turns raw note bytes into ParsedDocuments.
// It is stateless and safe for concurrent use.
type Parser struct {
	normalizeChars string
}

// NewParser creates a parser with the given options.
func NewParser(opts Options) *Parser {
	chars := opts.NormalizeChars
	if chars == "" {
		chars = DefaultNormalizeChars
	}
	return &Parser{normalizeChars: chars}
}

// Parse splits raw note text into frontmatter, body, links, tags, and
// headings. It never fails: malformed frontmatter degrades to a warning and
// the full input becomes the body.
func (p *Parser) Parse(raw string) *ParsedDocument {
	fm, body, warnings := extractFrontmatter(raw)

	return &ParsedDocument{
		Frontmatter: fm,
		Body:        body,
		Links:       extractLinks(body, p.normalizeChars),
		Tags:        extractTags(body),
		Headings:    extractHeadings(body),
		Warnings:    warnings,
	}
}
