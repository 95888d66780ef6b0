package chunk

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/obsidx/obsidx/internal/note"
	"github.com/obsidx/obsidx/internal/preserve"
	"github.com/obsidx/obsidx/internal/token"
)

// Options configures the header-based chunker.
type Options struct {
	// MaxTokens is the per-chunk token budget (0 = default).
	MaxTokens int

	// OverlapTokens is the approximate token overlap prepended onto
	// continuation chunks. Zero disables overlap. Overlap never crosses
	// file boundaries.
	OverlapTokens int

	// SplitByParagraph selects paragraph-greedy splitting for oversized
	// sections; when false the whole section is split at word boundaries.
	SplitByParagraph bool

	// NormalizeChars is the link-target substitution set recorded in chunk
	// metadata (empty = note.DefaultNormalizeChars).
	NormalizeChars string
}

// HeaderChunker splits documents at heading boundaries, packs paragraphs
// greedily under the token budget, and restores preserved blocks before
// emitting final chunk text. It is stateless and safe for concurrent use.
type HeaderChunker struct {
	opts      Options
	estimator token.Estimator
	preserver *preserve.Preserver
}

var _ Chunker = (*HeaderChunker)(nil)

var headingLinePattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)

// NewHeaderChunker builds a chunker from options, a token estimator, and a
// content preserver.
func NewHeaderChunker(opts Options, estimator token.Estimator, preserver *preserve.Preserver) *HeaderChunker {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.NormalizeChars == "" {
		opts.NormalizeChars = note.DefaultNormalizeChars
	}
	return &HeaderChunker{opts: opts, estimator: estimator, preserver: preserver}
}

// section is one heading-delimited slice of the working body. The heading
// line itself belongs to the section; headerPath carries the heading stack
// active at the section start, including the section's own heading.
type section struct {
	level      int
	title      string
	headerPath []string
	text       string
	start      int
}

// fragment is a piece of working text plus its offset within the body.
type fragment struct {
	text string
	off  int
}

// piece is a chunk candidate before restoration and linking.
type piece struct {
	text      string
	span      note.Span
	sec       *section
	oversized bool
}

// Chunk implements the Chunker contract. It never fails for well-formed
// documents; an empty body yields zero chunks and a warning.
func (c *HeaderChunker) Chunk(_ context.Context, doc *note.ParsedDocument, sourceFile string) (*Result, error) {
	result := &Result{}

	if strings.TrimSpace(doc.Body) == "" {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%s: document is empty, no chunks produced", sourceFile))
		return result, nil
	}

	working, blocks := c.preserver.Preserve(doc.Body)

	blockKinds := make(map[int]preserve.Kind, len(blocks))
	for _, blk := range blocks {
		blockKinds[blk.ID] = blk.Kind
	}

	var pieces []piece
	for _, sec := range parseSections(working) {
		pieces = append(pieces, c.splitSection(sec, blocks)...)
	}

	docTags := doc.FrontmatterTags()
	charsPerToken := c.estimator.CharsPerToken()

	for i, p := range pieces {
		content := preserve.Restore(p.text, blocks)

		if c.opts.OverlapTokens > 0 && i > 0 {
			overlapChars := int(float64(c.opts.OverlapTokens) * charsPerToken)
			if tail := tailWords(result.Chunks[i-1].Content, overlapChars); tail != "" {
				content = tail + "\n\n" + content
			}
		}

		tokens := c.estimator.Estimate(content)
		if p.oversized || (c.opts.OverlapTokens == 0 && tokens > c.opts.MaxTokens) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: chunk %d exceeds token budget (%d > %d), indivisible unit kept whole",
					sourceFile, i, tokens, c.opts.MaxTokens))
		}

		chunk := &DocumentChunk{
			ID:           ChunkID(sourceFile, i),
			Content:      content,
			TokenCount:   tokens,
			SourceFile:   sourceFile,
			ChunkIndex:   i,
			Span:         p.span,
			HeaderPath:   p.sec.headerPath,
			SectionTitle: p.sec.title,
			Metadata:     c.buildMetadata(doc, docTags, blockKinds, p, content),
		}
		result.Chunks = append(result.Chunks, chunk)
		result.TotalTokens += tokens
	}

	// Link the chain after all ids exist.
	for i, chunk := range result.Chunks {
		if i > 0 {
			chunk.PrevID = result.Chunks[i-1].ID
		}
		if i < len(result.Chunks)-1 {
			chunk.NextID = result.Chunks[i+1].ID
		}
	}

	return result, nil
}

// splitSection turns one section into chunk candidates, honoring the token
// budget and the mostly-preserved escape hatch.
func (c *HeaderChunker) splitSection(sec *section, blocks []preserve.Block) []piece {
	text := strings.TrimRight(sec.text, "\n")
	if strings.TrimSpace(text) == "" {
		return nil
	}

	// A section holding only its heading line carries no content worth a
	// chunk of its own; its heading still shapes the paths of deeper ones.
	if sec.level > 0 && strings.TrimSpace(strings.TrimPrefix(text, firstLineOf(text))) == "" {
		return nil
	}

	restored := preserve.Restore(text, blocks)
	tokens := c.estimator.Estimate(restored)
	span := note.Span{Start: sec.start, End: sec.start + len(text)}

	if tokens <= c.opts.MaxTokens {
		return []piece{{text: text, span: span, sec: sec}}
	}

	// Block-heavy sections stay whole regardless of budget.
	if c.preserver.IsMostlyPreserved(restored, text) {
		return []piece{{text: text, span: span, sec: sec, oversized: true}}
	}

	if !c.opts.SplitByParagraph {
		return c.wordSplitPieces(text, sec.start, sec)
	}

	return c.packParagraphs(text, sec, blocks)
}

// packParagraphs greedily accumulates blank-line-delimited paragraphs into
// budget-sized pieces. A single paragraph over budget is word-split, unless
// it is a preserved block, which stands alone.
func (c *HeaderChunker) packParagraphs(text string, sec *section, blocks []preserve.Block) []piece {
	var pieces []piece
	var buf []fragment

	flush := func() {
		if len(buf) == 0 {
			return
		}
		joined := joinFragments(buf)
		pieces = append(pieces, piece{
			text: joined,
			span: note.Span{Start: sec.start + buf[0].off, End: sec.start + buf[len(buf)-1].off + len(buf[len(buf)-1].text)},
			sec:  sec,
		})
		buf = buf[:0]
	}

	for _, para := range splitParagraphs(text) {
		// Budget decisions look at restored size: a placeholder is a few
		// characters, the block behind it may be thousands.
		paraTokens := c.estimator.Estimate(preserve.Restore(para.text, blocks))

		if paraTokens > c.opts.MaxTokens {
			flush()
			if preserve.ContainsPlaceholder(para.text) {
				pieces = append(pieces, piece{
					text:      para.text,
					span:      note.Span{Start: sec.start + para.off, End: sec.start + para.off + len(para.text)},
					sec:       sec,
					oversized: true,
				})
			} else {
				pieces = append(pieces, c.wordSplitPieces(para.text, sec.start+para.off, sec)...)
			}
			continue
		}

		if len(buf) > 0 {
			candidate := joinFragments(buf) + "\n\n" + para.text
			if c.estimator.Estimate(preserve.Restore(candidate, blocks)) > c.opts.MaxTokens {
				flush()
			}
		}
		buf = append(buf, para)
	}
	flush()

	return pieces
}

// wordSplitPieces splits text at word boundaries near the character length
// implied by the token budget. Fragments always retain non-whitespace
// content; concatenating them reproduces the input exactly.
func (c *HeaderChunker) wordSplitPieces(text string, baseOff int, sec *section) []piece {
	targetChars := int(float64(c.opts.MaxTokens) * c.estimator.CharsPerToken())
	if targetChars < 1 {
		targetChars = 1
	}

	frags := splitAtWordBoundaries(text, targetChars)
	pieces := make([]piece, 0, len(frags))
	for _, f := range frags {
		pieces = append(pieces, piece{
			text: f.text,
			span: note.Span{Start: baseOff + f.off, End: baseOff + f.off + len(f.text)},
			sec:  sec,
		})
	}
	return pieces
}

// buildMetadata enriches a chunk with frontmatter fields, preserved-block
// summary, tags, and the link targets falling inside the chunk.
func (c *HeaderChunker) buildMetadata(doc *note.ParsedDocument, docTags []string, blockKinds map[int]preserve.Kind, p piece, content string) Metadata {
	var hasCode, hasTable, hasCallout bool
	for _, id := range preserve.BlockIDsIn(p.text) {
		switch blockKinds[id] {
		case preserve.KindCode:
			hasCode = true
		case preserve.KindTable:
			hasTable = true
		case preserve.KindCallout:
			hasCallout = true
		}
	}

	linkTargets := note.LinkTargetsIn(content, c.opts.NormalizeChars)

	tags := docTags
	if chunkTags := note.TagNamesIn(content); len(chunkTags) > 0 {
		tags = mergeDistinct(docTags, chunkTags)
	}

	return Metadata{
		Title:        doc.FrontmatterString("title"),
		Author:       doc.FrontmatterString("author"),
		Date:         doc.FrontmatterString("date"),
		Tags:         tags,
		Type:         classifyContent(hasCode, hasTable, hasCallout, content),
		HeadingLevel: p.sec.level,
		HasCode:      hasCode,
		HasTable:     hasTable,
		HasCallout:   hasCallout,
		HasLinks:     len(linkTargets) > 0,
		LinkTargets:  linkTargets,
	}
}

func classifyContent(hasCode, hasTable, hasCallout bool, content string) ContentKind {
	count := 0
	for _, present := range []bool{hasCode, hasTable, hasCallout} {
		if present {
			count++
		}
	}
	switch {
	case count > 1:
		return KindMixed
	case hasCode:
		return KindCode
	case hasTable:
		return KindTable
	case hasCallout:
		return KindCallout
	case strings.HasPrefix(strings.TrimSpace(content), "#"):
		return KindHeading
	default:
		return KindParagraph
	}
}

func mergeDistinct(a, b []string) []string {
	merged := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	for _, s := range b {
		if _, dup := seen[s]; !dup {
			seen[s] = struct{}{}
			merged = append(merged, s)
		}
	}
	return merged
}

// splitParagraphs splits working text on blank lines, keeping per-paragraph
// offsets. Preserved-block placeholders make multi-line structures atomic,
// so a plain blank-line split is safe here.
func splitParagraphs(text string) []fragment {
	var paras []fragment
	off := 0
	for _, part := range strings.Split(text, "\n\n") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			lead := strings.Index(part, trimmed)
			paras = append(paras, fragment{text: trimmed, off: off + lead})
		}
		off += len(part) + 2
	}
	return paras
}

func joinFragments(frags []fragment) string {
	parts := make([]string, len(frags))
	for i, f := range frags {
		parts[i] = f.text
	}
	return strings.Join(parts, "\n\n")
}

// splitAtWordBoundaries cuts text into fragments of roughly targetChars,
// cutting just after the nearest whitespace at or before the target so the
// fragments concatenate back to the original text.
func splitAtWordBoundaries(text string, targetChars int) []fragment {
	var frags []fragment
	off := 0

	appendFrag := func(part string, partOff int) {
		if strings.TrimSpace(part) != "" {
			frags = append(frags, fragment{text: part, off: partOff})
		} else if len(frags) > 0 {
			frags[len(frags)-1].text += part
		}
	}

	for len(text) > targetChars {
		cut := lastWhitespaceWithin(text, targetChars-1)
		if cut <= 0 {
			cut = targetChars
		} else {
			cut++ // keep the whitespace with the left fragment
		}
		appendFrag(text[:cut], off)
		text = text[cut:]
		off += cut
	}
	appendFrag(text, off)

	return frags
}

func lastWhitespaceWithin(text string, limit int) int {
	if limit >= len(text) {
		limit = len(text) - 1
	}
	for i := limit; i > 0; i-- {
		switch text[i] {
		case ' ', '\n', '\t':
			return i
		}
	}
	return -1
}

// tailWords returns the trailing words of text up to roughly maxChars.
func tailWords(text string, maxChars int) string {
	if maxChars <= 0 {
		return ""
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return ""
	}

	total := 0
	start := len(words)
	for i := len(words) - 1; i >= 0; i-- {
		total += len(words[i]) + 1
		if total > maxChars {
			break
		}
		start = i
	}
	if start == len(words) {
		start = len(words) - 1
	}
	return strings.Join(words[start:], " ")
}

func firstLineOf(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// parseSections partitions the working body at heading boundaries. Content
// before the first heading becomes a level-0 section with an empty path.
// The heading stack is keyed by level and truncated whenever a shallower
// heading appears.
func parseSections(body string) []*section {
	lines := strings.Split(body, "\n")
	stack := make([]string, 6)

	var sections []*section
	var b strings.Builder
	cur := &section{start: 0}
	off := 0

	flush := func() {
		cur.text = b.String()
		if strings.TrimSpace(cur.text) != "" {
			sections = append(sections, cur)
		}
		b.Reset()
	}

	for _, line := range lines {
		if m := headingLinePattern.FindStringSubmatch(line); m != nil {
			flush()

			level := len(m[1])
			title := strings.TrimSpace(m[2])
			stack[level-1] = title
			for i := level; i < 6; i++ {
				stack[i] = ""
			}

			var path []string
			for i := 0; i < level; i++ {
				if stack[i] != "" {
					path = append(path, stack[i])
				}
			}

			cur = &section{level: level, title: title, headerPath: path, start: off}
		}
		b.WriteString(line)
		b.WriteString("\n")
		off += len(line) + 1
	}
	flush()

	return sections
}
