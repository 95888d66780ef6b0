// Package preserve protects atomic structural blocks (fenced code, tables,
// callouts, math, images) from being split during chunking. Each block is
// swapped for a stable placeholder token and recorded in an arena; restoring
// every placeholder reproduces the original text exactly.
package preserve

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a preserved block.
type Kind string

const (
	KindCode    Kind = "code"
	KindTable   Kind = "table"
	KindCallout Kind = "callout"
	KindMath    Kind = "math"
	KindImage   Kind = "image"

	// KindVerbatim claims source text that already looks like a
	// placeholder token, so Restore can never mistake it for one this
	// package generated.
	KindVerbatim Kind = "verbatim"
)

// Block is one preserved structural unit. Blocks are owned by a single
// preservation pass and referenced only via the placeholder embedded in the
// working text.
type Block struct {
	// ID is the arena index, embedded in the placeholder token.
	ID int

	// Kind is the block category.
	Kind Kind

	// Text is the exact original text of the block.
	Text string

	// Start and End bound the block in the original text (half-open).
	Start int
	End   int

	// Attrs holds a small metadata summary (language, callout type, ...).
	Attrs map[string]string
}

// Placeholder returns the token standing in for this block.
func (b Block) Placeholder() string {
	return placeholderFor(b.ID)
}

// DefaultMinBlockLength is the minimum block size worth preserving; shorter
// spans (tiny inline code) stay in the prose to avoid fragmenting it.
const DefaultMinBlockLength = 10

// DefaultMostlyPreservedThreshold is the residual-text fraction below which
// a text counts as consisting mostly of preserved blocks.
const DefaultMostlyPreservedThreshold = 0.2

// Detection patterns, applied in fixed order to unclaimed spans only.
var (
	backtickFencePattern = regexp.MustCompile("(?ms)^```[^\n]*\n.*?^```[ \t]*$")
	tildeFencePattern    = regexp.MustCompile(`(?ms)^~~~[^` + "\n" + `]*` + "\n" + `.*?^~~~[ \t]*$`)
	inlineCodePattern    = regexp.MustCompile("`[^`\n]+`")
	tablePattern         = regexp.MustCompile(`(?m)^\|[^\n]*\|[ \t]*$(?:\n\|[^\n]*\|[ \t]*$)+`)
	calloutPattern       = regexp.MustCompile(`(?m)^> \[![A-Za-z-]+\][^\n]*(?:\n>[^\n]*)*`)
	blockMathPattern     = regexp.MustCompile(`(?s)\$\$.+?\$\$`)
	inlineMathPattern    = regexp.MustCompile(`\$[^$\n]+\$`)
	mdImagePattern       = regexp.MustCompile(`!\[[^\]\n]*\]\([^)\n]+\)`)
	embedImagePattern    = regexp.MustCompile(`!\[\[[^\]\n]+\]\]`)

	placeholderPattern = regexp.MustCompile(`__PRESERVED_BLOCK_(\d+)__`)
	calloutHeadPattern = regexp.MustCompile(`^> \[!([A-Za-z-]+)\]`)
	fenceInfoPattern   = regexp.MustCompile("^(?:```|~~~)([^\n]*)")
)

func placeholderFor(id int) string {
	return fmt.Sprintf("__PRESERVED_BLOCK_%d__", id)
}

// Config configures a Preserver.
type Config struct {
	// MinBlockLength is the minimum span length preserved (0 = default).
	MinBlockLength int

	// MostlyPreservedThreshold is the residual fraction for
	// IsMostlyPreserved (0 = default 0.2).
	MostlyPreservedThreshold float64
}

// Preserver finds atomic blocks and swaps them for placeholders.
// It is stateless across calls and safe for concurrent use.
type Preserver struct {
	minLen    int
	threshold float64
}

// New creates a Preserver. Zero config values take defaults.
func New(cfg Config) *Preserver {
	minLen := cfg.MinBlockLength
	if minLen <= 0 {
		minLen = DefaultMinBlockLength
	}
	threshold := cfg.MostlyPreservedThreshold
	if threshold <= 0 {
		threshold = DefaultMostlyPreservedThreshold
	}
	return &Preserver{minLen: minLen, threshold: threshold}
}

// detectionPass pairs a pattern with the kind it detects. Order matters and
// is fixed: earlier passes claim spans that later passes must not touch.
type detectionPass struct {
	kind    Kind
	pattern *regexp.Regexp
}

var passes = []detectionPass{
	{KindCode, backtickFencePattern},
	{KindCode, tildeFencePattern},
	{KindCode, inlineCodePattern},
	{KindTable, tablePattern},
	{KindCallout, calloutPattern},
	{KindMath, blockMathPattern},
	{KindMath, inlineMathPattern},
	{KindImage, embedImagePattern},
	{KindImage, mdImagePattern},
}

// Preserve replaces atomic blocks in text with placeholder tokens and
// returns the working text plus the block arena. Restore(working, blocks)
// reproduces text exactly.
func (p *Preserver) Preserve(text string) (string, []Block) {
	if text == "" {
		return "", nil
	}

	claimed := make([]bool, len(text))
	var blocks []Block

	// Literal placeholder-shaped tokens in the source are claimed first,
	// regardless of length, so they round-trip through Restore untouched.
	for _, loc := range placeholderPattern.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		blocks = append(blocks, Block{
			ID:    len(blocks),
			Kind:  KindVerbatim,
			Text:  text[start:end],
			Start: start,
			End:   end,
		})
		for i := start; i < end; i++ {
			claimed[i] = true
		}
	}

	for _, pass := range passes {
		for _, loc := range pass.pattern.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if end-start < p.minLen {
				continue
			}
			if overlapsClaimed(claimed, start, end) {
				continue
			}

			blockText := text[start:end]
			blocks = append(blocks, Block{
				ID:    len(blocks),
				Kind:  pass.kind,
				Text:  blockText,
				Start: start,
				End:   end,
				Attrs: blockAttrs(pass.kind, blockText),
			})
			for i := start; i < end; i++ {
				claimed[i] = true
			}
		}
	}

	if len(blocks) == 0 {
		return text, nil
	}

	// Rebuild the text front to back, swapping each claimed span for its
	// placeholder. Blocks were appended per pass, so sort by position first.
	ordered := make([]Block, len(blocks))
	copy(ordered, blocks)
	sortBlocksByStart(ordered)

	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, blk := range ordered {
		b.WriteString(text[pos:blk.Start])
		b.WriteString(blk.Placeholder())
		pos = blk.End
	}
	b.WriteString(text[pos:])

	return b.String(), blocks
}

// Restore substitutes every placeholder in workingText with its block's
// original text. Placeholders without a matching block are left untouched.
func Restore(workingText string, blocks []Block) string {
	if len(blocks) == 0 {
		return workingText
	}

	byID := make(map[int]string, len(blocks))
	for _, blk := range blocks {
		byID[blk.ID] = blk.Text
	}

	return placeholderPattern.ReplaceAllStringFunc(workingText, func(ph string) string {
		sub := placeholderPattern.FindStringSubmatch(ph)
		id, err := strconv.Atoi(sub[1])
		if err != nil {
			return ph
		}
		if text, ok := byID[id]; ok {
			return text
		}
		return ph
	})
}

// IsMostlyPreserved reports whether the non-placeholder residual text of
// workingText is below the configured fraction of the original length.
// The chunker uses this to keep block-heavy sections whole regardless of
// token budget.
func (p *Preserver) IsMostlyPreserved(original, workingText string) bool {
	if len(original) == 0 {
		return false
	}

	residual := placeholderPattern.ReplaceAllString(workingText, "")
	residual = strings.TrimSpace(residual)

	return float64(len(residual))/float64(len(original)) < p.threshold
}

// ContainsPlaceholder reports whether text carries any preservation token.
func ContainsPlaceholder(text string) bool {
	return placeholderPattern.MatchString(text)
}

// BlockIDsIn returns the IDs of all placeholders present in text.
func BlockIDsIn(text string) []int {
	var ids []int
	for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
		if id, err := strconv.Atoi(m[1]); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func overlapsClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func sortBlocksByStart(blocks []Block) {
	// Insertion sort: arenas are small and mostly ordered already.
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && blocks[j].Start < blocks[j-1].Start; j-- {
			blocks[j], blocks[j-1] = blocks[j-1], blocks[j]
		}
	}
}

// blockAttrs builds the small metadata summary recorded per block.
func blockAttrs(kind Kind, text string) map[string]string {
	attrs := make(map[string]string, 2)

	switch kind {
	case KindCode:
		if strings.HasPrefix(text, "```") || strings.HasPrefix(text, "~~~") {
			if m := fenceInfoPattern.FindStringSubmatch(text); m != nil {
				if lang := strings.TrimSpace(m[1]); lang != "" {
					attrs["language"] = lang
				}
			}
			attrs["fenced"] = "true"
		} else {
			attrs["fenced"] = "false"
		}
	case KindTable:
		attrs["rows"] = strconv.Itoa(strings.Count(text, "\n") + 1)
	case KindCallout:
		if m := calloutHeadPattern.FindStringSubmatch(text); m != nil {
			attrs["type"] = strings.ToLower(m[1])
		}
	case KindMath:
		if strings.HasPrefix(text, "$$") {
			attrs["display"] = "block"
		} else {
			attrs["display"] = "inline"
		}
	case KindImage:
		if strings.HasPrefix(text, "![[") {
			attrs["target"] = strings.TrimSuffix(strings.TrimPrefix(text, "![["), "]]")
		}
	}
	return attrs
}
