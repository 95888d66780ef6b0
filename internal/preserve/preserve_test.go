package preserve

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPreserver() *Preserver {
	return New(Config{})
}

func TestPreserve_FencedCode(t *testing.T) {
	p := newTestPreserver()
	text := "Intro paragraph.\n\n```go\nfunc main() {\n\tprintln(\"hi\")\n}\n```\n\nOutro."

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, KindCode, blocks[0].Kind)
	assert.Equal(t, "go", blocks[0].Attrs["language"])
	assert.Contains(t, working, blocks[0].Placeholder())
	assert.NotContains(t, working, "func main")

	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_TildeFence(t *testing.T) {
	p := newTestPreserver()
	text := "~~~python\nprint('x')\n~~~"

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, KindCode, blocks[0].Kind)
	assert.Equal(t, "python", blocks[0].Attrs["language"])
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_InlineCodeRespectsMinLength(t *testing.T) {
	p := newTestPreserver()
	text := "Short `go` span and a longer `configuration value here` span."

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, "`configuration value here`", blocks[0].Text)
	// The short span stays inline.
	assert.Contains(t, working, "`go`")
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_Table(t *testing.T) {
	p := newTestPreserver()
	text := "Before.\n\n| Name | Value |\n|------|-------|\n| a    | 1     |\n| b    | 2     |\n\nAfter."

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, KindTable, blocks[0].Kind)
	assert.Equal(t, "4", blocks[0].Attrs["rows"])
	assert.NotContains(t, working, "|------|")
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_Callout(t *testing.T) {
	p := newTestPreserver()
	text := "> [!warning] Careful\n> This part matters.\n> Really.\n\nPlain text."

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, KindCallout, blocks[0].Kind)
	assert.Equal(t, "warning", blocks[0].Attrs["type"])
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_TableInsideCalloutNotDoubleClaimed(t *testing.T) {
	// A table whose lines are quoted inside a callout belongs to the
	// callout block; it must not also surface as a table block.
	p := newTestPreserver()
	text := "> [!note] Data\n> | a | b |\n> |---|---|\n> | 1 | 2 |"

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, KindCallout, blocks[0].Kind)
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_BlockAndInlineMath(t *testing.T) {
	p := newTestPreserver()
	text := "Equation:\n\n$$\n\\int_0^1 x\\,dx = \\frac{1}{2}\n$$\n\nInline $a^2 + b^2 = c^2$ too."

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 2)
	assert.Equal(t, KindMath, blocks[0].Kind)
	assert.Equal(t, "block", blocks[0].Attrs["display"])
	assert.Equal(t, "inline", blocks[1].Attrs["display"])
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_Images(t *testing.T) {
	p := newTestPreserver()
	text := "See ![diagram one](assets/diagram.png) and ![[Pasted image 1.png]]."

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 2)
	for _, blk := range blocks {
		assert.Equal(t, KindImage, blk.Kind)
	}
	// Embed pass runs first, so the wiki embed takes the lower ID.
	assert.Equal(t, "Pasted image 1.png", blocks[0].Attrs["target"])
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_CodeClaimsBeforeTable(t *testing.T) {
	// A fenced code block containing table-looking lines is claimed whole
	// by the code pass; the table pass never sees it.
	p := newTestPreserver()
	text := "```text\n| a | b |\n|---|---|\n| 1 | 2 |\n```"

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 1)
	assert.Equal(t, KindCode, blocks[0].Kind)
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_NoBlocks(t *testing.T) {
	p := newTestPreserver()
	text := "Just a plain paragraph with nothing structural in it."

	working, blocks := p.Preserve(text)

	assert.Equal(t, text, working)
	assert.Empty(t, blocks)
	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_MixedDocumentRoundTrip(t *testing.T) {
	p := newTestPreserver()
	text := strings.Join([]string{
		"# Notes",
		"",
		"Intro with `some inline code` here.",
		"",
		"```bash",
		"echo hello | grep h",
		"```",
		"",
		"| k | v |",
		"|---|---|",
		"| x | 1 |",
		"",
		"> [!tip] Remember\n> Use placeholders.",
		"",
		"![chart](img/chart.svg)",
		"",
		"Final $$E = mc^2$$ thought.",
	}, "\n")

	working, blocks := p.Preserve(text)

	require.NotEmpty(t, blocks)
	kinds := map[Kind]int{}
	for _, blk := range blocks {
		kinds[blk.Kind]++
	}
	assert.Equal(t, 2, kinds[KindCode])
	assert.Equal(t, 1, kinds[KindTable])
	assert.Equal(t, 1, kinds[KindCallout])
	assert.Equal(t, 1, kinds[KindMath])
	assert.Equal(t, 1, kinds[KindImage])

	assert.Equal(t, text, Restore(working, blocks))
}

func TestPreserve_LiteralPlaceholderTokenRoundTrips(t *testing.T) {
	p := newTestPreserver()
	text := "A note quoting the token __PRESERVED_BLOCK_0__ in prose.\n\n```sh\nls\n```\n"

	working, blocks := p.Preserve(text)

	require.Len(t, blocks, 2)
	assert.Equal(t, KindVerbatim, blocks[0].Kind)
	assert.Equal(t, "__PRESERVED_BLOCK_0__", blocks[0].Text)
	assert.Equal(t, KindCode, blocks[1].Kind)

	// The quoted token must come back literally, not as block 0's text.
	assert.Equal(t, text, Restore(working, blocks))
}

func TestIsMostlyPreserved(t *testing.T) {
	p := newTestPreserver()

	code := "```go\n" + strings.Repeat("line of code here\n", 20) + "```"
	working, blocks := p.Preserve(code + "\n\nTiny caption.")
	require.Len(t, blocks, 1)
	assert.True(t, p.IsMostlyPreserved(code+"\n\nTiny caption.", working))

	prose := strings.Repeat("A full sentence of regular prose text. ", 30)
	withSnippet := prose + "`one little snippet`"
	working2, blocks2 := p.Preserve(withSnippet)
	require.Len(t, blocks2, 1)
	assert.False(t, p.IsMostlyPreserved(withSnippet, working2))
}

func TestBlockIDsIn(t *testing.T) {
	p := newTestPreserver()
	text := "a `first snippet here` b `second snippet here` c"

	working, blocks := p.Preserve(text)
	require.Len(t, blocks, 2)

	ids := BlockIDsIn(working)
	assert.Equal(t, []int{0, 1}, ids)
	assert.True(t, ContainsPlaceholder(working))
	assert.False(t, ContainsPlaceholder("nothing here"))
}

func TestPreserve_SpansPointIntoOriginal(t *testing.T) {
	p := newTestPreserver()
	text := "lead `a snippet of code` tail"

	_, blocks := p.Preserve(text)
	require.Len(t, blocks, 1)
	assert.Equal(t, blocks[0].Text, text[blocks[0].Start:blocks[0].End])
}
