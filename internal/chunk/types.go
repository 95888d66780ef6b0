// Package chunk splits parsed documents into linked, token-bounded chunks
// aligned to heading boundaries.
package chunk

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/obsidx/obsidx/internal/note"
)

// Chunking defaults.
const (
	DefaultMaxTokens     = 512
	DefaultOverlapTokens = 0
)

// ContentKind classifies what a chunk mostly contains.
type ContentKind string

const (
	KindParagraph ContentKind = "paragraph"
	KindHeading   ContentKind = "heading"
	KindCode      ContentKind = "code"
	KindTable     ContentKind = "table"
	KindCallout   ContentKind = "callout"
	KindMixed     ContentKind = "mixed"
)

// Metadata is the per-chunk enrichment recorded alongside the text.
type Metadata struct {
	Title        string            `json:"title,omitempty"`
	Author       string            `json:"author,omitempty"`
	Date         string            `json:"date,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Type         ContentKind       `json:"type"`
	HeadingLevel int               `json:"headingLevel,omitempty"`
	HasCode      bool              `json:"hasCode"`
	HasTable     bool              `json:"hasTable"`
	HasCallout   bool              `json:"hasCallout"`
	HasLinks     bool              `json:"hasLinks"`
	LinkTargets  []string          `json:"linkTargets,omitempty"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// DocumentChunk is one retrievable unit of a source file. Chunks of a file
// form a single linear prev/next chain; ids are deterministic in the source
// path and chunk index, so re-chunking unchanged content reproduces them.
type DocumentChunk struct {
	ID           string    `json:"id"`
	Content      string    `json:"content"`
	TokenCount   int       `json:"tokenCount"`
	SourceFile   string    `json:"sourceFile"`
	ChunkIndex   int       `json:"chunkIndex"`
	Span         note.Span `json:"span"`
	HeaderPath   []string  `json:"headerPath,omitempty"`
	SectionTitle string    `json:"sectionTitle,omitempty"`
	PrevID       string    `json:"prevId,omitempty"`
	NextID       string    `json:"nextId,omitempty"`
	Metadata     Metadata  `json:"metadata"`
}

// Result is the outcome of chunking one document.
type Result struct {
	Chunks      []*DocumentChunk
	TotalTokens int
	Warnings    []string
}

// Chunker is the splitting strategy contract. Alternate strategies
// (fixed-size, semantic) implement the same interface and are selected by
// configuration.
type Chunker interface {
	Chunk(ctx context.Context, doc *note.ParsedDocument, sourceFile string) (*Result, error)
}

// ChunkID derives the deterministic id for a chunk of a file.
func ChunkID(sourceFile string, index int) string {
	sum := sha256.Sum256([]byte(sourceFile + ":" + strconv.Itoa(index)))
	return hex.EncodeToString(sum[:])[:16]
}
