package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidx/obsidx/internal/chunk"
	"github.com/obsidx/obsidx/internal/note"
)

func testChunk(path string, index int, content string) *chunk.DocumentChunk {
	return &chunk.DocumentChunk{
		ID:           chunk.ChunkID(path, index),
		Content:      content,
		TokenCount:   len(content) / 4,
		SourceFile:   path,
		ChunkIndex:   index,
		Span:         note.Span{Start: 0, End: len(content)},
		HeaderPath:   []string{"Title", "Section"},
		SectionTitle: "Section",
		Metadata: chunk.Metadata{
			Title: "Title",
			Type:  "note",
			Tags:  []string{"project/alpha"},
		},
	}
}

func TestSQLiteStoreUpsertAndQuery(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	records := []Record{
		{Chunk: testChunk("notes/a.md", 0, "first chunk"), Vector: []float32{1, 0, 0}},
		{Chunk: testChunk("notes/a.md", 1, "second chunk")},
		{Chunk: testChunk("notes/b.md", 0, "other file")},
	}

	ids, err := s.Upsert(ctx, records)
	require.NoError(t, err)
	require.Len(t, ids, 3)
	assert.Equal(t, records[0].Chunk.ID, ids[0])

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	got, err := s.QueryByField(ctx, "source_file", "notes/a.md", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by chunk index, full round-trip of the record.
	assert.Equal(t, "first chunk", got[0].Chunk.Content)
	assert.Equal(t, []string{"Title", "Section"}, got[0].Chunk.HeaderPath)
	assert.Equal(t, []string{"project/alpha"}, got[0].Chunk.Metadata.Tags)
	assert.Equal(t, []float32{1, 0, 0}, got[0].Vector)
	assert.Nil(t, got[1].Vector)
}

func TestSQLiteStoreUpsertReplaces(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	c := testChunk("notes/a.md", 0, "before")
	_, err = s.Upsert(ctx, []Record{{Chunk: c}})
	require.NoError(t, err)

	c2 := testChunk("notes/a.md", 0, "after")
	_, err = s.Upsert(ctx, []Record{{Chunk: c2, Vector: []float32{0.5}}})
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "same ID must replace, not duplicate")

	got, err := s.QueryByField(ctx, "source_file", "notes/a.md", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "after", got[0].Chunk.Content)
	assert.Equal(t, []float32{0.5}, got[0].Vector)
}

func TestSQLiteStoreDeleteByIDs(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	a := testChunk("notes/a.md", 0, "keep")
	b := testChunk("notes/a.md", 1, "drop")
	_, err = s.Upsert(ctx, []Record{{Chunk: a}, {Chunk: b}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByIDs(ctx, []string{b.ID, "unknown-id"}))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteStoreQueryMetadataFields(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	c := testChunk("notes/a.md", 0, "typed")
	c.Metadata.Type = "daily"
	_, err = s.Upsert(ctx, []Record{{Chunk: c}})
	require.NoError(t, err)

	got, err := s.QueryByField(ctx, "type", "daily", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = s.QueryByField(ctx, "type", "weekly", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = s.QueryByField(ctx, "nonexistent_field", "x", 0)
	assert.Error(t, err)
}

func TestSQLiteStoreQueryLimit(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var records []Record
	for i := 0; i < 5; i++ {
		records = append(records, Record{Chunk: testChunk("notes/a.md", i, "chunk")})
	}
	_, err = s.Upsert(ctx, records)
	require.NoError(t, err)

	got, err := s.QueryByField(ctx, "source_file", "notes/a.md", 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLiteStorePaths(t *testing.T) {
	s, err := NewSQLiteStore("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, err = s.Upsert(ctx, []Record{
		{Chunk: testChunk("notes/b.md", 0, "x")},
		{Chunk: testChunk("notes/a.md", 0, "x")},
		{Chunk: testChunk("notes/a.md", 1, "x")},
	})
	require.NoError(t, err)

	paths, err := s.Paths(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/a.md", "notes/b.md"}, paths)
}

func TestSQLiteStorePersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.db")
	ctx := context.Background()

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, []Record{{Chunk: testChunk("notes/a.md", 0, "durable")}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestVectorBlobRoundTrip(t *testing.T) {
	v := []float32{0.1, -2.5, 0, 3.75}
	assert.Equal(t, v, decodeVector(encodeVector(v)))
	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector(nil))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}), "truncated blob must not panic")
}
