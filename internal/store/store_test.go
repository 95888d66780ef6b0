package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVaultStoreEndToEnd(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, 3)
	require.NoError(t, err)

	records := []Record{
		{Chunk: testChunk("notes/a.md", 0, "alpha"), Vector: []float32{1, 0, 0}},
		{Chunk: testChunk("notes/a.md", 1, "beta"), Vector: []float32{0, 1, 0}},
		{Chunk: testChunk("notes/b.md", 0, "no vector yet")},
	}
	ids, err := s.Upsert(ctx, records)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	// Vector search only sees records that carried a vector.
	hits, err := s.Search(ctx, []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, records[1].Chunk.ID, hits[0].ID)

	// Deleting a file's chunks removes them from both sides.
	stale, err := s.QueryByField(ctx, "source_file", "notes/a.md", 0)
	require.NoError(t, err)
	staleIDs := make([]string, len(stale))
	for i, rec := range stale {
		staleIDs[i] = rec.Chunk.ID
	}
	require.NoError(t, s.DeleteByIDs(ctx, staleIDs))

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err = s.Search(ctx, []float32{0, 1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, s.Close())
}

func TestVaultStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, 2)
	require.NoError(t, err)
	c := testChunk("notes/a.md", 0, "survives reopen")
	_, err = s.Upsert(ctx, []Record{{Chunk: c, Vector: []float32{1, 0}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s2, err := Open(dir, 2)
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := s2.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c.ID, hits[0].ID)
}

func TestVaultStoreReopenWithNewDimensionsStartsEmptyIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, 2)
	require.NoError(t, err)
	_, err = s.Upsert(ctx, []Record{
		{Chunk: testChunk("notes/a.md", 0, "old dims"), Vector: []float32{1, 0}},
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Changing the embedding dimension invalidates saved vectors; the
	// chunk database stays intact so a reindex can repopulate them.
	s2, err := Open(dir, 4)
	require.NoError(t, err)
	defer s2.Close()

	count, err := s2.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	hits, err := s2.Search(ctx, []float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestVaultStoreReadOnlyOpenDoesNotClobberIndex(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s, err := Open(dir, 2)
	require.NoError(t, err)
	c := testChunk("notes/a.md", 0, "keep my vector")
	_, err = s.Upsert(ctx, []Record{{Chunk: c, Vector: []float32{1, 0}}})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// A status-style open with a mismatched dimension reads and closes
	// without writing anything.
	probe, err := Open(dir, 8)
	require.NoError(t, err)
	_, err = probe.Count(ctx)
	require.NoError(t, err)
	require.NoError(t, probe.Close())

	s2, err := Open(dir, 2)
	require.NoError(t, err)
	defer s2.Close()

	hits, err := s2.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, c.ID, hits[0].ID)
}
