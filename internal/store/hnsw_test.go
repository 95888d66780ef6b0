package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorIndexAddAndSearch(t *testing.T) {
	x, err := NewVectorIndex(3)
	require.NoError(t, err)
	defer x.Close()

	ctx := context.Background()
	err = x.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		})
	require.NoError(t, err)
	assert.Equal(t, 3, x.Count())

	results, err := x.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestVectorIndexReplaceExisting(t *testing.T) {
	x, err := NewVectorIndex(2)
	require.NoError(t, err)
	defer x.Close()

	ctx := context.Background()
	require.NoError(t, x.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, x.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))
	assert.Equal(t, 1, x.Count())

	results, err := x.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestVectorIndexLazyDelete(t *testing.T) {
	x, err := NewVectorIndex(2)
	require.NoError(t, err)
	defer x.Close()

	ctx := context.Background()
	require.NoError(t, x.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0}, {0.9, 0.1}}))

	x.Delete([]string{"a"})
	assert.Equal(t, 1, x.Count())
	assert.False(t, x.Contains("a"))
	assert.True(t, x.Contains("b"))

	// The deleted node stays in the graph but must not surface.
	results, err := x.Search(ctx, []float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestVectorIndexDimensionMismatch(t *testing.T) {
	x, err := NewVectorIndex(3)
	require.NoError(t, err)
	defer x.Close()

	ctx := context.Background()
	err = x.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	assert.Error(t, err)

	_, err = x.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestVectorIndexSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	x, err := NewVectorIndex(2)
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, x.Save(path))
	require.NoError(t, x.Close())

	loaded, err := NewVectorIndex(2)
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestVectorIndexLoadMissingFileIsEmpty(t *testing.T) {
	x, err := NewVectorIndex(2)
	require.NoError(t, err)
	defer x.Close()

	require.NoError(t, x.Load(filepath.Join(t.TempDir(), "absent.hnsw")))
	assert.Equal(t, 0, x.Count())
}

func TestVectorIndexLoadDimensionConflict(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	ctx := context.Background()

	x, err := NewVectorIndex(2)
	require.NoError(t, err)
	require.NoError(t, x.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, x.Save(path))
	require.NoError(t, x.Close())

	other, err := NewVectorIndex(4)
	require.NoError(t, err)
	defer other.Close()
	assert.Error(t, other.Load(path))
}

func TestVectorIndexSearchEmpty(t *testing.T) {
	x, err := NewVectorIndex(2)
	require.NoError(t, err)
	defer x.Close()

	results, err := x.Search(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
