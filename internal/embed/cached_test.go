package embed

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder records how many texts reached the inner provider.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
}

func (m *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (m *countingEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.calls++
	m.texts += len(texts)
	m.mu.Unlock()

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = []float32{float32(len(text)), 1}
	}
	return vectors, nil
}

func (m *countingEmbedder) Dimensions() int                { return 2 }
func (m *countingEmbedder) ModelName() string              { return "counting" }
func (m *countingEmbedder) Available(context.Context) bool { return true }
func (m *countingEmbedder) Close() error                   { return nil }

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 16)

	first, err := c.Embed(context.Background(), "repeat me")
	require.NoError(t, err)
	second, err := c.Embed(context.Background(), "repeat me")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_BatchEmbedsOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 16)

	_, err := c.Embed(context.Background(), "cached")
	require.NoError(t, err)

	vectors, err := c.EmbedBatch(context.Background(), []string{"cached", "fresh-1", "fresh-2"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)

	// One warm-up call plus one call for the two misses.
	assert.Equal(t, 2, inner.calls)
	assert.Equal(t, 3, inner.texts)
}

func TestCachedEmbedder_AllHitsNoInnerCall(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 16)

	_, err := c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	callsAfterWarmup := inner.calls

	_, err = c.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, callsAfterWarmup, inner.calls)
}

func TestCachedEmbedder_Passthrough(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 16)

	assert.Equal(t, 2, c.Dimensions())
	assert.Equal(t, "counting", c.ModelName())
	assert.True(t, c.Available(context.Background()))
	assert.NoError(t, c.Close())
}
