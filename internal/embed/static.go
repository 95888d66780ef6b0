package embed

import (
	"context"
	"hash/fnv"
	"regexp"
	"strings"
	"sync"

	oerrors "github.com/obsidx/obsidx/internal/errors"
)

// StaticEmbedder produces deterministic hash-based embeddings with no
// network or model download. Semantic quality is limited; it exists for
// offline use and tests.
type StaticEmbedder struct {
	mu     sync.RWMutex
	closed bool
}

var _ Embedder = (*StaticEmbedder)(nil)

const (
	staticTokenWeight = 0.7
	staticNgramWeight = 0.3
	staticNgramSize   = 3
)

var staticTokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

// NewStaticEmbedder creates the offline embedder.
func NewStaticEmbedder() *StaticEmbedder {
	return &StaticEmbedder{}
}

// Embed hashes tokens and character n-grams into a fixed-size vector and
// normalizes it. Identical text always yields an identical vector.
func (e *StaticEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, oerrors.New(oerrors.ErrCodeInternal, "embedder is closed", nil)
	}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return make([]float32, StaticDimensions), nil
	}

	vector := make([]float32, StaticDimensions)

	for _, token := range staticTokenPattern.FindAllString(strings.ToLower(trimmed), -1) {
		vector[hashToIndex(token)] += staticTokenWeight
	}

	compact := strings.Join(strings.Fields(strings.ToLower(trimmed)), " ")
	for i := 0; i+staticNgramSize <= len(compact); i++ {
		vector[hashToIndex(compact[i:i+staticNgramSize])] += staticNgramWeight
	}

	return normalizeVector(vector), nil
}

// EmbedBatch embeds each text independently.
func (e *StaticEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the fixed static dimension.
func (e *StaticEmbedder) Dimensions() int {
	return StaticDimensions
}

// ModelName identifies the hashing scheme.
func (e *StaticEmbedder) ModelName() string {
	return "static-fnv"
}

// Available is always true; there is nothing to reach.
func (e *StaticEmbedder) Available(context.Context) bool {
	return true
}

// Close marks the embedder closed.
func (e *StaticEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func hashToIndex(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() % StaticDimensions)
}
