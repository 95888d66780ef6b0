// Package store persists chunks and their embedding vectors.
//
// The metadata side lives in SQLite (pure Go driver, WAL mode for
// concurrent readers); vectors live in an HNSW graph persisted next to
// the database. VaultStore combines both behind the narrow Store
// interface the orchestrator depends on.
package store

import (
	"context"

	"github.com/obsidx/obsidx/internal/chunk"
)

// Record pairs a chunk with its embedding vector. A nil Vector is
// valid; such records are stored but never surface in vector search.
type Record struct {
	Chunk  *chunk.DocumentChunk
	Vector []float32
}

// Store is the storage contract consumed by the indexing orchestrator.
// Implementations must be safe for concurrent use.
type Store interface {
	// Upsert inserts or replaces records by chunk ID and returns the
	// stored IDs in input order.
	Upsert(ctx context.Context, records []Record) ([]string, error)

	// DeleteByIDs removes records by chunk ID. Unknown IDs are ignored.
	DeleteByIDs(ctx context.Context, ids []string) error

	// QueryByField returns up to limit records whose metadata field
	// matches value exactly. limit <= 0 means no limit. The supported
	// field names are implementation-defined; "source_file" must be
	// supported everywhere since incremental runs use it to locate
	// stale chunks for a changed file.
	QueryByField(ctx context.Context, field, value string, limit int) ([]Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}

// SearchResult is one nearest-neighbor hit.
type SearchResult struct {
	ID    string
	Score float32 // cosine similarity mapped to [0, 1]
}

// VectorSearcher is implemented by stores that support nearest-neighbor
// lookup over the stored vectors.
type VectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) ([]SearchResult, error)
}
