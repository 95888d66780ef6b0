package store

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
)

// VaultStore combines the SQLite chunk database with the HNSW vector
// index under one Store. Metadata writes and vector writes are not a
// single transaction; the SQLite side is authoritative and the vector
// index is rebuilt from it when the two disagree after a crash.
type VaultStore struct {
	chunks  *SQLiteStore
	vectors *VectorIndex

	vectorPath string
	dirty      atomic.Bool
}

var (
	_ Store          = (*VaultStore)(nil)
	_ VectorSearcher = (*VaultStore)(nil)
)

// Open opens (or creates) the vault store in dataDir for vectors of the
// given dimension. A previously saved vector index is loaded; if it is
// unreadable or its dimension changed, the store starts with an empty
// index and logs a warning rather than failing the run.
func Open(dataDir string, dimensions int) (*VaultStore, error) {
	chunks, err := NewSQLiteStore(filepath.Join(dataDir, ChunkDBName))
	if err != nil {
		return nil, err
	}

	vectors, err := NewVectorIndex(dimensions)
	if err != nil {
		chunks.Close()
		return nil, err
	}

	vectorPath := filepath.Join(dataDir, VectorIndexName)
	if err := vectors.Load(vectorPath); err != nil {
		slog.Warn("vector index unreadable, starting empty",
			slog.String("path", vectorPath),
			slog.String("error", err.Error()))
		vectors, _ = NewVectorIndex(dimensions)
	}

	return &VaultStore{
		chunks:     chunks,
		vectors:    vectors,
		vectorPath: vectorPath,
	}, nil
}

// Upsert stores records in the chunk database and the vector index.
func (s *VaultStore) Upsert(ctx context.Context, records []Record) ([]string, error) {
	ids, err := s.chunks.Upsert(ctx, records)
	if err != nil {
		return nil, err
	}

	vecIDs := make([]string, 0, len(records))
	vecs := make([][]float32, 0, len(records))
	for _, rec := range records {
		if rec.Vector == nil {
			continue
		}
		vecIDs = append(vecIDs, rec.Chunk.ID)
		vecs = append(vecs, rec.Vector)
	}
	if err := s.vectors.Add(ctx, vecIDs, vecs); err != nil {
		return nil, fmt.Errorf("chunks stored but vector index update failed: %w", err)
	}
	s.dirty.Store(true)
	return ids, nil
}

// DeleteByIDs removes records from both sides.
func (s *VaultStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if err := s.chunks.DeleteByIDs(ctx, ids); err != nil {
		return err
	}
	s.vectors.Delete(ids)
	if len(ids) > 0 {
		s.dirty.Store(true)
	}
	return nil
}

// QueryByField delegates to the chunk database.
func (s *VaultStore) QueryByField(ctx context.Context, field, value string, limit int) ([]Record, error) {
	return s.chunks.QueryByField(ctx, field, value, limit)
}

// Count delegates to the chunk database.
func (s *VaultStore) Count(ctx context.Context) (int, error) {
	return s.chunks.Count(ctx)
}

// Paths returns the distinct source files currently indexed.
func (s *VaultStore) Paths(ctx context.Context) ([]string, error) {
	return s.chunks.Paths(ctx)
}

// Search finds the k nearest chunks and resolves them to full records.
func (s *VaultStore) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	return s.vectors.Search(ctx, query, k)
}

// Flush persists the vector index when it has unsaved changes. The
// SQLite side is durable on every commit and needs no flushing. A store
// opened only for reads never rewrites the saved index.
func (s *VaultStore) Flush() error {
	if !s.dirty.Load() {
		return nil
	}
	if err := s.vectors.Save(s.vectorPath); err != nil {
		return err
	}
	s.dirty.Store(false)
	return nil
}

// Close flushes the vector index and closes both stores.
func (s *VaultStore) Close() error {
	flushErr := s.Flush()
	if err := s.vectors.Close(); err != nil && flushErr == nil {
		flushErr = err
	}
	if err := s.chunks.Close(); err != nil && flushErr == nil {
		flushErr = err
	}
	return flushErr
}
