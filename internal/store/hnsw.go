package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"

	oerrors "github.com/obsidx/obsidx/internal/errors"
)

// VectorIndexName is the HNSW graph file inside the data directory.
// ID mappings live in a gob sidecar with a ".meta" suffix.
const VectorIndexName = "vectors.hnsw"

// VectorIndex is an in-memory HNSW graph over chunk vectors with
// explicit save/load. Chunk IDs are strings; the graph is keyed by
// uint64, so the index keeps a bidirectional mapping.
//
// Deletion is lazy: removing a chunk only drops its mapping, the node
// stays in the graph and is filtered from search results. Deleting
// graph nodes directly can leave the graph unsearchable when the entry
// point goes away.
type VectorIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idToKey map[string]uint64
	keyToID map[uint64]string
	nextKey uint64

	closed bool
}

// vectorIndexMeta is the persisted sidecar: the mapping plus the
// dimension lock. The graph itself uses the library's own format.
type vectorIndexMeta struct {
	IDToKey    map[string]uint64
	NextKey    uint64
	Dimensions int
}

// NewVectorIndex creates an empty cosine-distance HNSW index for
// vectors of the given dimension.
func NewVectorIndex(dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, oerrors.New(oerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("vector dimensions must be positive, got %d", dimensions), nil)
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.Ml = 0.25
	graph.EfSearch = 20

	return &VectorIndex{
		graph:      graph,
		dimensions: dimensions,
		idToKey:    make(map[string]uint64),
		keyToID:    make(map[uint64]string),
	}, nil
}

// Add inserts vectors under their chunk IDs, replacing existing ones.
func (x *VectorIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	for _, v := range vectors {
		if len(v) != x.dimensions {
			return oerrors.New(oerrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", x.dimensions, len(v)), nil)
		}
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		if oldKey, exists := x.idToKey[id]; exists {
			delete(x.keyToID, oldKey)
			delete(x.idToKey, id)
		}

		key := x.nextKey
		x.nextKey++

		x.graph.Add(hnsw.MakeNode(key, vectors[i]))
		x.idToKey[id] = key
		x.keyToID[key] = id
	}
	return nil
}

// Delete removes chunk IDs from the index. Unknown IDs are ignored.
func (x *VectorIndex) Delete(ids []string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return
	}
	for _, id := range ids {
		if key, exists := x.idToKey[id]; exists {
			delete(x.keyToID, key)
			delete(x.idToKey, id)
		}
	}
}

// Contains reports whether a chunk ID has a live vector.
func (x *VectorIndex) Contains(id string) bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, exists := x.idToKey[id]
	return exists
}

// Count returns the number of live vectors (orphaned graph nodes from
// lazy deletion are not counted).
func (x *VectorIndex) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idToKey)
}

// Search returns up to k nearest chunk IDs by cosine similarity.
func (x *VectorIndex) Search(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return nil, fmt.Errorf("vector index is closed")
	}
	if len(query) != x.dimensions {
		return nil, oerrors.New(oerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("expected %d dimensions, got %d", x.dimensions, len(query)), nil)
	}
	if x.graph.Len() == 0 {
		return []SearchResult{}, nil
	}

	// Over-fetch so lazily deleted nodes can be filtered out without
	// shrinking the result set.
	fetch := k + (x.graph.Len() - len(x.idToKey))
	nodes := x.graph.Search(query, fetch)

	results := make([]SearchResult, 0, k)
	for _, node := range nodes {
		id, live := x.keyToID[node.Key]
		if !live {
			continue
		}
		distance := x.graph.Distance(query, node.Value)
		results = append(results, SearchResult{
			ID:    id,
			Score: 1.0 - distance/2.0, // cosine distance 0..2 -> similarity 1..0
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// Save persists the graph and ID mapping atomically (temp + rename).
func (x *VectorIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error {
		return x.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("failed to save vector graph: %w", err)
	}

	meta := vectorIndexMeta{
		IDToKey:    x.idToKey,
		NextKey:    x.nextKey,
		Dimensions: x.dimensions,
	}
	if err := writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save vector index metadata: %w", err)
	}
	return nil
}

// Load restores a previously saved index. A missing file pair is not an
// error; the index simply starts empty.
func (x *VectorIndex) Load(path string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return fmt.Errorf("vector index is closed")
	}

	metaFile, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to open vector index metadata: %w", err)
	}
	defer metaFile.Close()

	var meta vectorIndexMeta
	if err := gob.NewDecoder(metaFile).Decode(&meta); err != nil {
		return fmt.Errorf("failed to decode vector index metadata: %w", err)
	}
	if meta.Dimensions != x.dimensions {
		return oerrors.New(oerrors.ErrCodeDimensionMismatch,
			fmt.Sprintf("saved index has %d dimensions, expected %d", meta.Dimensions, x.dimensions), nil)
	}

	graphFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open vector graph: %w", err)
	}
	defer graphFile.Close()

	// Import needs an io.ByteReader.
	if err := x.graph.Import(bufio.NewReader(graphFile)); err != nil {
		return fmt.Errorf("failed to import vector graph: %w", err)
	}

	x.idToKey = meta.IDToKey
	x.nextKey = meta.NextKey
	x.keyToID = make(map[uint64]string, len(meta.IDToKey))
	for id, key := range meta.IDToKey {
		x.keyToID[key] = id
	}
	return nil
}

// Close releases the graph. The index must be saved first if its
// contents should survive.
func (x *VectorIndex) Close() error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.closed {
		return nil
	}
	x.closed = true
	x.graph = nil
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
