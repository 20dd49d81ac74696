// Package memory implements the vector index as an in-process store with
// brute-force cosine search. It is the default backend for single-node
// deployments and tests; the milvus package covers shared deployments.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/vectorindex"
)

type collection struct {
	dim     int
	entries []vectorindex.Entry // insertion order, ties resolve by it
	byID    map[string]int
}

type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Index {
	return &Index{collections: make(map[string]*collection)}
}

func (x *Index) Upsert(ctx context.Context, name string, entries []vectorindex.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	col, ok := x.collections[name]
	dim := len(entries[0].Embedding)
	if ok {
		dim = col.dim
	}

	// Validate the whole batch before mutating so the upsert is atomic.
	for _, e := range entries {
		if len(e.Embedding) != dim {
			return &domain.DimensionMismatchError{Got: len(e.Embedding), Want: dim}
		}
	}

	if !ok {
		col = &collection{dim: dim, byID: make(map[string]int)}
		x.collections[name] = col
	}

	for _, e := range entries {
		if i, exists := col.byID[e.ChunkID]; exists {
			col.entries[i] = e
			continue
		}
		col.byID[e.ChunkID] = len(col.entries)
		col.entries = append(col.entries, e)
	}
	return nil
}

func (x *Index) Query(ctx context.Context, name string, embedding []float32, topK int, filter vectorindex.Filter) ([]vectorindex.SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	col, ok := x.collections[name]
	if !ok {
		return []vectorindex.SearchResult{}, nil
	}
	if len(embedding) != col.dim {
		return nil, &domain.DimensionMismatchError{Got: len(embedding), Want: col.dim}
	}
	if topK <= 0 {
		return []vectorindex.SearchResult{}, nil
	}

	results := make([]vectorindex.SearchResult, 0)
	for _, e := range col.entries {
		if filter != nil && !filter.Matches(e.Metadata) {
			continue
		}
		results = append(results, vectorindex.SearchResult{
			ChunkID:    e.ChunkID,
			Text:       e.Text,
			Metadata:   e.Metadata,
			Similarity: cosine(embedding, e.Embedding),
		})
	}

	// Stable sort keeps insertion order for equal similarities.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (x *Index) Delete(ctx context.Context, name string, chunkIDs []string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	col, ok := x.collections[name]
	if !ok {
		return nil
	}

	drop := make(map[string]bool, len(chunkIDs))
	for _, id := range chunkIDs {
		drop[id] = true
	}

	kept := col.entries[:0]
	for _, e := range col.entries {
		if !drop[e.ChunkID] {
			kept = append(kept, e)
		}
	}
	col.entries = kept

	col.byID = make(map[string]int, len(col.entries))
	for i, e := range col.entries {
		col.byID[e.ChunkID] = i
	}
	return nil
}

func (x *Index) Exists(ctx context.Context, name string) (bool, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	_, ok := x.collections[name]
	return ok, nil
}

func (x *Index) Drop(ctx context.Context, name string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.collections, name)
	return nil
}

func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
