// Package retriever combines dense vector search and sparse TF-IDF
// ranking over a collection's chunks.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/sparse"
	"github.com/askdesk/backend/internal/storage/models"
	"github.com/askdesk/backend/internal/vectorindex"
)

type Mode string

const (
	ModeDense  Mode = "dense"
	ModeSparse Mode = "sparse"
	ModeHybrid Mode = "hybrid"
)

type Result struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Text       string  `json:"text"`
	Score      float64 `json:"score"`
}

// ChunkSource supplies the full chunk set of a collection, which the
// sparse ranker needs to build its index.
type ChunkSource interface {
	ChunksByCollection(ctx context.Context, collection string) ([]models.Chunk, error)
}

type Retriever struct {
	index  vectorindex.Index
	source ChunkSource
}

func New(index vectorindex.Index, source ChunkSource) *Retriever {
	return &Retriever{index: index, source: source}
}

// Retrieve ranks the collection's chunks for the query. Dense mode uses
// vector similarity, sparse mode uses TF-IDF, and hybrid mode overfetches
// both at twice topK, merges with dense results first, drops candidates
// whose text already appeared, and truncates to topK.
func (r *Retriever) Retrieve(ctx context.Context, collection, query string, queryEmbedding []float32, topK int, mode Mode, filter vectorindex.Filter) ([]Result, error) {
	if topK <= 0 {
		return []Result{}, nil
	}

	switch mode {
	case ModeDense:
		return r.dense(ctx, collection, queryEmbedding, topK, filter)
	case ModeSparse:
		return r.sparse(ctx, collection, query, topK)
	case ModeHybrid, "":
		return r.hybrid(ctx, collection, query, queryEmbedding, topK, filter)
	default:
		return nil, fmt.Errorf("unknown retrieval mode %q", mode)
	}
}

func (r *Retriever) dense(ctx context.Context, collection string, embedding []float32, topK int, filter vectorindex.Filter) ([]Result, error) {
	hits, err := r.index.Query(ctx, collection, embedding, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("dense retrieval failed: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			ChunkID:    h.ChunkID,
			DocumentID: h.Metadata["document_id"],
			Text:       h.Text,
			Score:      float64(h.Similarity),
		})
	}
	return results, nil
}

func (r *Retriever) sparse(ctx context.Context, collection, query string, topK int) ([]Result, error) {
	chunks, err := r.source.ChunksByCollection(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("sparse retrieval failed: %w", err)
	}

	candidates := make([]sparse.Candidate, 0, len(chunks))
	for _, ch := range chunks {
		candidates = append(candidates, sparse.Candidate{
			ChunkID:    ch.ID,
			DocumentID: ch.DocumentID,
			Text:       ch.Text,
		})
	}

	scored := sparse.Rank(query, candidates, topK)
	results := make([]Result, 0, len(scored))
	for _, s := range scored {
		results = append(results, Result{
			ChunkID:    s.ChunkID,
			DocumentID: s.DocumentID,
			Text:       s.Text,
			Score:      s.Score,
		})
	}
	return results, nil
}

func (r *Retriever) hybrid(ctx context.Context, collection, query string, embedding []float32, topK int, filter vectorindex.Filter) ([]Result, error) {
	overfetch := 2 * topK

	denseResults, err := r.dense(ctx, collection, embedding, overfetch, filter)
	if err != nil {
		return nil, err
	}
	sparseResults, err := r.sparse(ctx, collection, query, overfetch)
	if err != nil {
		return nil, err
	}

	// Dense hits take priority: a sparse hit with identical text is a
	// duplicate, not new evidence.
	seen := make(map[string]struct{}, overfetch)
	merged := make([]Result, 0, overfetch)
	for _, res := range append(denseResults, sparseResults...) {
		if _, ok := seen[res.Text]; ok {
			continue
		}
		seen[res.Text] = struct{}{}
		merged = append(merged, res)
	}
	if len(merged) > topK {
		merged = merged[:topK]
	}

	zap.L().Debug("hybrid retrieval merged",
		zap.Int("dense", len(denseResults)),
		zap.Int("sparse", len(sparseResults)),
		zap.Int("merged", len(merged)))
	return merged, nil
}
