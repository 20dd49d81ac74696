// Package rerank reorders retrieval candidates by query relevance using a
// pairwise scorer. The scorer is expensive to construct, so it loads once
// on first use and only when there is more than one candidate.
package rerank

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/embedding"
)

// Scorer assigns a relevance score to each (query, candidate) pair.
// Returned scores are positionally aligned with candidates.
type Scorer interface {
	ScorePairs(ctx context.Context, query string, candidates []string) ([]float64, error)
}

type Reranker struct {
	once   sync.Once
	load   func() (Scorer, error)
	scorer Scorer
	err    error
}

func New(load func() (Scorer, error)) *Reranker {
	return &Reranker{load: load}
}

// Rerank returns candidates reordered by descending score, truncated to
// topK. A topK of zero or less means no truncation: the whole list comes
// back reranked. Zero or one candidates pass through unchanged without
// loading the scorer.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []string, topK int) ([]string, error) {
	if topK <= 0 {
		topK = len(candidates)
	}
	if len(candidates) <= 1 {
		out := make([]string, len(candidates))
		copy(out, candidates)
		return out, nil
	}

	r.once.Do(func() {
		r.scorer, r.err = r.load()
		if r.err == nil {
			zap.L().Info("reranker scorer loaded")
		}
	})
	if r.err != nil {
		return nil, fmt.Errorf("failed to load reranker: %w", r.err)
	}

	scores, err := r.scorer.ScorePairs(ctx, query, candidates)
	if err != nil {
		return nil, fmt.Errorf("rerank scoring failed: %w", err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("rerank returned %d scores for %d candidates", len(scores), len(candidates))
	}

	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]string, topK)
	for i := 0; i < topK; i++ {
		out[i] = candidates[order[i]]
	}
	return out, nil
}

// EmbeddingScorer scores pairs with cosine similarity between the query
// embedding and each candidate embedding.
type EmbeddingScorer struct {
	embedder embedding.Embedder
}

func NewEmbeddingScorer(embedder embedding.Embedder) *EmbeddingScorer {
	return &EmbeddingScorer{embedder: embedder}
}

func (s *EmbeddingScorer) ScorePairs(ctx context.Context, query string, candidates []string) ([]float64, error) {
	vectors, err := s.embedder.EmbedBatch(ctx, append([]string{query}, candidates...))
	if err != nil {
		return nil, err
	}

	queryVec := vectors[0]
	scores := make([]float64, len(candidates))
	for i, vec := range vectors[1:] {
		scores[i] = cosine(queryVec, vec)
	}
	return scores, nil
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
