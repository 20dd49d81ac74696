// Package classify assigns a query to a category by comparing its
// embedding against embeddings of the category labels, and decides
// whether the answer can be auto-resolved or must be escalated.
package classify

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/embedding"
)

const DefaultThreshold = 0.75

type Decision struct {
	Category     string  `json:"category"`
	Confidence   float64 `json:"confidence"`
	AutoResolved bool    `json:"auto_resolved"`
}

type Classifier struct {
	embedder   embedding.Embedder
	categories []string
	threshold  float64

	once       sync.Once
	labelVecs  [][]float32
	prepareErr error
}

func New(embedder embedding.Embedder, categories []string, threshold float64) (*Classifier, error) {
	if len(categories) == 0 {
		return nil, fmt.Errorf("%w: classifier needs at least one category", domain.ErrInvalidInput)
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Classifier{
		embedder:   embedder,
		categories: categories,
		threshold:  threshold,
	}, nil
}

// prepare embeds the category labels once. A failure is sticky so every
// caller sees the same error instead of half-initialized state.
func (c *Classifier) prepare(ctx context.Context) error {
	c.once.Do(func() {
		c.labelVecs, c.prepareErr = c.embedder.EmbedBatch(ctx, c.categories)
		if c.prepareErr == nil {
			zap.L().Info("category embeddings cached", zap.Int("categories", len(c.categories)))
		}
	})
	return c.prepareErr
}

// Classify picks the category whose label embedding is most similar to
// the query embedding. Confidence is that similarity clamped to [0, 1];
// the decision auto-resolves only when confidence reaches the threshold.
func (c *Classifier) Classify(ctx context.Context, queryEmbedding []float32) (Decision, error) {
	if err := c.prepare(ctx); err != nil {
		return Decision{}, fmt.Errorf("failed to prepare classifier: %w", err)
	}

	best := 0
	bestScore := math.Inf(-1)
	for i, vec := range c.labelVecs {
		score := cosine(queryEmbedding, vec)
		if score > bestScore {
			best = i
			bestScore = score
		}
	}

	confidence := bestScore
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return Decision{
		Category:     c.categories[best],
		Confidence:   confidence,
		AutoResolved: confidence >= c.threshold,
	}, nil
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
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
