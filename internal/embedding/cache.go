package embedding

import (
	"context"

	"go.uber.org/zap"

	"github.com/askdesk/backend/pkg/logger"
	"github.com/askdesk/backend/pkg/utils"
)

// VectorCache stores computed embeddings keyed by text hash. The redis
// client implements it; a nil-safe miss keeps embedding deterministic
// whether or not the cache is reachable.
type VectorCache interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32) error
}

// Cached decorates an Embedder with a VectorCache. Cache errors are logged
// and ignored; the wrapped embedder is the source of truth.
type Cached struct {
	inner Embedder
	cache VectorCache
}

func NewCached(inner Embedder, cache VectorCache) *Cached {
	return &Cached{inner: inner, cache: cache}
}

func (c *Cached) Dimension() int {
	return c.inner.Dimension()
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	key := utils.HashString(text)

	vec, ok, err := c.cache.GetEmbedding(ctx, key)
	if err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok {
		return vec, nil
	}

	vec, err = c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.SetEmbedding(ctx, key, vec); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))

	for i, text := range texts {
		vec, ok, err := c.cache.GetEmbedding(ctx, utils.HashString(text))
		if err != nil {
			logger.Warn("Embedding cache read failed", zap.Error(err))
		}
		if ok {
			vectors[i] = vec
		} else {
			missing = append(missing, i)
		}
	}

	if len(missing) == 0 {
		return vectors, nil
	}

	uncached := make([]string, len(missing))
	for j, i := range missing {
		uncached[j] = texts[i]
	}

	fresh, err := c.inner.EmbedBatch(ctx, uncached)
	if err != nil {
		return nil, err
	}

	for j, i := range missing {
		vectors[i] = fresh[j]
		if err := c.cache.SetEmbedding(ctx, utils.HashString(texts[i]), fresh[j]); err != nil {
			logger.Warn("Embedding cache write failed", zap.Error(err))
		}
	}
	return vectors, nil
}
