package openai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/pkg/circuitbreaker"
	"github.com/askdesk/backend/pkg/logger"
	"github.com/askdesk/backend/pkg/retry"
)

// Embedder calls the OpenAI embeddings endpoint. Requests go through a
// circuit breaker and exponential-backoff retry; a tripped breaker or
// exhausted retries surface as domain.ErrUpstreamService.
type Embedder struct {
	client      *openai.Client
	model       string
	dim         int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func New(apiKey, model string, dim int) *Embedder {
	cb := circuitbreaker.NewCircuitBreaker("embedding", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Embedding client initialized",
		zap.String("model", model),
		zap.Int("dim", dim),
	)

	return &Embedder{
		client:      openai.NewClient(apiKey),
		model:       model,
		dim:         dim,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

func (e *Embedder) Dimension() int {
	return e.dim
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		var got [][]float32
		err := e.cb.Execute(ctx, func() error {
			return retry.Do(ctx, e.retryConfig, func() error {
				resp, err := e.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(e.model),
					},
				)
				if err != nil {
					return fmt.Errorf("create embeddings: %w", err)
				}

				got = got[:0]
				for _, data := range resp.Data {
					vec := make([]float32, len(data.Embedding))
					copy(vec, data.Embedding)
					if len(vec) != e.dim {
						return &domain.DimensionMismatchError{Got: len(vec), Want: e.dim}
					}
					got = append(got, vec)
				}
				return nil
			})
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUpstreamService, err)
		}
		embeddings = append(embeddings, got...)
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}
