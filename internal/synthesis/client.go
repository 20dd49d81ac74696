// Package synthesis generates grounded answers from retrieved context
// with a chat completion model.
package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/pkg/circuitbreaker"
	"github.com/askdesk/backend/pkg/logger"
	"github.com/askdesk/backend/pkg/retry"
)

// FallbackAnswer is returned when synthesis fails or no context was
// retrieved. The query still resolves; it just escalates.
const FallbackAnswer = "I could not find a reliable answer in the knowledge base. Your question has been forwarded to a support agent."

const systemPrompt = `You are a customer support assistant. Answer the question using only the provided context passages. Cite nothing outside them. If the context does not contain the answer, say so plainly instead of guessing. Keep answers short and actionable.`

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func New(apiKey, model string, temperature float32, maxTokens int) *Client {
	cb := circuitbreaker.NewCircuitBreaker("synthesis", circuitbreaker.Config{
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

	logger.Info("Synthesis client initialized",
		zap.String("model", model),
		zap.Float32("temperature", temperature),
	)

	return &Client{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// Synthesize builds an answer to the query from the context passages.
func (c *Client) Synthesize(ctx context.Context, query string, contexts []string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	if len(contexts) == 0 {
		return FallbackAnswer, nil
	}

	var sb strings.Builder
	for i, passage := range contexts {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, passage)
	}
	userPrompt := fmt.Sprintf("Context passages:\n\n%sQuestion: %s", sb.String(), query)

	var answer string
	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
			})
			if err != nil {
				return fmt.Errorf("%w: %v", domain.ErrUpstreamService, err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("%w: completion returned no choices", domain.ErrUpstreamService)
			}
			answer = strings.TrimSpace(resp.Choices[0].Message.Content)
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return answer, nil
}
