// Package redis provides the optional caching tier: embedding vectors,
// synthesized answers, and a shared ingestion status store for multi
// instance deployments.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/status"
)

const (
	embeddingPrefix = "askdesk:embedding:"
	answerPrefix    = "askdesk:answer:"
	statusPrefix    = "askdesk:status:"
)

type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	zap.L().Info("Redis cache connected", zap.String("addr", addr))
	return &Client{rdb: rdb, ttl: ttl}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetEmbedding implements embedding.VectorCache.
func (c *Client) GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error) {
	data, err := c.rdb.Get(ctx, embeddingPrefix+textHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached embedding: %w", err)
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return vec, true, nil
}

func (c *Client) SetEmbedding(ctx context.Context, textHash string, embedding []float32) error {
	data, err := json.Marshal(embedding)
	if err != nil {
		return fmt.Errorf("failed to encode embedding: %w", err)
	}
	if err := c.rdb.Set(ctx, embeddingPrefix+textHash, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache embedding: %w", err)
	}
	return nil
}

// GetAnswer returns a cached query response body, keyed by query hash.
func (c *Client) GetAnswer(ctx context.Context, queryHash string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, answerPrefix+queryHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached answer: %w", err)
	}
	return data, true, nil
}

func (c *Client) SetAnswer(ctx context.Context, queryHash string, response []byte) error {
	if err := c.rdb.Set(ctx, answerPrefix+queryHash, response, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache answer: %w", err)
	}
	return nil
}

// InvalidateAnswers drops all cached answers. Called after ingestion and
// deletion because any corpus change can invalidate any answer.
func (c *Client) InvalidateAnswers(ctx context.Context) error {
	iter := c.rdb.Scan(ctx, 0, answerPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.rdb.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to invalidate answer cache: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan answer cache: %w", err)
	}
	return nil
}

// StatusStore adapts the Redis client to status.Store. Status records do
// not expire with the cache TTL; clients may poll long after completion.
type StatusStore struct {
	rdb *redis.Client
}

func (c *Client) StatusStore() *StatusStore {
	return &StatusStore{rdb: c.rdb}
}

func (s *StatusStore) Get(ctx context.Context, documentID string) (status.Record, error) {
	data, err := s.rdb.Get(ctx, statusPrefix+documentID).Bytes()
	if errors.Is(err, redis.Nil) {
		return status.Record{}, fmt.Errorf("status for document %s: %w", documentID, domain.ErrNotFound)
	}
	if err != nil {
		return status.Record{}, fmt.Errorf("failed to get status: %w", err)
	}

	var rec status.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return status.Record{}, fmt.Errorf("failed to decode status: %w", err)
	}
	return rec, nil
}

func (s *StatusStore) Set(ctx context.Context, documentID string, state status.State, reason string) error {
	rec := status.Record{
		DocumentID: documentID,
		State:      state,
		Reason:     reason,
		UpdatedAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode status: %w", err)
	}
	if err := s.rdb.Set(ctx, statusPrefix+documentID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set status: %w", err)
	}
	return nil
}

func (s *StatusStore) List(ctx context.Context) ([]status.Record, error) {
	records := make([]status.Record, 0)
	iter := s.rdb.Scan(ctx, 0, statusPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list statuses: %w", err)
		}
		var rec status.Record
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("failed to decode status: %w", err)
		}
		records = append(records, rec)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan statuses: %w", err)
	}
	return records, nil
}

func (s *StatusStore) Delete(ctx context.Context, documentID string) error {
	if err := s.rdb.Del(ctx, statusPrefix+documentID).Err(); err != nil {
		return fmt.Errorf("failed to delete status: %w", err)
	}
	return nil
}
