// Package query runs the read path: embed the query, retrieve context,
// rerank it, classify the query, and synthesize an answer with a
// confidence-based escalation decision.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/classify"
	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/embedding"
	"github.com/askdesk/backend/internal/metrics"
	"github.com/askdesk/backend/internal/rerank"
	"github.com/askdesk/backend/internal/retriever"
	"github.com/askdesk/backend/internal/storage/models"
	"github.com/askdesk/backend/internal/synthesis"
	"github.com/askdesk/backend/pkg/utils"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, query string, contexts []string) (string, error)
}

// AnswerCache stores full serialized responses keyed by query hash.
type AnswerCache interface {
	GetAnswer(ctx context.Context, queryHash string) ([]byte, bool, error)
	SetAnswer(ctx context.Context, queryHash string, response []byte) error
}

type HistoryStore interface {
	InsertQueryRecord(ctx context.Context, rec models.QueryRecord) error
	ListQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

type Request struct {
	Query      string         `json:"query"`
	Collection string         `json:"collection"`
	TopK       int            `json:"top_k,omitempty"`
	Mode       retriever.Mode `json:"mode,omitempty"`
}

type Response struct {
	Answer       string             `json:"answer"`
	Category     string             `json:"category"`
	Confidence   float64            `json:"confidence"`
	AutoResolved bool               `json:"auto_resolved"`
	Results      []retriever.Result `json:"results"`
	Cached       bool               `json:"cached"`
	LatencyMS    int64              `json:"latency_ms"`
}

type Options struct {
	TopK          int
	Mode          retriever.Mode
	RerankEnabled bool
}

type Engine struct {
	embedder   embedding.Embedder
	retriever  *retriever.Retriever
	reranker   *rerank.Reranker
	classifier *classify.Classifier
	synth      Synthesizer
	cache      AnswerCache
	history    HistoryStore
	opts       Options
}

func NewEngine(embedder embedding.Embedder, ret *retriever.Retriever, reranker *rerank.Reranker, classifier *classify.Classifier, synth Synthesizer, cache AnswerCache, history HistoryStore, opts Options) *Engine {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.Mode == "" {
		opts.Mode = retriever.ModeHybrid
	}
	return &Engine{
		embedder:   embedder,
		retriever:  ret,
		reranker:   reranker,
		classifier: classifier,
		synth:      synth,
		cache:      cache,
		history:    history,
		opts:       opts,
	}
}

func (e *Engine) Process(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Query) == "" {
		return Response{}, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidInput)
	}
	if req.Collection == "" {
		return Response{}, fmt.Errorf("%w: collection is required", domain.ErrInvalidInput)
	}
	topK := req.TopK
	if topK <= 0 {
		topK = e.opts.TopK
	}
	mode := req.Mode
	if mode == "" {
		mode = e.opts.Mode
	}

	started := time.Now()
	cacheKey := utils.HashString(fmt.Sprintf("%s|%s|%s|%d", req.Collection, req.Query, mode, topK))

	if e.cache != nil {
		if data, ok, err := e.cache.GetAnswer(ctx, cacheKey); err == nil && ok {
			var resp Response
			if err := json.Unmarshal(data, &resp); err == nil {
				metrics.CacheHits.WithLabelValues("answer").Inc()
				resp.Cached = true
				resp.LatencyMS = time.Since(started).Milliseconds()
				return resp, nil
			}
		} else if err != nil {
			zap.L().Warn("answer cache lookup failed", zap.Error(err))
		}
		metrics.CacheMisses.WithLabelValues("answer").Inc()
	}

	queryVec, err := e.embedder.Embed(ctx, req.Query)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return Response{}, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := e.retriever.Retrieve(ctx, req.Collection, req.Query, queryVec, topK, mode, nil)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}
	metrics.RetrievalResultsCount.WithLabelValues(string(mode)).Observe(float64(len(results)))

	if e.opts.RerankEnabled && e.reranker != nil && len(results) > 1 {
		results, err = e.rerankResults(ctx, req.Query, results, topK)
		if err != nil {
			// Retrieval order is still usable when reranking fails.
			zap.L().Warn("rerank failed, keeping retrieval order", zap.Error(err))
		}
	}

	decision, err := e.classifier.Classify(ctx, queryVec)
	if err != nil {
		metrics.QueryTotal.WithLabelValues("error").Inc()
		return Response{}, err
	}

	contexts := make([]string, len(results))
	for i, r := range results {
		contexts[i] = r.Text
	}

	answer, synthErr := e.synth.Synthesize(ctx, req.Query, contexts)
	if synthErr != nil {
		zap.L().Warn("synthesis failed, returning fallback answer", zap.Error(synthErr))
		answer = synthesis.FallbackAnswer
		decision.AutoResolved = false
	}

	resp := Response{
		Answer:       answer,
		Category:     decision.Category,
		Confidence:   decision.Confidence,
		AutoResolved: decision.AutoResolved,
		Results:      results,
		LatencyMS:    time.Since(started).Milliseconds(),
	}

	metrics.QueryDuration.WithLabelValues(string(mode)).Observe(time.Since(started).Seconds())
	metrics.QueryTotal.WithLabelValues("success").Inc()
	metrics.ConfidenceScore.Observe(decision.Confidence)
	if !resp.AutoResolved {
		metrics.EscalationsTotal.Inc()
	}

	// Fallback answers are transient, never cache them.
	if e.cache != nil && synthErr == nil {
		if data, marshalErr := json.Marshal(resp); marshalErr == nil {
			if cacheErr := e.cache.SetAnswer(ctx, cacheKey, data); cacheErr != nil {
				zap.L().Warn("failed to cache answer", zap.Error(cacheErr))
			}
		}
	}

	if e.history != nil {
		rec := models.QueryRecord{
			ID:           uuid.NewString(),
			Query:        req.Query,
			Answer:       resp.Answer,
			Category:     resp.Category,
			Confidence:   resp.Confidence,
			AutoResolved: resp.AutoResolved,
			ResultCount:  len(results),
			LatencyMS:    resp.LatencyMS,
		}
		if histErr := e.history.InsertQueryRecord(ctx, rec); histErr != nil {
			zap.L().Warn("failed to record query history", zap.Error(histErr))
		}
	}

	return resp, nil
}

// rerankResults reorders retrieval results by rerank score. Results with
// duplicate text keep their first occurrence.
func (e *Engine) rerankResults(ctx context.Context, query string, results []retriever.Result, topK int) ([]retriever.Result, error) {
	texts := make([]string, len(results))
	byText := make(map[string]retriever.Result, len(results))
	for i, r := range results {
		texts[i] = r.Text
		if _, ok := byText[r.Text]; !ok {
			byText[r.Text] = r
		}
	}

	ordered, err := e.reranker.Rerank(ctx, query, texts, topK)
	if err != nil {
		return results, err
	}

	out := make([]retriever.Result, 0, len(ordered))
	for _, text := range ordered {
		out = append(out, byText[text])
	}
	return out, nil
}

func (e *Engine) History(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	if e.history == nil {
		return []models.QueryRecord{}, nil
	}
	return e.history.ListQueryHistory(ctx, limit)
}
