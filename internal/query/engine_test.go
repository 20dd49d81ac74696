package query

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/backend/internal/classify"
	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/embedding/hashing"
	"github.com/askdesk/backend/internal/rerank"
	"github.com/askdesk/backend/internal/retriever"
	"github.com/askdesk/backend/internal/storage/models"
	"github.com/askdesk/backend/internal/synthesis"
	"github.com/askdesk/backend/internal/vectorindex"
	"github.com/askdesk/backend/internal/vectorindex/memory"
)

type stubSynth struct {
	answer string
	err    error
	calls  int
}

func (s *stubSynth) Synthesize(_ context.Context, _ string, _ []string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

type mapCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMapCache() *mapCache { return &mapCache{data: make(map[string][]byte)} }

func (c *mapCache) GetAnswer(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	return data, ok, nil
}

func (c *mapCache) SetAnswer(_ context.Context, key string, response []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = response
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	records []models.QueryRecord
}

func (h *memHistory) InsertQueryRecord(_ context.Context, rec models.QueryRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *memHistory) ListQueryHistory(_ context.Context, limit int) ([]models.QueryRecord, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit > 0 && limit < len(h.records) {
		return h.records[:limit], nil
	}
	return h.records, nil
}

type staticSource struct {
	chunks []models.Chunk
}

func (s *staticSource) ChunksByCollection(_ context.Context, _ string) ([]models.Chunk, error) {
	return s.chunks, nil
}

func seedIndex(t *testing.T) vectorindex.Index {
	t.Helper()
	emb := hashing.New(256)
	idx := memory.New()
	ctx := context.Background()

	texts := map[string]string{
		"c1": "to request a refund open the orders page and select the item",
		"c2": "shipping usually takes three to five business days",
		"c3": "password resets are emailed within a few minutes",
	}
	entries := make([]vectorindex.Entry, 0, len(texts))
	for id, text := range texts {
		vec, err := emb.Embed(ctx, text)
		require.NoError(t, err)
		entries = append(entries, vectorindex.Entry{
			ChunkID:   id,
			Embedding: vec,
			Text:      text,
			Metadata:  map[string]string{"document_id": "d1"},
		})
	}
	require.NoError(t, idx.Upsert(ctx, "kb", entries))
	return idx
}

func newEngine(t *testing.T, synth Synthesizer, cache AnswerCache, history HistoryStore, opts Options) *Engine {
	t.Helper()
	emb := hashing.New(256)
	idx := seedIndex(t)
	source := &staticSource{chunks: []models.Chunk{
		{ID: "c1", DocumentID: "d1", Text: "to request a refund open the orders page and select the item"},
		{ID: "c2", DocumentID: "d1", Text: "shipping usually takes three to five business days"},
		{ID: "c3", DocumentID: "d1", Text: "password resets are emailed within a few minutes"},
	}}

	classifier, err := classify.New(emb, []string{"Billing", "Shipping", "Account"}, 0.01)
	require.NoError(t, err)

	reranker := rerank.New(func() (rerank.Scorer, error) {
		return rerank.NewEmbeddingScorer(emb), nil
	})

	return NewEngine(emb, retriever.New(idx, source), reranker, classifier, synth, cache, history, opts)
}

func TestProcessReturnsAnswerAndDecision(t *testing.T) {
	synth := &stubSynth{answer: "Open the orders page to request your refund."}
	history := &memHistory{}
	e := newEngine(t, synth, nil, history, Options{TopK: 2, RerankEnabled: true})

	resp, err := e.Process(context.Background(), Request{
		Query:      "how do I get a refund",
		Collection: "kb",
	})
	require.NoError(t, err)

	assert.Equal(t, synth.answer, resp.Answer)
	assert.NotEmpty(t, resp.Category)
	assert.Len(t, resp.Results, 2)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
	assert.False(t, resp.Cached)

	records, err := e.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "how do I get a refund", records[0].Query)
	assert.Equal(t, 2, records[0].ResultCount)
}

func TestProcessFallsBackWhenSynthesisFails(t *testing.T) {
	synth := &stubSynth{err: errors.New("model timeout")}
	e := newEngine(t, synth, nil, nil, Options{TopK: 2})

	resp, err := e.Process(context.Background(), Request{
		Query:      "how do I get a refund",
		Collection: "kb",
	})
	require.NoError(t, err)
	assert.Equal(t, synthesis.FallbackAnswer, resp.Answer)
	assert.False(t, resp.AutoResolved)
}

func TestProcessUsesAnswerCache(t *testing.T) {
	synth := &stubSynth{answer: "cached answer"}
	cache := newMapCache()
	e := newEngine(t, synth, cache, nil, Options{TopK: 2})

	req := Request{Query: "how do I get a refund", Collection: "kb"}

	resp, err := e.Process(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 1, synth.calls)

	resp, err = e.Process(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, "cached answer", resp.Answer)
	assert.Equal(t, 1, synth.calls)
}

func TestProcessDoesNotCacheFallback(t *testing.T) {
	synth := &stubSynth{err: errors.New("model down")}
	cache := newMapCache()
	e := newEngine(t, synth, cache, nil, Options{TopK: 2})

	_, err := e.Process(context.Background(), Request{Query: "refund", Collection: "kb"})
	require.NoError(t, err)
	assert.Empty(t, cache.data)
}

func TestProcessRejectsEmptyQuery(t *testing.T) {
	e := newEngine(t, &stubSynth{answer: "x"}, nil, nil, Options{})

	_, err := e.Process(context.Background(), Request{Query: "   ", Collection: "kb"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = e.Process(context.Background(), Request{Query: "refund"})
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestProcessEmptyCollectionStillAnswers(t *testing.T) {
	synth := &stubSynth{answer: "should not matter"}
	e := newEngine(t, synth, nil, nil, Options{TopK: 3})

	resp, err := e.Process(context.Background(), Request{
		Query:      "anything",
		Collection: "empty-collection",
		Mode:       retriever.ModeDense,
	})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestProcessRerankDisabledKeepsRetrievalOrder(t *testing.T) {
	synth := &stubSynth{answer: "ok"}
	e := newEngine(t, synth, nil, nil, Options{TopK: 3, RerankEnabled: false})

	resp, err := e.Process(context.Background(), Request{
		Query:      "how do I get a refund",
		Collection: "kb",
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 3)
	assert.Equal(t, "c1", resp.Results[0].ChunkID)
}
