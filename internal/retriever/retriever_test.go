package retriever

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/backend/internal/storage/models"
	"github.com/askdesk/backend/internal/vectorindex"
	"github.com/askdesk/backend/internal/vectorindex/memory"
)

type staticSource struct {
	chunks []models.Chunk
}

func (s *staticSource) ChunksByCollection(_ context.Context, _ string) ([]models.Chunk, error) {
	return s.chunks, nil
}

func newFixture(t *testing.T) (*Retriever, vectorindex.Index) {
	t.Helper()
	idx := memory.New()
	source := &staticSource{chunks: []models.Chunk{
		{ID: "c1", DocumentID: "d1", Text: "password reset instructions"},
		{ID: "c2", DocumentID: "d1", Text: "billing and invoices"},
		{ID: "c3", DocumentID: "d2", Text: "shipping delays this week"},
	}}

	err := idx.Upsert(context.Background(), "kb", []vectorindex.Entry{
		{ChunkID: "c1", Embedding: []float32{1, 0, 0}, Text: "password reset instructions", Metadata: map[string]string{"document_id": "d1"}},
		{ChunkID: "c2", Embedding: []float32{0, 1, 0}, Text: "billing and invoices", Metadata: map[string]string{"document_id": "d1"}},
		{ChunkID: "c3", Embedding: []float32{0, 0, 1}, Text: "shipping delays this week", Metadata: map[string]string{"document_id": "d2"}},
	})
	require.NoError(t, err)
	return New(idx, source), idx
}

func TestDenseRetrieval(t *testing.T) {
	r, _ := newFixture(t)

	results, err := r.Retrieve(context.Background(), "kb", "anything", []float32{1, 0, 0}, 2, ModeDense, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "c1", results[0].ChunkID)
	assert.Equal(t, "d1", results[0].DocumentID)
}

func TestSparseRetrieval(t *testing.T) {
	r, _ := newFixture(t)

	results, err := r.Retrieve(context.Background(), "kb", "password reset", nil, 2, ModeSparse, nil)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "c1", results[0].ChunkID)
}

func TestHybridDedupPrefersDense(t *testing.T) {
	idx := memory.New()
	require.NoError(t, idx.Upsert(context.Background(), "kb", []vectorindex.Entry{
		{ChunkID: "dense-a", Embedding: []float32{1, 0}, Text: "alpha text"},
		{ChunkID: "dense-b", Embedding: []float32{0.9, 0.1}, Text: "beta text"},
	}))
	source := &staticSource{chunks: []models.Chunk{
		{ID: "sparse-b", DocumentID: "d1", Text: "beta text"},
		{ID: "sparse-c", DocumentID: "d1", Text: "gamma text"},
	}}
	r := New(idx, source)

	results, err := r.Retrieve(context.Background(), "kb", "beta gamma text", []float32{1, 0}, 3, ModeHybrid, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Dense hit wins the duplicate text, sparse contributes the rest.
	assert.Equal(t, "dense-a", results[0].ChunkID)
	assert.Equal(t, "dense-b", results[1].ChunkID)
	assert.Equal(t, "sparse-c", results[2].ChunkID)
}

func TestHybridTruncatesToTopK(t *testing.T) {
	r, _ := newFixture(t)

	results, err := r.Retrieve(context.Background(), "kb", "password billing shipping", []float32{1, 0, 0}, 2, ModeHybrid, nil)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestEmptyCollection(t *testing.T) {
	idx := memory.New()
	r := New(idx, &staticSource{})

	for _, mode := range []Mode{ModeDense, ModeSparse, ModeHybrid} {
		results, err := r.Retrieve(context.Background(), "empty", "query", []float32{1, 0, 0}, 5, mode, nil)
		require.NoError(t, err, "mode %s", mode)
		assert.Empty(t, results, "mode %s", mode)
	}
}

func TestUnknownMode(t *testing.T) {
	r, _ := newFixture(t)
	_, err := r.Retrieve(context.Background(), "kb", "query", []float32{1, 0, 0}, 5, Mode("fuzzy"), nil)
	assert.Error(t, err)
}

func TestZeroTopK(t *testing.T) {
	r, _ := newFixture(t)
	results, err := r.Retrieve(context.Background(), "kb", "query", []float32{1, 0, 0}, 0, ModeHybrid, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}
