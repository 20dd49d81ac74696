package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/vectorindex"
)

func TestUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := New()

	err := idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{1, 0, 0}, Text: "alpha"},
		{ChunkID: "b", Embedding: []float32{0, 1, 0}, Text: "beta"},
		{ChunkID: "c", Embedding: []float32{0.9, 0.1, 0}, Text: "gamma"},
	})
	require.NoError(t, err)

	results, err := idx.Query(ctx, "docs", []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestQueryMissingCollection(t *testing.T) {
	idx := New()
	results, err := idx.Query(context.Background(), "nope", []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpsertDimensionMismatchIsAtomic(t *testing.T) {
	ctx := context.Background()
	idx := New()

	err := idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{1, 0, 0}},
		{ChunkID: "b", Embedding: []float32{1, 0}},
	})
	var dimErr *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
	assert.Equal(t, 2, dimErr.Got)
	assert.Equal(t, 3, dimErr.Want)

	// Nothing from the failed batch may land in the collection.
	ok, err := idx.Exists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := New()
	require.NoError(t, idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{1, 0, 0}},
	}))

	_, err := idx.Query(ctx, "docs", []float32{1, 0}, 5, nil)
	var dimErr *domain.DimensionMismatchError
	require.True(t, errors.As(err, &dimErr))
}

func TestUpsertOverwritesByChunkID(t *testing.T) {
	ctx := context.Background()
	idx := New()

	require.NoError(t, idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{1, 0}, Text: "old"},
	}))
	require.NoError(t, idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{0, 1}, Text: "new"},
	}))

	results, err := idx.Query(ctx, "docs", []float32{0, 1}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "new", results[0].Text)
}

func TestQueryFilter(t *testing.T) {
	ctx := context.Background()
	idx := New()

	require.NoError(t, idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{1, 0}, Metadata: map[string]string{"category": "Billing"}},
		{ChunkID: "b", Embedding: []float32{1, 0}, Metadata: map[string]string{"category": "Refunds"}},
	}))

	results, err := idx.Query(ctx, "docs", []float32{1, 0}, 10, vectorindex.Filter{
		"category": {"Refunds"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)
}

func TestDeleteAndDrop(t *testing.T) {
	ctx := context.Background()
	idx := New()

	require.NoError(t, idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "a", Embedding: []float32{1, 0}},
		{ChunkID: "b", Embedding: []float32{0, 1}},
	}))

	require.NoError(t, idx.Delete(ctx, "docs", []string{"a", "missing"}))
	results, err := idx.Query(ctx, "docs", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ChunkID)

	require.NoError(t, idx.Drop(ctx, "docs"))
	ok, err := idx.Exists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQueryTieBreakInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := New()

	require.NoError(t, idx.Upsert(ctx, "docs", []vectorindex.Entry{
		{ChunkID: "first", Embedding: []float32{1, 0}},
		{ChunkID: "second", Embedding: []float32{2, 0}},
	}))

	results, err := idx.Query(ctx, "docs", []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "first", results[0].ChunkID)
	assert.Equal(t, "second", results[1].ChunkID)
}
