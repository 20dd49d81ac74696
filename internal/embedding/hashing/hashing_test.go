package hashing

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedDeterministic(t *testing.T) {
	e := New(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "refund policy for returned items")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "refund policy for returned items")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedUnitNorm(t *testing.T) {
	e := New(128)
	vec, err := e.Embed(context.Background(), "some words to embed")
	require.NoError(t, err)
	require.Len(t, vec, 128)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestEmbedCaseInsensitive(t *testing.T) {
	e := New(256)
	ctx := context.Background()

	a, err := e.Embed(ctx, "Refund Policy")
	require.NoError(t, err)
	b, err := e.Embed(ctx, "refund policy")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEmbedBatchMatchesEmbed(t *testing.T) {
	e := New(256)
	ctx := context.Background()

	texts := []string{"first text", "second text"}
	batch, err := e.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, 2)

	for i, text := range texts {
		single, err := e.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestSimilarTextsScoreHigher(t *testing.T) {
	e := New(256)
	ctx := context.Background()

	query, err := e.Embed(ctx, "reset my password")
	require.NoError(t, err)
	near, err := e.Embed(ctx, "how to reset a password")
	require.NoError(t, err)
	far, err := e.Embed(ctx, "quarterly revenue projections")
	require.NoError(t, err)

	assert.Greater(t, dot(query, near), dot(query, far))
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func TestNewDefaultsDimension(t *testing.T) {
	e := New(0)
	assert.Equal(t, 256, e.Dimension())
}
