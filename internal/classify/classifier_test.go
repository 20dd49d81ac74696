package classify

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedEmbedder maps known texts to fixed vectors so similarity outcomes
// are exact.
type fixedEmbedder struct {
	vectors map[string][]float32
	batches int32
	err     error
}

func (f *fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

func (f *fixedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	atomic.AddInt32(&f.batches, 1)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vectors[t]
	}
	return out, nil
}

func (f *fixedEmbedder) Dimension() int { return 2 }

func newEmbedder() *fixedEmbedder {
	return &fixedEmbedder{vectors: map[string][]float32{
		"Billing": {1, 0},
		"Returns": {0, 1},
	}}
}

func TestClassifyPicksNearestCategory(t *testing.T) {
	c, err := New(newEmbedder(), []string{"Billing", "Returns"}, 0.75)
	require.NoError(t, err)

	d, err := c.Classify(context.Background(), []float32{0.95, 0.05})
	require.NoError(t, err)
	assert.Equal(t, "Billing", d.Category)
	assert.True(t, d.AutoResolved)
}

func TestClassifyThresholdBoundary(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"Only": {1, 0},
	}}
	c, err := New(emb, []string{"Only"}, 0.75)
	require.NoError(t, err)

	// cosine([3,4],[1,0]) = 0.6 < threshold, escalates.
	d, err := c.Classify(context.Background(), []float32{3, 4})
	require.NoError(t, err)
	assert.InDelta(t, 0.6, d.Confidence, 1e-9)
	assert.False(t, d.AutoResolved)

	// Exactly at the threshold auto-resolves.
	c2, err := New(emb, []string{"Only"}, 0.6)
	require.NoError(t, err)
	d, err = c2.Classify(context.Background(), []float32{3, 4})
	require.NoError(t, err)
	assert.True(t, d.AutoResolved)
}

func TestClassifyConfidenceClamped(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"Only": {-1, 0},
	}}
	c, err := New(emb, []string{"Only"}, 0.75)
	require.NoError(t, err)

	d, err := c.Classify(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, 0.0, d.Confidence)
	assert.False(t, d.AutoResolved)
}

func TestClassifyTieKeepsFirstCategory(t *testing.T) {
	emb := &fixedEmbedder{vectors: map[string][]float32{
		"First":  {1, 0},
		"Second": {1, 0},
	}}
	c, err := New(emb, []string{"First", "Second"}, 0.75)
	require.NoError(t, err)

	d, err := c.Classify(context.Background(), []float32{1, 0})
	require.NoError(t, err)
	assert.Equal(t, "First", d.Category)
}

func TestClassifyEmbedsLabelsOnce(t *testing.T) {
	emb := newEmbedder()
	c, err := New(emb, []string{"Billing", "Returns"}, 0.75)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := c.Classify(context.Background(), []float32{1, 0})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&emb.batches))
}

func TestClassifyPrepareFailureIsSticky(t *testing.T) {
	emb := &fixedEmbedder{err: errors.New("embedding service down")}
	c, err := New(emb, []string{"Billing"}, 0.75)
	require.NoError(t, err)

	_, err = c.Classify(context.Background(), []float32{1, 0})
	require.Error(t, err)

	// Even after the embedder recovers, the cached failure stands.
	emb.err = nil
	_, err = c.Classify(context.Background(), []float32{1, 0})
	require.Error(t, err)
}

func TestNewRejectsEmptyCategories(t *testing.T) {
	_, err := New(newEmbedder(), nil, 0.75)
	assert.Error(t, err)
}

func TestNewDefaultsThreshold(t *testing.T) {
	c, err := New(newEmbedder(), []string{"Billing"}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultThreshold, c.threshold)
}
