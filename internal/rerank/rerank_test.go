package rerank

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/backend/internal/embedding/hashing"
)

type stubScorer struct {
	scores []float64
	err    error
}

func (s *stubScorer) ScorePairs(_ context.Context, _ string, candidates []string) ([]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.scores[:len(candidates)], nil
}

func TestRerankOrdersByScore(t *testing.T) {
	r := New(func() (Scorer, error) {
		return &stubScorer{scores: []float64{0.1, 0.9, 0.5}}, nil
	})

	out, err := r.Rerank(context.Background(), "q", []string{"low", "high", "mid"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, out)
}

func TestRerankTruncatesToTopK(t *testing.T) {
	r := New(func() (Scorer, error) {
		return &stubScorer{scores: []float64{0.1, 0.9, 0.5}}, nil
	})

	out, err := r.Rerank(context.Background(), "q", []string{"low", "high", "mid"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"high"}, out)
}

func TestRerankZeroTopKReturnsFullList(t *testing.T) {
	r := New(func() (Scorer, error) {
		return &stubScorer{scores: []float64{0.1, 0.9, 0.5}}, nil
	})

	out, err := r.Rerank(context.Background(), "q", []string{"low", "high", "mid"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"high", "mid", "low"}, out)

	out, err = r.Rerank(context.Background(), "q", []string{"only"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, out)
}

func TestRerankSingleCandidateSkipsScorer(t *testing.T) {
	var loads int32
	r := New(func() (Scorer, error) {
		atomic.AddInt32(&loads, 1)
		return &stubScorer{}, nil
	})

	out, err := r.Rerank(context.Background(), "q", []string{"only"}, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, out)

	out, err = r.Rerank(context.Background(), "q", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, out)

	assert.Equal(t, int32(0), atomic.LoadInt32(&loads))
}

func TestRerankLoadsScorerOnce(t *testing.T) {
	var loads int32
	r := New(func() (Scorer, error) {
		atomic.AddInt32(&loads, 1)
		return &stubScorer{scores: []float64{0.2, 0.8}}, nil
	})

	for i := 0; i < 3; i++ {
		_, err := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestRerankLoadFailureIsSticky(t *testing.T) {
	r := New(func() (Scorer, error) {
		return nil, errors.New("model unavailable")
	})

	_, err := r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	require.Error(t, err)
	_, err = r.Rerank(context.Background(), "q", []string{"a", "b"}, 2)
	require.Error(t, err)
}

func TestRerankStableOnTies(t *testing.T) {
	r := New(func() (Scorer, error) {
		return &stubScorer{scores: []float64{0.5, 0.5, 0.5}}, nil
	})

	out, err := r.Rerank(context.Background(), "q", []string{"a", "b", "c"}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, out)
}

func TestEmbeddingScorerRanksRelevantFirst(t *testing.T) {
	scorer := NewEmbeddingScorer(hashing.New(256))

	scores, err := scorer.ScorePairs(context.Background(), "reset password email",
		[]string{
			"to reset your password open the email link",
			"our office hours are nine to five",
		})
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Greater(t, scores[0], scores[1])
}
