package chunker

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdesk/backend/internal/domain"
)

func sampleWords(n int) string {
	words := make([]string, n)
	for i := range words {
		words[i] = fmt.Sprintf("word%d", i)
	}
	return strings.Join(words, " ")
}

func TestSplitWindowAndOverlap(t *testing.T) {
	chunks, err := Split(sampleWords(250), 100, 20)
	require.NoError(t, err)
	require.Len(t, chunks, 4)

	for i, c := range chunks {
		assert.Equal(t, i, c.Sequence)
		assert.LessOrEqual(t, len(strings.Fields(c.Text)), 100)
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
	}

	// Consecutive chunks share exactly 20 words; the final chunk may be
	// shorter than the overlap and is then contained in its predecessor.
	for i := 0; i < len(chunks)-1; i++ {
		cur := strings.Fields(chunks[i].Text)
		next := strings.Fields(chunks[i+1].Text)
		shared := 20
		if len(next) < shared {
			shared = len(next)
		}
		assert.Equal(t, cur[len(cur)-shared:], next[:shared], "chunks %d and %d", i, i+1)
	}
}

func TestSplitCoversAllWords(t *testing.T) {
	text := sampleWords(137)
	chunks, err := Split(text, 40, 10)
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, c := range chunks {
		for _, w := range strings.Fields(c.Text) {
			seen[w] = true
		}
	}
	for _, w := range strings.Fields(text) {
		assert.True(t, seen[w], "word %s dropped", w)
	}

	// Word spans are monotonically increasing and the last span ends at
	// the final word.
	for i := 1; i < len(chunks); i++ {
		assert.Greater(t, chunks[i].WordStart, chunks[i-1].WordStart)
	}
	assert.Equal(t, 137, chunks[len(chunks)-1].WordEnd)
}

func TestSplitDeterministic(t *testing.T) {
	text := sampleWords(321)
	a, err := Split(text, 50, 5)
	require.NoError(t, err)
	b, err := Split(text, 50, 5)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSplitNormalizesWhitespace(t *testing.T) {
	chunks, err := Split("alpha\t\tbeta\n\n  gamma", 10, 2)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "alpha beta gamma", chunks[0].Text)
}

func TestSplitRejectsDegenerateOverlap(t *testing.T) {
	_, err := Split("some text here", 10, 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))

	_, err = Split("some text here", 10, 15)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestSplitEmptyInput(t *testing.T) {
	chunks, err := Split("   \n\t ", 100, 20)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestSplitShortInputSingleChunk(t *testing.T) {
	chunks, err := Split("just a few words", 100, 20)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just a few words", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Sequence)
}

func TestSplitSegmentsTimeSpans(t *testing.T) {
	segments := []Segment{
		{Text: sampleWords(40), Start: 0.0, End: 4.5},
		{Text: sampleWords(40), Start: 4.5, End: 9.0},
		{Text: sampleWords(40), Start: 9.0, End: 13.5},
		{Text: sampleWords(10), Start: 13.5, End: 15.0},
	}

	chunks, err := SplitSegments(segments, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	// First chunk merges three segments and spans their full time range.
	assert.Equal(t, 0.0, chunks[0].Start)
	assert.Equal(t, 13.5, chunks[0].End)
	assert.Equal(t, 120, chunks[0].WordEnd)

	// The trailing partial chunk is flushed.
	assert.Equal(t, 13.5, chunks[1].Start)
	assert.Equal(t, 15.0, chunks[1].End)
}

func TestSplitSegmentsOversizedFirstSegment(t *testing.T) {
	segments := []Segment{
		{Text: sampleWords(250), Start: 1.0, End: 30.0},
	}

	chunks, err := SplitSegments(segments, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, 250, len(strings.Fields(chunks[0].Text)))
	assert.Equal(t, 1.0, chunks[0].Start)
	assert.Equal(t, 30.0, chunks[0].End)
}

func TestSplitSegmentsSkipsEmptySegments(t *testing.T) {
	segments := []Segment{
		{Text: "  ", Start: 0, End: 1},
		{Text: "hello there", Start: 1, End: 2},
	}

	chunks, err := SplitSegments(segments, 100)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello there", chunks[0].Text)
	assert.Equal(t, 1.0, chunks[0].Start)
}

func TestSplitSentencesRespectsBudget(t *testing.T) {
	text := "The parcel arrived damaged. The box was crushed on one side. " +
		"I contacted the carrier twice. Nobody answered my calls. " +
		"I would like a replacement shipped as soon as possible."

	chunks, err := SplitSentences(text, 12, 4)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c.Text))
		// Sentences are never split mid-way.
		assert.True(t, strings.HasSuffix(c.Text, ".") || strings.HasSuffix(c.Text, "?"))
	}

	again, err := SplitSentences(text, 12, 4)
	require.NoError(t, err)
	assert.Equal(t, chunks, again)
}
