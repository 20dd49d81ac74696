package chunker

import (
	"fmt"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/extract"
)

// Chunk is one bounded window of a document's text, the atomic retrieval
// unit. Word offsets refer to the whitespace-normalized input. Start/End
// are only set for transcript chunks.
type Chunk struct {
	Text      string
	Sequence  int
	WordStart int
	WordEnd   int
	Start     float64
	End       float64
}

// Split cuts text into overlapping windows of at most maxWords words.
// Consecutive chunks share exactly overlap words, except the final chunk
// which may be shorter. Whitespace is normalized first; empty input yields
// no chunks. The same input always produces the same boundaries.
func Split(text string, maxWords, overlap int) ([]Chunk, error) {
	if maxWords <= 0 || overlap < 0 {
		return nil, fmt.Errorf("%w: maxWords=%d overlap=%d", domain.ErrInvalidInput, maxWords, overlap)
	}
	if maxWords <= overlap {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than window %d", domain.ErrInvalidInput, overlap, maxWords)
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil, nil
	}

	step := maxWords - overlap
	var chunks []Chunk
	for start := 0; start < len(words); start += step {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			Text:      strings.Join(words[start:end], " "),
			Sequence:  len(chunks),
			WordStart: start,
			WordEnd:   end,
		})
	}
	return chunks, nil
}

// SplitSentences cuts text at sentence boundaries, packing whole sentences
// into each window until the word budget is met. A chunk starts with the
// trailing sentences of its predecessor that cover up to overlap words. A
// single sentence longer than the budget still becomes its own chunk.
func SplitSentences(text string, maxWords, overlap int) ([]Chunk, error) {
	if maxWords <= overlap || overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must be smaller than window %d", domain.ErrInvalidInput, overlap, maxWords)
	}

	text = extract.Normalize(text)
	if text == "" {
		return nil, nil
	}

	doc, err := prose.NewDocument(text, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		return nil, fmt.Errorf("sentence segmentation: %w", err)
	}

	sentences := make([]string, 0)
	for _, s := range doc.Sentences() {
		if t := strings.TrimSpace(s.Text); t != "" {
			sentences = append(sentences, t)
		}
	}
	if len(sentences) == 0 {
		return nil, nil
	}

	var chunks []Chunk
	var current []string
	curWords := 0
	chunkStart := 0
	pending := false // current holds sentences not yet emitted

	flush := func() {
		chunks = append(chunks, Chunk{
			Text:      strings.Join(current, " "),
			Sequence:  len(chunks),
			WordStart: chunkStart,
			WordEnd:   chunkStart + curWords,
		})
		// Carry trailing sentences covering up to overlap words into the
		// next window, but never the whole window.
		carried := 0
		var tail []string
		for i := len(current) - 1; i > 0 && carried < overlap; i-- {
			carried += len(strings.Fields(current[i]))
			tail = append([]string{current[i]}, tail...)
		}
		chunkStart += curWords - carried
		current = tail
		curWords = carried
		pending = false
	}

	for _, sentence := range sentences {
		sw := len(strings.Fields(sentence))
		if pending && curWords+sw > maxWords {
			flush()
		}
		current = append(current, sentence)
		curWords += sw
		pending = true
		if curWords >= maxWords {
			flush()
		}
	}
	if pending {
		flush()
	}
	return chunks, nil
}
