package chunker

import (
	"fmt"
	"strings"

	"github.com/askdesk/backend/internal/domain"
)

// Segment is one time-coded piece of a transcript as delivered by the
// transcription collaborator.
type Segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// SplitSegments accumulates transcript segments until the word budget is
// met, then flushes a chunk spanning the min start and max end time of the
// segments merged into it. A trailing partial chunk is flushed at the end.
// A first segment that alone exceeds the budget still becomes its own
// chunk rather than being dropped.
func SplitSegments(segments []Segment, maxWords int) ([]Chunk, error) {
	if maxWords <= 0 {
		return nil, fmt.Errorf("%w: maxWords=%d", domain.ErrInvalidInput, maxWords)
	}

	var chunks []Chunk
	var words []string
	var start, end float64
	wordOffset := 0

	flush := func() {
		if len(words) == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			Text:      strings.Join(words, " "),
			Sequence:  len(chunks),
			WordStart: wordOffset,
			WordEnd:   wordOffset + len(words),
			Start:     start,
			End:       end,
		})
		wordOffset += len(words)
		words = nil
	}

	for _, seg := range segments {
		sw := strings.Fields(seg.Text)
		if len(sw) == 0 {
			continue
		}
		if len(words) == 0 {
			start = seg.Start
			end = seg.End
		} else {
			if seg.Start < start {
				start = seg.Start
			}
			if seg.End > end {
				end = seg.End
			}
		}
		words = append(words, sw...)

		if len(words) >= maxWords {
			flush()
		}
	}
	flush()

	return chunks, nil
}
