package vectorindex

import "context"

// Entry is one indexed chunk: its id, dense vector, source text and
// structured metadata (document_id, category, time range).
type Entry struct {
	ChunkID   string
	Embedding []float32
	Text      string
	Metadata  map[string]string
}

// SearchResult is a ranked hit from a similarity query.
type SearchResult struct {
	ChunkID    string
	Text       string
	Metadata   map[string]string
	Similarity float32
}

// Filter restricts candidates to entries whose metadata value for each key
// is one of the allowed values. The filter is applied before ranking, so
// top-k always returns the best qualifying matches.
type Filter map[string][]string

// Matches reports whether metadata satisfies every filter key.
func (f Filter) Matches(metadata map[string]string) bool {
	for key, allowed := range f {
		value, ok := metadata[key]
		if !ok {
			return false
		}
		found := false
		for _, a := range allowed {
			if a == value {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Index is a per-collection vector store. Collections are created on first
// write and establish their dimension from it. Querying a collection that
// does not exist returns an empty result set, not an error; mismatched
// embedding dimensions fail with domain.DimensionMismatchError. Each
// Upsert and Delete call is atomic with respect to its own batch.
type Index interface {
	Upsert(ctx context.Context, collection string, entries []Entry) error
	Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]SearchResult, error)
	Delete(ctx context.Context, collection string, chunkIDs []string) error
	Exists(ctx context.Context, collection string) (bool, error)
	Drop(ctx context.Context, collection string) error
}
