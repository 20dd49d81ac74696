package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinel errors shared across the retrieval pipeline. Infrastructure
// failures are wrapped with fmt.Errorf("...: %w", err) so callers can
// match with errors.Is.
var (
	// ErrInvalidInput indicates malformed parameters or empty required text.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates a requested document or collection does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUpstreamService indicates the embedding, rerank or synthesizer
	// backend is unavailable or returned a failure.
	ErrUpstreamService = errors.New("upstream service unavailable")
)

// DimensionMismatchError reports an embedding whose length disagrees with
// the dimension established for a collection or configured for the model.
type DimensionMismatchError struct {
	Got  int
	Want int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: got %d, want %d", e.Got, e.Want)
}

// PartialIngestionError aggregates per-document failures from a batch.
// Documents that succeeded are not listed; their ingestion completed.
type PartialIngestionError struct {
	Failures map[string]error
}

func (e *PartialIngestionError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return fmt.Sprintf("ingestion failed for %d document(s): %s", len(ids), strings.Join(parts, "; "))
}
