// Package status tracks the lifecycle of background document ingestion
// so clients can poll for progress.
package status

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/askdesk/backend/internal/domain"
)

type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateIndexing   State = "indexing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

type Record struct {
	DocumentID string    `json:"document_id"`
	State      State     `json:"state"`
	Reason     string    `json:"reason,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type Store interface {
	Get(ctx context.Context, documentID string) (Record, error)
	Set(ctx context.Context, documentID string, state State, reason string) error
	List(ctx context.Context) ([]Record, error)
	Delete(ctx context.Context, documentID string) error
}

// MemoryStore is the default Store, used when Redis is not configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Get(_ context.Context, documentID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[documentID]
	if !ok {
		return Record{}, fmt.Errorf("status for document %s: %w", documentID, domain.ErrNotFound)
	}
	return rec, nil
}

func (s *MemoryStore) Set(_ context.Context, documentID string, state State, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[documentID] = Record{
		DocumentID: documentID,
		State:      state,
		Reason:     reason,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) List(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		records = append(records, rec)
	}
	return records, nil
}

func (s *MemoryStore) Delete(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, documentID)
	return nil
}
