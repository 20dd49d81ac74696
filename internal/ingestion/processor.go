// Package ingestion runs the document write path: extract text, split it
// into chunks, embed them, and index the result. Processing happens in
// the background; clients poll the status store for progress.
package ingestion

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/chunker"
	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/embedding"
	"github.com/askdesk/backend/internal/extract"
	"github.com/askdesk/backend/internal/metrics"
	"github.com/askdesk/backend/internal/status"
	"github.com/askdesk/backend/internal/storage/models"
	"github.com/askdesk/backend/internal/vectorindex"
)

const (
	ContentTypeText     = "text/plain"
	ContentTypeHTML     = "text/html"
	ContentTypeSegments = "application/x-transcript"
)

// Chunking strategies for text and HTML documents. Transcript segments
// are always grouped by their own boundaries.
const (
	StrategyWords     = "words"
	StrategySentences = "sentences"
)

// Store is the slice of the storage layer ingestion needs.
type Store interface {
	InsertDocument(ctx context.Context, doc models.Document) error
	GetDocument(ctx context.Context, id string) (models.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
	ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error)
}

// AnswerInvalidator drops cached answers after the corpus changes.
type AnswerInvalidator interface {
	InvalidateAnswers(ctx context.Context) error
}

type Request struct {
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Category    string            `json:"category"`
	Collection  string            `json:"collection"`
	Text        string            `json:"text,omitempty"`
	Segments    []chunker.Segment `json:"segments,omitempty"`
}

type Processor struct {
	store        Store
	index        vectorindex.Index
	embedder     embedding.Embedder
	statuses     status.Store
	invalidator  AnswerInvalidator
	strategy     string
	maxWords     int
	overlapWords int
}

func NewProcessor(store Store, index vectorindex.Index, embedder embedding.Embedder, statuses status.Store, invalidator AnswerInvalidator, strategy string, maxWords, overlapWords int) (*Processor, error) {
	if maxWords <= overlapWords {
		return nil, fmt.Errorf("%w: chunk size %d must exceed overlap %d", domain.ErrInvalidInput, maxWords, overlapWords)
	}
	switch strategy {
	case "":
		strategy = StrategyWords
	case StrategyWords, StrategySentences:
	default:
		return nil, fmt.Errorf("%w: unknown chunking strategy %q", domain.ErrInvalidInput, strategy)
	}
	return &Processor{
		store:        store,
		index:        index,
		embedder:     embedder,
		statuses:     statuses,
		invalidator:  invalidator,
		strategy:     strategy,
		maxWords:     maxWords,
		overlapWords: overlapWords,
	}, nil
}

func validate(req Request) error {
	if req.Collection == "" {
		return fmt.Errorf("%w: collection is required", domain.ErrInvalidInput)
	}
	switch req.ContentType {
	case ContentTypeText, ContentTypeHTML:
		if strings.TrimSpace(req.Text) == "" {
			return fmt.Errorf("%w: text is required for %s", domain.ErrInvalidInput, req.ContentType)
		}
	case ContentTypeSegments:
		if len(req.Segments) == 0 {
			return fmt.Errorf("%w: segments are required for %s", domain.ErrInvalidInput, req.ContentType)
		}
	default:
		return fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, req.ContentType)
	}
	return nil
}

// Submit validates the request, records the document, and processes it in
// the background. It returns the new document id immediately.
func (p *Processor) Submit(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	doc := models.Document{
		ID:          uuid.NewString(),
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Category:    req.Category,
		Collection:  req.Collection,
		RawText:     req.Text,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		return "", err
	}
	if err := p.statuses.Set(ctx, doc.ID, status.StateQueued, ""); err != nil {
		return "", err
	}

	// Detached from the request context: the upload returns before
	// processing finishes.
	go p.process(context.Background(), doc, req)

	return doc.ID, nil
}

// Ingest runs the pipeline synchronously and returns the document id.
func (p *Processor) Ingest(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	doc := models.Document{
		ID:          uuid.NewString(),
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Category:    req.Category,
		Collection:  req.Collection,
		RawText:     req.Text,
		CreatedAt:   time.Now().UTC(),
	}
	if err := p.store.InsertDocument(ctx, doc); err != nil {
		return "", err
	}
	if err := p.statuses.Set(ctx, doc.ID, status.StateQueued, ""); err != nil {
		return "", err
	}
	if err := p.process(ctx, doc, req); err != nil {
		return doc.ID, err
	}
	return doc.ID, nil
}

// IngestBatch processes each request independently. When some documents
// fail, the successes stand and the error reports the failures per file.
func (p *Processor) IngestBatch(ctx context.Context, reqs []Request) ([]string, error) {
	ids := make([]string, 0, len(reqs))
	failures := make(map[string]error)
	for i, req := range reqs {
		id, err := p.Ingest(ctx, req)
		if err != nil {
			name := req.Filename
			if name == "" {
				name = fmt.Sprintf("request[%d]", i)
			}
			failures[name] = err
			continue
		}
		ids = append(ids, id)
	}
	if len(failures) > 0 {
		return ids, &domain.PartialIngestionError{Failures: failures}
	}
	return ids, nil
}

func (p *Processor) process(ctx context.Context, doc models.Document, req Request) error {
	started := time.Now()
	fail := func(err error) error {
		metrics.DocumentsIngested.WithLabelValues("error").Inc()
		if setErr := p.statuses.Set(ctx, doc.ID, status.StateError, err.Error()); setErr != nil {
			zap.L().Error("failed to record ingestion failure", zap.Error(setErr))
		}
		zap.L().Error("document ingestion failed",
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return err
	}

	if err := p.statuses.Set(ctx, doc.ID, status.StateProcessing, ""); err != nil {
		return fail(err)
	}

	chunks, err := p.split(req)
	if err != nil {
		return fail(err)
	}
	if len(chunks) == 0 {
		return fail(fmt.Errorf("%w: document produced no chunks", domain.ErrInvalidInput))
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(err)
	}

	if err := p.statuses.Set(ctx, doc.ID, status.StateIndexing, ""); err != nil {
		return fail(err)
	}

	entries := make([]vectorindex.Entry, len(chunks))
	records := make([]models.Chunk, len(chunks))
	for i, ch := range chunks {
		chunkID := fmt.Sprintf("%s-%d", doc.ID, ch.Sequence)
		entries[i] = vectorindex.Entry{
			ChunkID:   chunkID,
			Embedding: vectors[i],
			Text:      ch.Text,
			Metadata: map[string]string{
				"document_id": doc.ID,
				"category":    doc.Category,
				"start":       fmt.Sprintf("%g", ch.Start),
				"end":         fmt.Sprintf("%g", ch.End),
			},
		}
		records[i] = models.Chunk{
			ID:         chunkID,
			DocumentID: doc.ID,
			Sequence:   ch.Sequence,
			Text:       ch.Text,
			WordStart:  ch.WordStart,
			WordEnd:    ch.WordEnd,
			StartTime:  ch.Start,
			EndTime:    ch.End,
		}
	}

	if err := p.index.Upsert(ctx, doc.Collection, entries); err != nil {
		return fail(err)
	}
	if err := p.store.InsertChunks(ctx, records); err != nil {
		return fail(err)
	}
	if p.invalidator != nil {
		if err := p.invalidator.InvalidateAnswers(ctx); err != nil {
			zap.L().Warn("failed to invalidate answer cache", zap.Error(err))
		}
	}

	if err := p.statuses.Set(ctx, doc.ID, status.StateCompleted, ""); err != nil {
		return fail(err)
	}

	metrics.DocumentsIngested.WithLabelValues("success").Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))
	metrics.IngestionDuration.Observe(time.Since(started).Seconds())
	zap.L().Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("collection", doc.Collection),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", time.Since(started)))
	return nil
}

func (p *Processor) split(req Request) ([]chunker.Chunk, error) {
	switch req.ContentType {
	case ContentTypeText:
		return p.splitText(req.Text)
	case ContentTypeHTML:
		text, err := extract.FromHTML(req.Text)
		if err != nil {
			return nil, err
		}
		return p.splitText(text)
	case ContentTypeSegments:
		return chunker.SplitSegments(req.Segments, p.maxWords)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, req.ContentType)
	}
}

func (p *Processor) splitText(text string) ([]chunker.Chunk, error) {
	if p.strategy == StrategySentences {
		return chunker.SplitSentences(text, p.maxWords, p.overlapWords)
	}
	return chunker.Split(text, p.maxWords, p.overlapWords)
}

// Status reports the ingestion state of a document.
func (p *Processor) Status(ctx context.Context, documentID string) (status.Record, error) {
	return p.statuses.Get(ctx, documentID)
}

// DeleteDocument removes a document everywhere: vector index, storage,
// and the status store.
func (p *Processor) DeleteDocument(ctx context.Context, documentID string) error {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	chunks, err := p.store.ListChunksByDocument(ctx, documentID)
	if err != nil {
		return err
	}
	chunkIDs := make([]string, len(chunks))
	for i, ch := range chunks {
		chunkIDs[i] = ch.ID
	}

	if err := p.index.Delete(ctx, doc.Collection, chunkIDs); err != nil {
		return err
	}
	if err := p.store.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := p.statuses.Delete(ctx, documentID); err != nil {
		return err
	}
	if p.invalidator != nil {
		if err := p.invalidator.InvalidateAnswers(ctx); err != nil {
			zap.L().Warn("failed to invalidate answer cache", zap.Error(err))
		}
	}

	zap.L().Info("document deleted",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(chunkIDs)))
	return nil
}
