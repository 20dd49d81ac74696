// Package sqlite persists documents, chunks, and query history in a local
// SQLite database. Chunks cascade-delete with their document.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/askdesk/backend/internal/domain"
	"github.com/askdesk/backend/internal/storage/models"
)

type Client struct {
	db *sql.DB
}

func New(path string) (*Client, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY
	// under concurrent ingestion.
	db.SetMaxOpenConns(1)

	c := &Client{db: db}
	if err := c.initSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("SQLite storage ready", zap.String("path", path))
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		filename TEXT NOT NULL,
		content_type TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		collection TEXT NOT NULL,
		raw_text TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		sequence INTEGER NOT NULL,
		text TEXT NOT NULL,
		word_start INTEGER NOT NULL DEFAULT 0,
		word_end INTEGER NOT NULL DEFAULT 0,
		start_time REAL NOT NULL DEFAULT 0,
		end_time REAL NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		category TEXT NOT NULL,
		confidence REAL NOT NULL,
		auto_resolved INTEGER NOT NULL,
		result_count INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_history_created ON query_history(created_at);
	`
	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (c *Client) InsertDocument(ctx context.Context, doc models.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO documents (id, filename, content_type, category, collection, raw_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.ContentType, doc.Category, doc.Collection, doc.RawText, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

func (c *Client) GetDocument(ctx context.Context, id string) (models.Document, error) {
	var doc models.Document
	err := c.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, category, collection, raw_text, created_at
		 FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.Category, &doc.Collection, &doc.RawText, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Document{}, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

func (c *Client) ListDocuments(ctx context.Context, collection string) ([]models.Document, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, filename, content_type, category, collection, raw_text, created_at
		 FROM documents WHERE collection = ? ORDER BY created_at`, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.ContentType, &doc.Category, &doc.Collection, &doc.RawText, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// InsertChunks writes a document's chunks in one transaction so a partial
// write never becomes visible.
func (c *Client) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, document_id, sequence, text, word_start, word_end, start_time, end_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, ch := range chunks {
		createdAt := ch.CreatedAt
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.DocumentID, ch.Sequence, ch.Text, ch.WordStart, ch.WordEnd, ch.StartTime, ch.EndTime, createdAt,
		); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

func (c *Client) ListChunksByDocument(ctx context.Context, documentID string) ([]models.Chunk, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, document_id, sequence, text, word_start, word_end, start_time, end_time, created_at
		 FROM chunks WHERE document_id = ? ORDER BY sequence`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// ChunksByCollection returns every chunk whose document belongs to the
// collection, in document insertion then sequence order. The sparse
// ranker builds its index from this set.
func (c *Client) ChunksByCollection(ctx context.Context, collection string) ([]models.Chunk, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT ch.id, ch.document_id, ch.sequence, ch.text, ch.word_start, ch.word_end, ch.start_time, ch.end_time, ch.created_at
		 FROM chunks ch
		 JOIN documents d ON d.id = ch.document_id
		 WHERE d.collection = ?
		 ORDER BY d.created_at, ch.sequence`, collection,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list collection chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]models.Chunk, error) {
	chunks := make([]models.Chunk, 0)
	for rows.Next() {
		var ch models.Chunk
		if err := rows.Scan(&ch.ID, &ch.DocumentID, &ch.Sequence, &ch.Text, &ch.WordStart, &ch.WordEnd, &ch.StartTime, &ch.EndTime, &ch.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		chunks = append(chunks, ch)
	}
	return chunks, rows.Err()
}

func (c *Client) InsertQueryRecord(ctx context.Context, rec models.QueryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO query_history (id, query, answer, category, confidence, auto_resolved, result_count, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Query, rec.Answer, rec.Category, rec.Confidence, rec.AutoResolved, rec.ResultCount, rec.LatencyMS, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}
	return nil
}

func (c *Client) ListQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, query, answer, category, confidence, auto_resolved, result_count, latency_ms, created_at
		 FROM query_history ORDER BY created_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.QueryRecord, 0)
	for rows.Next() {
		var rec models.QueryRecord
		if err := rows.Scan(&rec.ID, &rec.Query, &rec.Answer, &rec.Category, &rec.Confidence, &rec.AutoResolved, &rec.ResultCount, &rec.LatencyMS, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan query record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
