// Package models holds the persisted record types shared by the storage
// layer and the pipeline packages.
package models

import "time"

type Document struct {
	ID          string    `json:"id" db:"id"`
	Filename    string    `json:"filename" db:"filename"`
	ContentType string    `json:"content_type" db:"content_type"`
	Category    string    `json:"category" db:"category"`
	Collection  string    `json:"collection" db:"collection"`
	RawText     string    `json:"-" db:"raw_text"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Sequence   int       `json:"sequence" db:"sequence"`
	Text       string    `json:"text" db:"text"`
	WordStart  int       `json:"word_start" db:"word_start"`
	WordEnd    int       `json:"word_end" db:"word_end"`
	StartTime  float64   `json:"start_time,omitempty" db:"start_time"`
	EndTime    float64   `json:"end_time,omitempty" db:"end_time"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type QueryRecord struct {
	ID           string    `json:"id" db:"id"`
	Query        string    `json:"query" db:"query"`
	Answer       string    `json:"answer" db:"answer"`
	Category     string    `json:"category" db:"category"`
	Confidence   float64   `json:"confidence" db:"confidence"`
	AutoResolved bool      `json:"auto_resolved" db:"auto_resolved"`
	ResultCount  int       `json:"result_count" db:"result_count"`
	LatencyMS    int64     `json:"latency_ms" db:"latency_ms"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
