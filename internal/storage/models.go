package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Embedding is one stored content chunk with its vector.
//
// EmbeddingID is globally unique; by convention metadata-derived chunks use
// "{dataset_id}#{content_type}". DatasetID groups all chunks belonging to one
// dataset and is covered by a secondary index. Model records which embedding
// model produced the vector; vectors from different models are never
// comparable.
type Embedding struct {
	EmbeddingID string
	DatasetID   string
	ContentType string
	Content     string
	Vector      []float32
	Model       string
	CreatedAt   time.Time
	Metadata    string // JSON object stored as text
}

// Job is one queued unit of background work (bulk dataset indexing).
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
