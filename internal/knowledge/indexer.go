// Package knowledge implements the knowledge-base operations: indexing
// dataset metadata into embedding records, querying them with optional
// answer synthesis, and cascading dataset deletion.
package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/scttfrdmn/aperture/internal/retrieval"
	"github.com/scttfrdmn/aperture/internal/storage"
)

// Content types produced by the indexer. ContentType is an open string so
// callers may introduce their own chunk kinds; these are the built-in ones.
const (
	ContentTypeMetadata = "metadata"
	ContentTypeAbstract = "abstract"
	ContentTypeKeywords = "keywords"
)

// RecordWriter persists embedding records. storage.Store implements it.
type RecordWriter interface {
	PutEmbedding(rec storage.Embedding) error
}

// IndexRequest carries the descriptive fields of one dataset.
type IndexRequest struct {
	DatasetID   string   `json:"dataset_id"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Abstract    string   `json:"abstract,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Subjects    []string `json:"subjects,omitempty"`
}

// ChunkResult reports the outcome of one stored content chunk.
type ChunkResult struct {
	Success     bool   `json:"success"`
	EmbeddingID string `json:"embedding_id"`
}

// IndexResult is the outcome of an index operation. EmbeddingsCreated counts
// chunks written before any failure, so partial progress is always reported.
type IndexResult struct {
	Success           bool          `json:"success"`
	DatasetID         string        `json:"dataset_id"`
	EmbeddingsCreated int           `json:"embeddings_created"`
	Results           []ChunkResult `json:"results"`
}

// Indexer decomposes a dataset's descriptive fields into content chunks,
// embeds each, and writes them through the record store. Re-indexing the
// same dataset overwrites by embedding id rather than duplicating.
type Indexer struct {
	embedder *retrieval.Embedder
	store    RecordWriter
	logger   *slog.Logger
}

func NewIndexer(embedder *retrieval.Embedder, store RecordWriter, logger *slog.Logger) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: embedder, store: store, logger: logger}
}

type chunk struct {
	contentType string
	content     string
	metadata    any
}

// Index embeds and stores up to three chunks for the dataset. Each chunk is
// independent: a failure aborts that chunk and the remainder, but chunks
// already written stay written and are counted in the returned result.
func (ix *Indexer) Index(ctx context.Context, req IndexRequest) (IndexResult, error) {
	result := IndexResult{DatasetID: req.DatasetID, Results: []ChunkResult{}}
	if req.DatasetID == "" {
		return result, Validationf("dataset_id is required")
	}

	var chunks []chunk
	if req.Title != "" && req.Description != "" {
		chunks = append(chunks, chunk{
			contentType: ContentTypeMetadata,
			content:     fmt.Sprintf("Title: %s\n\nDescription: %s", req.Title, req.Description),
			metadata:    map[string]any{"title": req.Title, "has_description": true},
		})
	}
	if req.Abstract != "" {
		chunks = append(chunks, chunk{
			contentType: ContentTypeAbstract,
			content:     req.Abstract,
			metadata:    map[string]any{"title": req.Title},
		})
	}
	if len(req.Keywords) > 0 || len(req.Subjects) > 0 {
		chunks = append(chunks, chunk{
			contentType: ContentTypeKeywords,
			content: fmt.Sprintf("Keywords: %s\nSubjects: %s",
				strings.Join(req.Keywords, ", "), strings.Join(req.Subjects, ", ")),
			metadata: map[string]any{"title": req.Title},
		})
	}

	for _, c := range chunks {
		embeddingID := req.DatasetID + "#" + c.contentType
		if err := ix.indexChunk(ctx, embeddingID, req.DatasetID, c); err != nil {
			return result, err
		}
		result.Results = append(result.Results, ChunkResult{Success: true, EmbeddingID: embeddingID})
		result.EmbeddingsCreated++
		ix.logger.Debug("indexed chunk",
			"dataset_id", req.DatasetID,
			"embedding_id", embeddingID,
			"content_type", c.contentType)
	}

	result.Success = true
	return result, nil
}

func (ix *Indexer) indexChunk(ctx context.Context, embeddingID, datasetID string, c chunk) error {
	vec, err := ix.embedder.Embed(ctx, c.content)
	if err != nil {
		return ProviderErr("embedding "+embeddingID, err)
	}

	metadata, err := json.Marshal(c.metadata)
	if err != nil {
		return InternalErr("encoding metadata for "+embeddingID, err)
	}

	rec := storage.Embedding{
		EmbeddingID: embeddingID,
		DatasetID:   datasetID,
		ContentType: c.contentType,
		Content:     c.content,
		Vector:      vec,
		Model:       ix.embedder.Model(),
		CreatedAt:   time.Now().UTC(),
		Metadata:    string(metadata),
	}
	if err := ix.store.PutEmbedding(rec); err != nil {
		return StoreErr("storing "+embeddingID, err)
	}
	return nil
}
