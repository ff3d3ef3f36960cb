package retrieval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/scttfrdmn/aperture/internal/storage"
)

// DefaultTopK is used when a search request does not specify top_k.
const DefaultTopK = 10

// ErrModelMismatch indicates a stored record was embedded by a different
// model than the one in use; its vector lives in an incomparable space.
var ErrModelMismatch = errors.New("embedding model mismatch")

// ErrCandidateLoad marks a failure to read candidate records from the store.
var ErrCandidateLoad = errors.New("candidate load failed")

// RecordSource loads candidate records for scoring. storage.Store implements it.
type RecordSource interface {
	GetByDataset(datasetID string, limit int) ([]storage.Embedding, error)
	ScanAll(limit int) ([]storage.Embedding, error)
}

// SearchRequest describes one semantic search.
type SearchRequest struct {
	Query       string
	TopK        int
	DatasetID   string // optional: scope candidates to one dataset
	ContentType string // optional: exact-match filter on content type
}

// Match is one ranked search result.
type Match struct {
	EmbeddingID string          `json:"embedding_id"`
	DatasetID   string          `json:"dataset_id"`
	ContentType string          `json:"content_type"`
	Content     string          `json:"content"`
	Metadata    json.RawMessage `json:"metadata"`
	Similarity  float32         `json:"similarity"`
}

// Retriever ranks stored embedding records against a query by cosine
// similarity. Brute-force exact search: every candidate is scored.
type Retriever struct {
	embedder  *Embedder
	source    RecordSource
	scanLimit int
}

// NewRetriever creates a Retriever. scanLimit bounds the number of candidate
// records loaded per search (both the per-dataset and the full-scan path);
// values <= 0 default to 1000.
func NewRetriever(embedder *Embedder, source RecordSource, scanLimit int) *Retriever {
	if scanLimit <= 0 {
		scanLimit = 1000
	}
	return &Retriever{embedder: embedder, source: source, scanLimit: scanLimit}
}

// Search embeds the query (exactly once, never cached) and returns the top-K
// most similar stored chunks, ordered by similarity descending. Ties keep
// their enumeration order. An empty candidate set yields an empty result,
// not an error.
func (r *Retriever) Search(ctx context.Context, req SearchRequest) ([]Match, error) {
	topK := req.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	queryVec, err := r.embedder.Embed(ctx, req.Query)
	if err != nil {
		return nil, err
	}

	var candidates []storage.Embedding
	if req.DatasetID != "" {
		candidates, err = r.source.GetByDataset(req.DatasetID, r.scanLimit)
	} else {
		candidates, err = r.source.ScanAll(r.scanLimit)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCandidateLoad, err)
	}

	if req.ContentType != "" {
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.ContentType == req.ContentType {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}

	if len(candidates) == 0 {
		return []Match{}, nil
	}

	scores, err := r.scoreAll(ctx, queryVec, candidates)
	if err != nil {
		return nil, err
	}

	// Stable sort keeps enumeration order for equal scores.
	order := make([]int, len(candidates))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return scores[order[i]] > scores[order[j]]
	})

	if topK > len(order) {
		topK = len(order)
	}
	matches := make([]Match, topK)
	for i := 0; i < topK; i++ {
		c := candidates[order[i]]
		metadata := json.RawMessage(c.Metadata)
		if len(metadata) == 0 {
			metadata = json.RawMessage("{}")
		}
		matches[i] = Match{
			EmbeddingID: c.EmbeddingID,
			DatasetID:   c.DatasetID,
			ContentType: c.ContentType,
			Content:     c.Content,
			Metadata:    metadata,
			Similarity:  scores[order[i]],
		}
	}
	return matches, nil
}

// scoreAll computes the similarity of every candidate against queryVec.
// Scoring is independent per candidate and runs across a bounded worker pool;
// results land in fixed slots so ordering is deterministic.
func (r *Retriever) scoreAll(ctx context.Context, queryVec []float32, candidates []storage.Embedding) ([]float32, error) {
	scores := make([]float32, len(candidates))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(4)

	model := r.embedder.Model()
	for i, c := range candidates {
		g.Go(func() error {
			if c.Model != "" && c.Model != model {
				return fmt.Errorf("record %s embedded by %q, current model is %q: %w",
					c.EmbeddingID, c.Model, model, ErrModelMismatch)
			}
			sim, err := CosineSimilarity(queryVec, c.Vector)
			if err != nil {
				return fmt.Errorf("scoring record %s: %w", c.EmbeddingID, err)
			}
			scores[i] = sim
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}
