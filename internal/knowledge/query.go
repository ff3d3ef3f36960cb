package knowledge

import (
	"context"
	"errors"
	"log/slog"

	"github.com/scttfrdmn/aperture/internal/retrieval"
	"github.com/scttfrdmn/aperture/internal/synthesis"
)

// DefaultQueryTopK is the top-K applied by Query when none is given. Plain
// Search without answer synthesis defaults higher (retrieval.DefaultTopK).
const DefaultQueryTopK = 5

// AnswerSynthesizer generates an answer from retrieved context.
// synthesis.Synthesizer implements it.
type AnswerSynthesizer interface {
	Synthesize(ctx context.Context, query string, snippets []synthesis.Snippet) (string, error)
}

// QueryRequest describes one knowledge-base query.
type QueryRequest struct {
	Query         string
	TopK          int
	DatasetID     string
	ContentType   string
	IncludeAnswer bool
}

// QueryResponse is the answer-with-citations payload. Answer is nil when
// synthesis was not requested or retrieval found nothing.
type QueryResponse struct {
	Query        string            `json:"query"`
	Results      []retrieval.Match `json:"results"`
	Answer       *string           `json:"answer"`
	TotalResults int               `json:"total_results"`
}

// SearchResponse is the plain semantic-search payload, no answer.
type SearchResponse struct {
	Results      []retrieval.Match `json:"results"`
	TotalResults int               `json:"total_results"`
}

// Querier composes the retriever with the answer synthesizer.
type Querier struct {
	retriever   *retrieval.Retriever
	synthesizer AnswerSynthesizer
	defaultTopK int
	logger      *slog.Logger
}

// NewQuerier creates a Querier. defaultTopK applies to Query requests that
// do not set one; values <= 0 fall back to DefaultQueryTopK.
func NewQuerier(retriever *retrieval.Retriever, synthesizer AnswerSynthesizer, defaultTopK int, logger *slog.Logger) *Querier {
	if defaultTopK <= 0 {
		defaultTopK = DefaultQueryTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Querier{retriever: retriever, synthesizer: synthesizer, defaultTopK: defaultTopK, logger: logger}
}

// Query runs a semantic search and, when requested and the search found
// anything, synthesizes an answer from the retrieved context. An empty
// result set never triggers synthesis: no context means no answer.
func (q *Querier) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	resp := QueryResponse{Query: req.Query, Results: []retrieval.Match{}}
	if req.Query == "" {
		return resp, Validationf("query is required")
	}

	topK := req.TopK
	if topK <= 0 {
		topK = q.defaultTopK
	}

	matches, err := q.retriever.Search(ctx, retrieval.SearchRequest{
		Query:       req.Query,
		TopK:        topK,
		DatasetID:   req.DatasetID,
		ContentType: req.ContentType,
	})
	if err != nil {
		return resp, classifySearchErr(err)
	}

	resp.Results = matches
	resp.TotalResults = len(matches)

	if req.IncludeAnswer && len(matches) > 0 {
		snippets := make([]synthesis.Snippet, len(matches))
		for i, m := range matches {
			snippets[i] = synthesis.Snippet{DatasetID: m.DatasetID, Content: m.Content}
		}
		answer, err := q.synthesizer.Synthesize(ctx, req.Query, snippets)
		if err != nil {
			return resp, ProviderErr("generating answer", err)
		}
		resp.Answer = &answer
		q.logger.Debug("synthesized answer", "query", req.Query, "context_chunks", len(snippets))
	}

	return resp, nil
}

// Search runs a plain semantic search with no answer synthesis.
func (q *Querier) Search(ctx context.Context, req retrieval.SearchRequest) (SearchResponse, error) {
	if req.Query == "" {
		return SearchResponse{Results: []retrieval.Match{}}, Validationf("query is required")
	}
	matches, err := q.retriever.Search(ctx, req)
	if err != nil {
		return SearchResponse{Results: []retrieval.Match{}}, classifySearchErr(err)
	}
	return SearchResponse{Results: matches, TotalResults: len(matches)}, nil
}

// classifySearchErr maps retriever failures onto the error taxonomy.
// Incomparable vectors are data problems the caller must resolve, store
// reads are retryable, and everything else came from the provider.
func classifySearchErr(err error) error {
	switch {
	case errors.Is(err, retrieval.ErrDimensionMismatch):
		return newError(KindValidation, "stored vectors have mismatched dimensions", err)
	case errors.Is(err, retrieval.ErrModelMismatch):
		return newError(KindValidation, "stored vectors were produced by a different model", err)
	case errors.Is(err, retrieval.ErrCandidateLoad):
		return StoreErr("loading candidate records", err)
	default:
		return ProviderErr("embedding query", err)
	}
}
