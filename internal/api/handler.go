package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/scttfrdmn/aperture/internal/knowledge"
	"github.com/scttfrdmn/aperture/internal/retrieval"
	"github.com/scttfrdmn/aperture/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// DatasetIndexer abstracts synchronous indexing for the API layer.
type DatasetIndexer interface {
	Index(ctx context.Context, req knowledge.IndexRequest) (knowledge.IndexResult, error)
}

// KnowledgeQuerier abstracts querying for the API layer.
type KnowledgeQuerier interface {
	Query(ctx context.Context, req knowledge.QueryRequest) (knowledge.QueryResponse, error)
	Search(ctx context.Context, req retrieval.SearchRequest) (knowledge.SearchResponse, error)
}

// DatasetDeleter abstracts cascade deletion for the API layer.
type DatasetDeleter interface {
	DeleteDataset(ctx context.Context, datasetID string) (knowledge.DeleteResult, error)
}

type Deps struct {
	Indexer DatasetIndexer
	Querier KnowledgeQuerier
	Deleter DatasetDeleter
	Store   *storage.Store
	Token   string
}

// OperationRequest is the envelope accepted by POST /knowledge-base.
type OperationRequest struct {
	Operation  string          `json:"operation"`
	Parameters json.RawMessage `json:"parameters"`
}

// NewHandler returns the HTTP surface of the knowledge base. /health is
// unauthenticated; everything else requires the bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/knowledge-base", handleOperation(deps))
		r.Post("/datasets/{id}/index-jobs", handleEnqueueIndex(deps))
		r.Get("/stats", handleStats(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleOperation dispatches the operation envelope. Parameter decoding is
// strict only about types; unknown operation names fail validation before
// any provider or store call.
func handleOperation(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var env OperationRequest
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if len(env.Parameters) == 0 {
			env.Parameters = json.RawMessage("{}")
		}

		switch env.Operation {
		case "index_dataset":
			opIndexDataset(w, r, deps, env.Parameters)
		case "query":
			opQuery(w, r, deps, env.Parameters)
		case "semantic_search":
			opSemanticSearch(w, r, deps, env.Parameters)
		case "delete_dataset":
			opDeleteDataset(w, r, deps, env.Parameters)
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown operation: %q", env.Operation)
		}
	}
}

func opIndexDataset(w http.ResponseWriter, r *http.Request, deps Deps, params json.RawMessage) {
	var req knowledge.IndexRequest
	if err := json.Unmarshal(params, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid parameters: %v", err)
		return
	}

	result, err := deps.Indexer.Index(r.Context(), req)
	if err != nil {
		knowledgeError(w, err)
		return
	}
	writeJSON(w, result)
}

type queryParams struct {
	Query         string `json:"query"`
	TopK          int    `json:"top_k"`
	DatasetID     string `json:"dataset_id"`
	ContentType   string `json:"content_type"`
	IncludeAnswer *bool  `json:"include_answer"`
}

func opQuery(w http.ResponseWriter, r *http.Request, deps Deps, params json.RawMessage) {
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid parameters: %v", err)
		return
	}

	// include_answer defaults to true when omitted.
	includeAnswer := p.IncludeAnswer == nil || *p.IncludeAnswer

	resp, err := deps.Querier.Query(r.Context(), knowledge.QueryRequest{
		Query:         p.Query,
		TopK:          p.TopK,
		DatasetID:     p.DatasetID,
		ContentType:   p.ContentType,
		IncludeAnswer: includeAnswer,
	})
	if err != nil {
		knowledgeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func opSemanticSearch(w http.ResponseWriter, r *http.Request, deps Deps, params json.RawMessage) {
	var p queryParams
	if err := json.Unmarshal(params, &p); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid parameters: %v", err)
		return
	}

	resp, err := deps.Querier.Search(r.Context(), retrieval.SearchRequest{
		Query:       p.Query,
		TopK:        p.TopK,
		DatasetID:   p.DatasetID,
		ContentType: p.ContentType,
	})
	if err != nil {
		knowledgeError(w, err)
		return
	}
	writeJSON(w, resp)
}

func opDeleteDataset(w http.ResponseWriter, r *http.Request, deps Deps, params json.RawMessage) {
	var p struct {
		DatasetID string `json:"dataset_id"`
	}
	if err := json.Unmarshal(params, &p); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid parameters: %v", err)
		return
	}

	result, err := deps.Deleter.DeleteDataset(r.Context(), p.DatasetID)
	if err != nil {
		knowledgeError(w, err)
		return
	}
	writeJSON(w, result)
}

// handleEnqueueIndex queues a dataset for background indexing instead of
// embedding inline. The worker picks the job up and runs the same indexer.
func handleEnqueueIndex(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req knowledge.IndexRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		req.DatasetID = chi.URLParam(r, "id")

		payload, err := json.Marshal(req)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create job payload: %v", err)
			return
		}
		job := storage.Job{
			ID:          uuid.New().String(),
			Type:        "index_dataset",
			PayloadJSON: string(payload),
		}
		if err := deps.Store.EnqueueJob(job); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue job: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"job_id":     job.ID,
			"dataset_id": req.DatasetID,
			"status":     "queued",
		})
	}
}

func handleStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		embeddings, err := deps.Store.CountEmbeddings()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count embeddings: %v", err)
			return
		}

		jobs := map[string]int{}
		for _, status := range []string{"pending", "running", "completed", "failed"} {
			n, err := deps.Store.CountJobs(status)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to count jobs: %v", err)
				return
			}
			jobs[status] = n
		}

		writeJSON(w, map[string]any{
			"embeddings": embeddings,
			"jobs":       jobs,
		})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// knowledgeError maps the error taxonomy onto HTTP status codes: validation
// is the caller's fault, provider failures are an upstream gateway problem,
// store failures are transient and retryable.
func knowledgeError(w http.ResponseWriter, err error) {
	kind := knowledge.KindOf(err)
	status := http.StatusInternalServerError
	errType := "api_error"
	switch kind {
	case knowledge.KindValidation:
		status = http.StatusBadRequest
		errType = "invalid_request_error"
	case knowledge.KindProvider:
		status = http.StatusBadGateway
	case knowledge.KindStore:
		status = http.StatusServiceUnavailable
	}
	httpError(w, status, errType, "%v", err)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
