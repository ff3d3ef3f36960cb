package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scttfrdmn/aperture/internal/storage"
)

// fakeSource serves candidates from memory and records which path was used.
type fakeSource struct {
	records       []storage.Embedding
	byDatasetCall string
	scanAllCalled bool
	err           error
}

func (f *fakeSource) GetByDataset(datasetID string, limit int) ([]storage.Embedding, error) {
	f.byDatasetCall = datasetID
	if f.err != nil {
		return nil, f.err
	}
	var out []storage.Embedding
	for _, r := range f.records {
		if r.DatasetID == datasetID {
			out = append(out, r)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeSource) ScanAll(limit int) ([]storage.Embedding, error) {
	f.scanAllCalled = true
	if f.err != nil {
		return nil, f.err
	}
	if limit > len(f.records) {
		limit = len(f.records)
	}
	return f.records[:limit], nil
}

func record(id, dataset, contentType, model string, vec []float32) storage.Embedding {
	return storage.Embedding{
		EmbeddingID: id,
		DatasetID:   dataset,
		ContentType: contentType,
		Content:     "content of " + id,
		Vector:      vec,
		Model:       model,
		CreatedAt:   time.Now().UTC(),
		Metadata:    "{}",
	}
}

func newTestRetriever(queryVec []float32, source RecordSource) *Retriever {
	stub := &stubProvider{vectors: map[string][]float32{"query": queryVec}}
	return NewRetriever(NewEmbedder(stub, "test-model"), source, 1000)
}

func TestSearchRanksBySimilarity(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{0, 1, 0}),
		record("b#metadata", "b", "metadata", "test-model", []float32{1, 0, 0}),
		record("c#metadata", "c", "metadata", "test-model", []float32{0.9, 0.1, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 3})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	wantOrder := []string{"b#metadata", "c#metadata", "a#metadata"}
	for i, want := range wantOrder {
		if matches[i].EmbeddingID != want {
			t.Errorf("rank %d: got %s, want %s", i, matches[i].EmbeddingID, want)
		}
	}
	for i := 1; i < len(matches); i++ {
		if matches[i].Similarity > matches[i-1].Similarity {
			t.Errorf("matches not sorted descending at rank %d", i)
		}
	}
}

func TestSearchTopKTruncates(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{1, 0, 0}),
		record("b#metadata", "b", "metadata", "test-model", []float32{0.5, 0.5, 0}),
		record("c#metadata", "c", "metadata", "test-model", []float32{0, 1, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 1})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].EmbeddingID != "a#metadata" {
		t.Errorf("got %s, want a#metadata", matches[0].EmbeddingID)
	}
}

func TestSearchTopKLargerThanCandidates(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{1, 0, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 50})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
}

func TestSearchDefaultTopK(t *testing.T) {
	records := make([]storage.Embedding, 25)
	for i := range records {
		records[i] = record("d#metadata", "d", "metadata", "test-model", []float32{1, 0, 0})
	}
	source := &fakeSource{records: records}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != DefaultTopK {
		t.Errorf("got %d matches, want %d", len(matches), DefaultTopK)
	}
}

func TestSearchDatasetScope(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{1, 0, 0}),
		record("b#metadata", "b", "metadata", "test-model", []float32{1, 0, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", DatasetID: "a", TopK: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if source.byDatasetCall != "a" {
		t.Errorf("expected dataset-scoped load, got %q", source.byDatasetCall)
	}
	if source.scanAllCalled {
		t.Error("ScanAll should not be called when a dataset is given")
	}
	if len(matches) != 1 || matches[0].DatasetID != "a" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestSearchContentTypeFilter(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{1, 0, 0}),
		record("a#abstract", "a", "abstract", "test-model", []float32{1, 0, 0}),
		record("a#keywords", "a", "keywords", "test-model", []float32{1, 0, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", ContentType: "abstract", TopK: 10})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].ContentType != "abstract" {
		t.Errorf("got content type %q, want abstract", matches[0].ContentType)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	r := newTestRetriever([]float32{1, 0, 0}, &fakeSource{})

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if matches == nil {
		t.Fatal("expected empty slice, got nil")
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches, want 0", len(matches))
	}
}

func TestSearchModelMismatch(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "other-model", []float32{1, 0, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	_, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 5})
	if !errors.Is(err, ErrModelMismatch) {
		t.Fatalf("expected ErrModelMismatch, got %v", err)
	}
}

func TestSearchDimensionMismatch(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{1, 0}),
	}}
	r := newTestRetriever([]float32{1, 0, 0}, source)

	_, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 5})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchZeroQueryVector(t *testing.T) {
	source := &fakeSource{records: []storage.Embedding{
		record("a#metadata", "a", "metadata", "test-model", []float32{1, 0, 0}),
	}}
	r := newTestRetriever([]float32{0, 0, 0}, source)

	matches, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 5})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1", len(matches))
	}
	if matches[0].Similarity != 0 {
		t.Errorf("zero query vector should score 0.0, got %f", matches[0].Similarity)
	}
}

func TestSearchSourceError(t *testing.T) {
	r := newTestRetriever([]float32{1, 0, 0}, &fakeSource{err: errors.New("disk gone")})

	if _, err := r.Search(context.Background(), SearchRequest{Query: "query", TopK: 5}); err == nil {
		t.Fatal("expected error when candidate load fails")
	}
}
