package storage

import (
	"fmt"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testEmbedding(id, datasetID string) Embedding {
	return Embedding{
		EmbeddingID: id,
		DatasetID:   datasetID,
		ContentType: "metadata",
		Content:     "Title: Roman Coins\n\nDescription: A hoard of bronze coins",
		Vector:      []float32{0.1, 0.2, 0.3, 0.4},
		Model:       "nomic-embed-text",
		CreatedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Metadata:    `{"title":"Roman Coins"}`,
	}
}

func TestPutAndGetByDataset(t *testing.T) {
	s := openTestStore(t)

	e := testEmbedding("ds-1#metadata", "ds-1")
	if err := s.PutEmbedding(e); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	got, err := s.GetByDataset("ds-1", 100)
	if err != nil {
		t.Fatalf("GetByDataset: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records, want 1", len(got))
	}
	r := got[0]
	if r.EmbeddingID != e.EmbeddingID {
		t.Errorf("EmbeddingID = %q, want %q", r.EmbeddingID, e.EmbeddingID)
	}
	if r.Content != e.Content {
		t.Errorf("Content = %q, want %q", r.Content, e.Content)
	}
	if r.Model != e.Model {
		t.Errorf("Model = %q, want %q", r.Model, e.Model)
	}
	if len(r.Vector) != 4 || r.Vector[2] != 0.3 {
		t.Errorf("Vector = %v, want %v", r.Vector, e.Vector)
	}
	if !r.CreatedAt.Equal(e.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", r.CreatedAt, e.CreatedAt)
	}
}

func TestPutUpsertsAndPreservesCreatedAt(t *testing.T) {
	s := openTestStore(t)

	first := testEmbedding("ds-1#metadata", "ds-1")
	if err := s.PutEmbedding(first); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	second := first
	second.Content = "Title: Roman Coins\n\nDescription: Updated description"
	second.Vector = []float32{0.9, 0.8, 0.7, 0.6}
	second.CreatedAt = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	if err := s.PutEmbedding(second); err != nil {
		t.Fatalf("PutEmbedding (upsert): %v", err)
	}

	got, err := s.GetByDataset("ds-1", 100)
	if err != nil {
		t.Fatalf("GetByDataset: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d records after upsert, want 1", len(got))
	}
	if got[0].Content != second.Content {
		t.Errorf("Content not updated: %q", got[0].Content)
	}
	if got[0].Vector[0] != 0.9 {
		t.Errorf("Vector not updated: %v", got[0].Vector)
	}
	if !got[0].CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want original %v", got[0].CreatedAt, first.CreatedAt)
	}
}

func TestGetByDatasetScoping(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 3; i++ {
		e := testEmbedding(fmt.Sprintf("ds-1#chunk-%d", i), "ds-1")
		if err := s.PutEmbedding(e); err != nil {
			t.Fatalf("PutEmbedding: %v", err)
		}
	}
	other := testEmbedding("ds-2#metadata", "ds-2")
	if err := s.PutEmbedding(other); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	got, err := s.GetByDataset("ds-1", 100)
	if err != nil {
		t.Fatalf("GetByDataset: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d records for ds-1, want 3", len(got))
	}

	limited, err := s.GetByDataset("ds-1", 2)
	if err != nil {
		t.Fatalf("GetByDataset (limit): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("got %d records with limit 2, want 2", len(limited))
	}

	empty, err := s.GetByDataset("ds-3", 100)
	if err != nil {
		t.Fatalf("GetByDataset (missing): %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("got %d records for unknown dataset, want 0", len(empty))
	}
}

func TestScanAllBounded(t *testing.T) {
	s := openTestStore(t)

	for i := 0; i < 5; i++ {
		e := testEmbedding(fmt.Sprintf("ds-%d#metadata", i), fmt.Sprintf("ds-%d", i))
		if err := s.PutEmbedding(e); err != nil {
			t.Fatalf("PutEmbedding: %v", err)
		}
	}

	got, err := s.ScanAll(3)
	if err != nil {
		t.Fatalf("ScanAll: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("got %d records with limit 3, want 3", len(got))
	}
}

func TestDeleteEmbedding(t *testing.T) {
	s := openTestStore(t)

	e := testEmbedding("ds-1#metadata", "ds-1")
	if err := s.PutEmbedding(e); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	// Wrong created_at must not match the composite key.
	if err := s.DeleteEmbedding(e.EmbeddingID, e.CreatedAt.Add(time.Hour)); err != nil {
		t.Fatalf("DeleteEmbedding (wrong timestamp): %v", err)
	}
	if n, _ := s.CountEmbeddings(); n != 1 {
		t.Fatalf("record deleted despite timestamp mismatch")
	}

	if err := s.DeleteEmbedding(e.EmbeddingID, e.CreatedAt); err != nil {
		t.Fatalf("DeleteEmbedding: %v", err)
	}
	if n, _ := s.CountEmbeddings(); n != 0 {
		t.Fatalf("record not deleted")
	}

	// Idempotent: deleting again is not an error.
	if err := s.DeleteEmbedding(e.EmbeddingID, e.CreatedAt); err != nil {
		t.Errorf("DeleteEmbedding (already gone): %v", err)
	}
}

func TestEmptyMetadataDefaultsToObject(t *testing.T) {
	s := openTestStore(t)

	e := testEmbedding("ds-1#abstract", "ds-1")
	e.Metadata = ""
	if err := s.PutEmbedding(e); err != nil {
		t.Fatalf("PutEmbedding: %v", err)
	}

	got, err := s.GetByDataset("ds-1", 10)
	if err != nil {
		t.Fatalf("GetByDataset: %v", err)
	}
	if got[0].Metadata != "{}" {
		t.Errorf("Metadata = %q, want %q", got[0].Metadata, "{}")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0, -1.5, 3.25, 1e-7, 1e7}
	decoded, err := decodeVector(encodeVector(vec))
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("got %d elements, want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("element %d = %v, want %v", i, decoded[i], vec[i])
		}
	}
}

func TestDecodeVectorCorrupted(t *testing.T) {
	if _, err := decodeVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for blob length not a multiple of 4")
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "index_dataset", PayloadJSON: `{"dataset_id":"ds-1"}`}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	claimed, err := s.ClaimNextJob([]string{"index_dataset"})
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if claimed == nil {
		t.Fatal("ClaimNextJob returned nil, want job")
	}
	if claimed.ID != "job-1" || claimed.Status != "running" {
		t.Errorf("claimed = %+v", claimed)
	}

	// A running job cannot be claimed again.
	again, err := s.ClaimNextJob([]string{"index_dataset"})
	if err != nil {
		t.Fatalf("ClaimNextJob (second): %v", err)
	}
	if again != nil {
		t.Errorf("claimed running job %q twice", again.ID)
	}

	if err := s.CompleteJob("job-1"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if n, _ := s.CountJobs("completed"); n != 1 {
		t.Errorf("completed count = %d, want 1", n)
	}
}

func TestFailJobRetriesWithBackoff(t *testing.T) {
	s := openTestStore(t)

	job := Job{ID: "job-1", Type: "index_dataset", PayloadJSON: `{}`, MaxAttempts: 2}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	if _, err := s.ClaimNextJob([]string{"index_dataset"}); err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}

	// First failure: back to pending, but run_after is in the future.
	if err := s.FailJob("job-1", "provider unavailable"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if reclaimed, _ := s.ClaimNextJob([]string{"index_dataset"}); reclaimed != nil {
		t.Errorf("job claimable before backoff elapsed")
	}
	if n, _ := s.CountJobs("pending"); n != 1 {
		t.Errorf("pending count = %d, want 1", n)
	}

	// Second failure exhausts max_attempts.
	if err := s.FailJob("job-1", "provider unavailable"); err != nil {
		t.Fatalf("FailJob (second): %v", err)
	}
	if n, _ := s.CountJobs("failed"); n != 1 {
		t.Errorf("failed count = %d, want 1", n)
	}
}

func TestCompleteJobNotFound(t *testing.T) {
	s := openTestStore(t)
	if err := s.CompleteJob("missing"); err != ErrNotFound {
		t.Errorf("CompleteJob = %v, want ErrNotFound", err)
	}
}
