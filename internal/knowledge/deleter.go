package knowledge

import (
	"context"
	"log/slog"
	"time"

	"github.com/scttfrdmn/aperture/internal/storage"
)

// deleteScanLimit bounds one load-and-delete pass.
const deleteScanLimit = 1000

// RecordRemover loads and removes embedding records. storage.Store
// implements it.
type RecordRemover interface {
	GetByDataset(datasetID string, limit int) ([]storage.Embedding, error)
	DeleteEmbedding(embeddingID string, createdAt time.Time) error
}

// DeleteResult reports a cascade delete. DeletedCount counts records removed
// before any failure.
type DeleteResult struct {
	Success      bool   `json:"success"`
	DatasetID    string `json:"dataset_id"`
	DeletedCount int    `json:"deleted_count"`
}

// Deleter removes every embedding record belonging to a dataset.
type Deleter struct {
	store  RecordRemover
	logger *slog.Logger
}

func NewDeleter(store RecordRemover, logger *slog.Logger) *Deleter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Deleter{store: store, logger: logger}
}

// DeleteDataset loads the dataset's records and deletes each by its
// composite key. A dataset with no records deletes zero rows and still
// succeeds. Records are deleted one by one with no transaction, so a
// failure mid-way leaves the remainder in place; the count reports how far
// it got.
func (d *Deleter) DeleteDataset(ctx context.Context, datasetID string) (DeleteResult, error) {
	result := DeleteResult{DatasetID: datasetID}
	if datasetID == "" {
		return result, Validationf("dataset_id is required")
	}

	records, err := d.store.GetByDataset(datasetID, deleteScanLimit)
	if err != nil {
		return result, StoreErr("loading records for "+datasetID, err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return result, InternalErr("delete interrupted", err)
		}
		if err := d.store.DeleteEmbedding(rec.EmbeddingID, rec.CreatedAt); err != nil {
			return result, StoreErr("deleting "+rec.EmbeddingID, err)
		}
		result.DeletedCount++
	}

	result.Success = true
	d.logger.Info("deleted dataset embeddings", "dataset_id", datasetID, "deleted_count", result.DeletedCount)
	return result, nil
}
