// backend/services/stores.go
package services

import (
	"context"
	"time"

	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/socrata"
)

// The service layer talks to storage and to the external source through
// these interfaces; database.* and socrata.Client satisfy them in
// production, and the tests substitute in-memory fakes.

// DatasetStore persists dataset configurations.
type DatasetStore interface {
	GetDataset(datasetID string) (*models.DatasetConfig, error)
	ListDatasets(includeInactive bool) ([]models.DatasetConfig, error)
	SaveDataset(d *models.DatasetConfig) error
	SeedBuiltIns(datasets []models.DatasetConfig) error
	DeactivateDataset(datasetID string) error
}

// FreshnessStore persists per-dataset freshness records.
type FreshnessStore interface {
	SaveFreshness(rec *models.FreshnessRecord) error
	GetFreshness(datasetID string) (*models.FreshnessRecord, error)
	ListFreshness() (map[string]models.FreshnessRecord, error)
}

// SyncLogStore is the append-only audit trail of ingestion runs.
type SyncLogStore interface {
	StartRun(entry *models.SyncLogEntry) error
	FinalizeRun(entry *models.SyncLogEntry) error
	LastSuccessfulRun(datasetID string) (*models.SyncLogEntry, error)
	HasFreshInProgress(datasetID string, window time.Duration) (bool, error)
	List(q models.LogQuery) ([]models.SyncLogEntry, int, error)
	AggregateCounts(q models.LogQuery) (byStatus, byDataset map[string]int, err error)
}

// RecordStore holds the ingested dataset records.
type RecordStore interface {
	UpsertBatch(datasetID string, records []models.SourceRecord) (added, updated int, err error)
	CountByDataset(datasetID string) (int64, error)
}

// SourceClient is the external open data source.
type SourceClient interface {
	CountRows(ctx context.Context, datasetID string) (int64, error)
	ScrapeRowCount(ctx context.Context, datasetID string) (int64, error)
	FetchPage(ctx context.Context, req socrata.PageRequest) ([]map[string]any, error)
	FetchPageCSV(ctx context.Context, req socrata.PageRequest) ([]byte, error)
}
