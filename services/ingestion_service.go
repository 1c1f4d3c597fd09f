// backend/services/ingestion_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/parcelview/propertydata/backend/config"
	"github.com/parcelview/propertydata/backend/metrics"
	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/socrata"
)

// ErrSyncInProgress is returned when a dataset already has a recent
// in_progress run; the caller should back off rather than double-sync.
var ErrSyncInProgress = errors.New("a sync for this dataset is already in progress")

// IngestOptions tunes one ingestion run.
type IngestOptions struct {
	// FullSync forces a full re-pull even when a watermark is available.
	FullSync bool
	// Limit caps the total records fetched in this run; 0 means unlimited.
	Limit int
	// FromDate overrides the stored watermark for incremental runs.
	FromDate *time.Time
	// TriggeredBy identifies the principal that started the run.
	TriggeredBy string
}

// IngestionPipeline pulls a dataset from the source in batches, transforms
// each page into keyed records and upserts them. Every run is bracketed by a
// sync_log row: started as in_progress, finalized exactly once with a
// terminal status. Bad pages are counted and skipped, never fatal.
type IngestionPipeline struct {
	registry  *Registry
	syncLogs  SyncLogStore
	records   RecordStore
	freshness FreshnessStore
	source    SourceClient
	cfg       config.SyncConfig

	now func() time.Time
}

func NewIngestionPipeline(registry *Registry, syncLogs SyncLogStore, records RecordStore, freshness FreshnessStore, source SourceClient, cfg config.SyncConfig) *IngestionPipeline {
	return &IngestionPipeline{
		registry:  registry,
		syncLogs:  syncLogs,
		records:   records,
		freshness: freshness,
		source:    source,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Ingest runs one ingestion for the dataset and returns its finalized audit
// entry. A request for an unknown dataset is itself recorded as a failed
// run; failures are data here, not just errors. The only non-nil error
// cases are a concurrent run (ErrSyncInProgress) and the audit trail
// itself being unwritable.
func (p *IngestionPipeline) Ingest(ctx context.Context, datasetID string, opts IngestOptions) (*models.SyncLogEntry, error) {
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = "anonymous"
	}

	cfg, err := p.registry.Get(datasetID)
	if err != nil {
		if errors.Is(err, ErrDatasetNotFound) {
			return p.recordRejectedRun(datasetID, opts, "unknown or unconfigured dataset")
		}
		return nil, fmt.Errorf("failed to load dataset config for %s: %w", datasetID, err)
	}

	running, err := p.syncLogs.HasFreshInProgress(datasetID, p.cfg.StaleInProgressWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to check for concurrent syncs on %s: %w", datasetID, err)
	}
	if running {
		return nil, ErrSyncInProgress
	}

	syncType, fromDate, err := p.resolveSyncWindow(cfg, opts)
	if err != nil {
		return nil, err
	}

	entry := &models.SyncLogEntry{
		DatasetID:   datasetID,
		SyncType:    syncType,
		StartTime:   p.now(),
		Status:      models.StatusInProgress,
		TriggeredBy: opts.TriggeredBy,
	}
	// A run that cannot be audited must not touch data.
	if err := p.syncLogs.StartRun(entry); err != nil {
		return nil, fmt.Errorf("failed to open sync log for %s: %w", datasetID, err)
	}

	log.Printf("Pipeline: Starting %s sync for %s (triggered by %s).\n", syncType, datasetID, opts.TriggeredBy)

	p.runBatches(ctx, cfg, entry, fromDate, opts.Limit)

	end := p.now()
	entry.EndTime = &end
	if err := p.syncLogs.FinalizeRun(entry); err != nil {
		return nil, fmt.Errorf("failed to finalize sync log %s for %s: %w", entry.ID, datasetID, err)
	}

	if entry.Succeeded() {
		p.updateFreshnessAfterRun(cfg)
	}

	metrics.SyncRunsTotal.WithLabelValues(datasetID, entry.Status).Inc()
	metrics.RecordsProcessedTotal.WithLabelValues(datasetID).Add(float64(entry.RecordsProcessed))
	metrics.RecordsFailedTotal.WithLabelValues(datasetID).Add(float64(entry.RecordsFailed))

	log.Printf("Pipeline: Finished %s sync for %s: %s, %d processed, %d added, %d updated, %d failed.\n",
		syncType, datasetID, entry.Status, entry.RecordsProcessed, entry.RecordsAdded, entry.RecordsUpdated, entry.RecordsFailed)
	return entry, nil
}

// recordRejectedRun writes a failed audit row for a request that never got
// to fetch anything, so the rejection is visible in the sync history.
func (p *IngestionPipeline) recordRejectedRun(datasetID string, opts IngestOptions, reason string) (*models.SyncLogEntry, error) {
	start := p.now()
	entry := &models.SyncLogEntry{
		DatasetID:    datasetID,
		SyncType:     models.SyncTypeFull,
		StartTime:    start,
		Status:       models.StatusInProgress,
		TriggeredBy:  opts.TriggeredBy,
		ErrorMessage: reason,
	}
	if err := p.syncLogs.StartRun(entry); err != nil {
		return nil, fmt.Errorf("failed to open sync log for %s: %w", datasetID, err)
	}
	end := p.now()
	entry.EndTime = &end
	entry.Status = models.StatusFailed
	if err := p.syncLogs.FinalizeRun(entry); err != nil {
		return nil, fmt.Errorf("failed to finalize sync log %s for %s: %w", entry.ID, datasetID, err)
	}
	metrics.SyncRunsTotal.WithLabelValues(datasetID, entry.Status).Inc()
	log.Printf("Pipeline: Rejected sync request for %s: %s.\n", datasetID, reason)
	return entry, nil
}

// resolveSyncWindow decides full vs incremental and the incremental
// watermark. Datasets with no date field only ever do full pulls.
func (p *IngestionPipeline) resolveSyncWindow(cfg *models.DatasetConfig, opts IngestOptions) (string, *time.Time, error) {
	if opts.FullSync || cfg.DateField == "" {
		return models.SyncTypeFull, nil, nil
	}
	if opts.FromDate != nil {
		return models.SyncTypeIncremental, opts.FromDate, nil
	}

	last, err := p.syncLogs.LastSuccessfulRun(cfg.DatasetID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to load last successful run for %s: %w", cfg.DatasetID, err)
	}
	if last == nil {
		// Never synced; nothing to be incremental against.
		return models.SyncTypeFull, nil, nil
	}
	if last.LastRecordDate != nil {
		return models.SyncTypeIncremental, last.LastRecordDate, nil
	}
	// Older runs that never saw a record date fall back to when they ran.
	if last.EndTime != nil {
		return models.SyncTypeIncremental, last.EndTime, nil
	}
	return models.SyncTypeFull, nil, nil
}

// runBatches pages through the source until exhaustion, the record limit,
// or the per-dataset time budget. It mutates the entry's counters and
// terminal status in place.
func (p *IngestionPipeline) runBatches(ctx context.Context, cfg *models.DatasetConfig, entry *models.SyncLogEntry, fromDate *time.Time, limit int) {
	transform := p.registry.TransformFor(cfg)
	deadline := p.now().Add(p.cfg.DatasetTimeBudget)

	var (
		offset       int
		succeededAny bool
		failedAny    bool
		maxDate      *time.Time
		errMsgs      []string
	)

	for {
		// Budget exhaustion is a normal stop, like source exhaustion; the
		// watermark lets the next run resume where this one left off.
		if !p.now().Before(deadline) {
			log.Printf("Service: Dataset %s hit its time budget; stopping after %d records.\n",
				cfg.DatasetID, entry.RecordsProcessed)
			break
		}

		pageSize := p.cfg.BatchSize
		if limit > 0 {
			remaining := limit - entry.RecordsProcessed
			if remaining <= 0 {
				break
			}
			if remaining < pageSize {
				pageSize = remaining
			}
		}

		page, err := p.fetchPage(ctx, cfg, pageSize, offset, fromDate)
		if err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("fetch at offset %d: %v", offset, err))
			failedAny = true
			break
		}
		n := page.Count()
		if n == 0 {
			break
		}
		entry.RecordsProcessed += n
		offset += n

		records, err := transform(cfg, page)
		if err != nil {
			entry.RecordsFailed += n
			errMsgs = append(errMsgs, fmt.Sprintf("transform at offset %d: %v", offset-n, err))
			failedAny = true
			if n < pageSize {
				break
			}
			continue
		}
		if dropped := n - len(records); dropped > 0 {
			entry.RecordsFailed += dropped
			failedAny = true
		}

		if len(records) > 0 {
			added, updated, err := p.records.UpsertBatch(cfg.DatasetID, records)
			if err != nil {
				entry.RecordsFailed += len(records)
				errMsgs = append(errMsgs, fmt.Sprintf("upsert at offset %d: %v", offset-n, err))
				failedAny = true
			} else {
				entry.RecordsAdded += added
				entry.RecordsUpdated += updated
				succeededAny = true
				for _, rec := range records {
					if rec.RecordDate != nil && (maxDate == nil || rec.RecordDate.After(*maxDate)) {
						d := *rec.RecordDate
						maxDate = &d
					}
				}
			}
		}

		// Short page means the source is exhausted.
		if n < pageSize {
			break
		}
	}

	switch {
	case !failedAny:
		// Zero pages is still a success: the dataset is simply current.
		entry.Status = models.StatusSuccess
	case succeededAny:
		entry.Status = models.StatusPartial
	default:
		entry.Status = models.StatusFailed
	}

	entry.LastRecordDate = maxDate
	if entry.LastRecordDate == nil {
		entry.LastRecordDate = fromDate
	}
	if len(errMsgs) > 0 {
		msg := strings.Join(errMsgs, "; ")
		if len(msg) > 2000 {
			msg = msg[:2000]
		}
		entry.ErrorMessage = msg
	}
}

func (p *IngestionPipeline) fetchPage(ctx context.Context, cfg *models.DatasetConfig, pageSize, offset int, fromDate *time.Time) (RawPage, error) {
	req := socrata.PageRequest{
		DatasetID: cfg.DatasetID,
		Limit:     pageSize,
		Offset:    offset,
		DateField: cfg.DateField,
		Since:     fromDate,
	}
	if cfg.SourceFormat == models.SourceFormatCSV {
		data, err := p.source.FetchPageCSV(ctx, req)
		if err != nil {
			return RawPage{}, err
		}
		return RawPage{CSV: data}, nil
	}
	rows, err := p.source.FetchPage(ctx, req)
	if err != nil {
		return RawPage{}, err
	}
	return RawPage{Rows: rows}, nil
}

// updateFreshnessAfterRun refreshes our side of the freshness record after a
// successful run. The remote count is whatever the last probe saw; if there
// never was a probe the record is written unverified until the scorer runs.
func (p *IngestionPipeline) updateFreshnessAfterRun(cfg *models.DatasetConfig) {
	count, err := p.records.CountByDataset(cfg.DatasetID)
	if err != nil {
		log.Printf("ERROR Pipeline: Failed to count local records for %s: %v", cfg.DatasetID, err)
		return
	}
	prior, err := p.freshness.GetFreshness(cfg.DatasetID)
	if err != nil {
		log.Printf("ERROR Pipeline: Failed to load freshness for %s: %v", cfg.DatasetID, err)
		return
	}

	var rec models.FreshnessRecord
	if prior != nil && prior.RemoteRecordCount != nil {
		rec = Score(prior, cfg, count, prior.RemoteRecordCount, p.cfg.StaleThreshold, p.now())
	} else {
		rec = models.FreshnessRecord{
			DatasetID:      cfg.DatasetID,
			OurRecordCount: count,
			Unverified:     true,
			LastChecked:    p.now(),
		}
		if prior != nil {
			rec.FreshnessScore = prior.FreshnessScore
			rec.IsStale = prior.IsStale
			rec.RecommendSync = prior.RecommendSync
		}
	}

	if err := p.freshness.SaveFreshness(&rec); err != nil {
		log.Printf("ERROR Pipeline: Failed to save freshness for %s: %v", cfg.DatasetID, err)
		return
	}
	metrics.FreshnessScore.WithLabelValues(cfg.DatasetID).Set(rec.FreshnessScore)
}
