// backend/services/ingestion_service_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/socrata"
)

type pipelineFixture struct {
	pipeline  *IngestionPipeline
	datasets  *fakeDatasetStore
	syncLogs  *fakeSyncLogStore
	records   *fakeRecordStore
	freshness *fakeFreshnessStore
	source    *fakeSource
}

func newPipelineFixture(t *testing.T, batchSize int, datasets ...models.DatasetConfig) *pipelineFixture {
	t.Helper()
	store := newFakeDatasetStore(datasets...)
	syncLogs := newFakeSyncLogStore()
	records := newFakeRecordStore()
	freshness := newFakeFreshnessStore()
	source := &fakeSource{}

	cfg := testSyncConfig()
	cfg.BatchSize = batchSize
	pipeline := NewIngestionPipeline(NewRegistry(store), syncLogs, records, freshness, source, cfg)
	return &pipelineFixture{
		pipeline:  pipeline,
		datasets:  store,
		syncLogs:  syncLogs,
		records:   records,
		freshness: freshness,
		source:    source,
	}
}

// sourceRows builds n JSON rows keyed id-0..id-n-1, dated one minute apart.
func sourceRows(start, n int) []map[string]any {
	rows := make([]map[string]any, 0, n)
	base := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	for i := start; i < start+n; i++ {
		rows = append(rows, map[string]any{
			"id":         fmt.Sprintf("id-%04d", i),
			"created_at": base.Add(time.Duration(i) * time.Minute).Format("2006-01-02T15:04:05"),
			"amount":     fmt.Sprintf("%d", i*10),
		})
	}
	return rows
}

func pagedSource(totalRows int) func(req socrata.PageRequest) ([]map[string]any, error) {
	return func(req socrata.PageRequest) ([]map[string]any, error) {
		if req.Offset >= totalRows {
			return nil, nil
		}
		n := req.Limit
		if req.Offset+n > totalRows {
			n = totalRows - req.Offset
		}
		return sourceRows(req.Offset, n), nil
	}
}

func TestIngestInitialFullSync(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 20, cfg)
	f.source.fetchPage = pagedSource(50)

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{TriggeredBy: "tester"})
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, models.StatusSuccess, entry.Status)
	assert.Equal(t, models.SyncTypeFull, entry.SyncType)
	assert.Equal(t, 50, entry.RecordsProcessed)
	assert.Equal(t, 50, entry.RecordsAdded)
	assert.Equal(t, 0, entry.RecordsUpdated)
	assert.Equal(t, 0, entry.RecordsFailed)
	assert.Equal(t, "tester", entry.TriggeredBy)
	require.NotNil(t, entry.EndTime)
	require.NotNil(t, entry.LastRecordDate)

	count, err := f.records.CountByDataset(cfg.DatasetID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
}

func TestIngestSecondRunIsIdempotent(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 20, cfg)
	f.source.fetchPage = pagedSource(50)

	first, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{FullSync: true})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, first.Status)

	second, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{FullSync: true})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, second.Status)
	assert.Equal(t, 50, second.RecordsProcessed)
	assert.Equal(t, 0, second.RecordsAdded)
	assert.Equal(t, 50, second.RecordsUpdated)

	count, err := f.records.CountByDataset(cfg.DatasetID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)
}

func TestIngestIncrementalUsesWatermark(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 20, cfg)
	f.source.fetchPage = pagedSource(10)

	first, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, first.Status)
	require.Equal(t, models.SyncTypeFull, first.SyncType)
	require.NotNil(t, first.LastRecordDate)

	var sawSince *time.Time
	f.source.fetchPage = func(req socrata.PageRequest) ([]map[string]any, error) {
		sawSince = req.Since
		return nil, nil
	}

	second, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.SyncTypeIncremental, second.SyncType)
	require.NotNil(t, sawSince)
	assert.True(t, sawSince.Equal(*first.LastRecordDate))
	// Nothing new: still a success, and the watermark carries forward.
	assert.Equal(t, models.StatusSuccess, second.Status)
	assert.Equal(t, 0, second.RecordsProcessed)
	require.NotNil(t, second.LastRecordDate)
	assert.True(t, second.LastRecordDate.Equal(*first.LastRecordDate))
}

func TestIngestDatasetWithoutDateFieldAlwaysFull(t *testing.T) {
	cfg := testDataset("full-only", 50)
	cfg.DateField = ""
	f := newPipelineFixture(t, 20, cfg)
	f.source.fetchPage = pagedSource(5)

	first, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, first.Status)

	second, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SyncTypeFull, second.SyncType)
}

func TestIngestUnknownDatasetRecordsFailedRun(t *testing.T) {
	f := newPipelineFixture(t, 20)

	entry, err := f.pipeline.Ingest(context.Background(), "zzzz-9999", IngestOptions{TriggeredBy: "tester"})
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, models.StatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "unknown or unconfigured dataset")
	assert.Equal(t, 0, entry.RecordsProcessed)

	// The rejection is durable in the audit trail.
	logged := f.syncLogs.entriesFor("zzzz-9999")
	require.Len(t, logged, 1)
	assert.Equal(t, models.StatusFailed, logged[0].Status)
}

func TestIngestRefusesConcurrentRun(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 20, cfg)
	require.NoError(t, f.syncLogs.StartRun(&models.SyncLogEntry{
		DatasetID: cfg.DatasetID,
		SyncType:  models.SyncTypeFull,
		StartTime: time.Now().Add(-time.Minute),
		Status:    models.StatusInProgress,
	}))

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	assert.ErrorIs(t, err, ErrSyncInProgress)
	assert.Nil(t, entry)
}

func TestIngestFetchErrorFailsRun(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 20, cfg)
	f.source.fetchPage = func(socrata.PageRequest) ([]map[string]any, error) {
		return nil, errors.New("connection reset")
	}

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, entry.Status)
	assert.Contains(t, entry.ErrorMessage, "connection reset")
	assert.Equal(t, 0, entry.RecordsProcessed)
}

func TestIngestMidRunFetchErrorIsPartial(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 10, cfg)
	f.source.fetchPage = func(req socrata.PageRequest) ([]map[string]any, error) {
		if req.Offset == 0 {
			return sourceRows(0, 10), nil
		}
		return nil, errors.New("connection reset")
	}

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPartial, entry.Status)
	assert.Equal(t, 10, entry.RecordsProcessed)
	assert.Equal(t, 10, entry.RecordsAdded)
	assert.Contains(t, entry.ErrorMessage, "connection reset")
}

func TestIngestUpsertErrorIsolatedPerBatch(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 10, cfg)
	f.source.fetchPage = pagedSource(10)
	f.records.upsertErr = errors.New("deadlock")

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusFailed, entry.Status)
	assert.Equal(t, 10, entry.RecordsProcessed)
	assert.Equal(t, 10, entry.RecordsFailed)
	assert.Equal(t, 0, entry.RecordsAdded)
}

func TestIngestUnkeyableRowsCountAsFailed(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 10, cfg)
	f.source.fetchPage = func(req socrata.PageRequest) ([]map[string]any, error) {
		if req.Offset > 0 {
			return nil, nil
		}
		rows := sourceRows(0, 5)
		// Two rows missing the primary key field.
		rows = append(rows, map[string]any{"amount": "1"}, map[string]any{"amount": "2"})
		return rows, nil
	}

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusPartial, entry.Status)
	assert.Equal(t, 7, entry.RecordsProcessed)
	assert.Equal(t, 5, entry.RecordsAdded)
	assert.Equal(t, 2, entry.RecordsFailed)
}

func TestIngestHonorsRecordLimit(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 2, cfg)
	f.source.fetchPage = pagedSource(100)

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, entry.Status)
	assert.Equal(t, 3, entry.RecordsProcessed)
	assert.Equal(t, 3, entry.RecordsAdded)
}

func TestIngestExpiredTimeBudgetStopsRun(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 10, cfg)
	f.pipeline.cfg.DatasetTimeBudget = 0
	f.source.fetchPage = pagedSource(100)

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, entry.Status)
	assert.Equal(t, 0, entry.RecordsProcessed)
	assert.Empty(t, entry.ErrorMessage)
}

func TestIngestTimeBudgetElapsingMidRunKeepsCompletedBatches(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 20, cfg)
	f.pipeline.cfg.DatasetTimeBudget = 10 * time.Minute
	f.source.fetchPage = pagedSource(100)

	// Six minutes pass on every clock read, so the budget runs out after
	// the first batch lands.
	clock := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.pipeline.now = func() time.Time {
		clock = clock.Add(6 * time.Minute)
		return clock
	}

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, models.StatusSuccess, entry.Status)
	assert.Equal(t, 20, entry.RecordsProcessed)
	assert.Equal(t, 20, entry.RecordsAdded)
	assert.Equal(t, 0, entry.RecordsFailed)
	assert.Empty(t, entry.ErrorMessage)
	require.NotNil(t, entry.LastRecordDate)
}

func TestIngestSuccessUpdatesFreshness(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 100, cfg)
	f.source.fetchPage = pagedSource(100)
	require.NoError(t, f.freshness.SaveFreshness(&models.FreshnessRecord{
		DatasetID:         cfg.DatasetID,
		OurRecordCount:    0,
		RemoteRecordCount: int64Ptr(100),
		FreshnessScore:    0,
		IsStale:           true,
		RecommendSync:     true,
		LastChecked:       time.Now().Add(-time.Hour),
	}))

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, entry.Status)

	rec, err := f.freshness.GetFreshness(cfg.DatasetID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(100), rec.OurRecordCount)
	assert.Equal(t, 1.0, rec.FreshnessScore)
	assert.False(t, rec.IsStale)
	assert.False(t, rec.Unverified)
}

func TestIngestSuccessWithoutProbeHistoryIsUnverified(t *testing.T) {
	cfg := testDataset("abcd-1234", 50)
	f := newPipelineFixture(t, 100, cfg)
	f.source.fetchPage = pagedSource(10)

	entry, err := f.pipeline.Ingest(context.Background(), cfg.DatasetID, IngestOptions{})
	require.NoError(t, err)
	require.Equal(t, models.StatusSuccess, entry.Status)

	rec, err := f.freshness.GetFreshness(cfg.DatasetID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, int64(10), rec.OurRecordCount)
	assert.True(t, rec.Unverified)
}
