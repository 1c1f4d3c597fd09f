// backend/services/fakes_test.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/parcelview/propertydata/backend/config"
	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/socrata"
)

// In-memory stand-ins for the storage and source interfaces.

type fakeDatasetStore struct {
	mu       sync.Mutex
	datasets map[string]models.DatasetConfig
}

func newFakeDatasetStore(datasets ...models.DatasetConfig) *fakeDatasetStore {
	s := &fakeDatasetStore{datasets: make(map[string]models.DatasetConfig)}
	for _, d := range datasets {
		s.datasets[d.DatasetID] = d
	}
	return s
}

func (s *fakeDatasetStore) GetDataset(datasetID string) (*models.DatasetConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[datasetID]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *fakeDatasetStore) ListDatasets(includeInactive bool) ([]models.DatasetConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.DatasetConfig, 0, len(s.datasets))
	for _, d := range s.datasets {
		if !includeInactive && !d.IsActive {
			continue
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].DatasetID < out[j].DatasetID
	})
	return out, nil
}

func (s *fakeDatasetStore) SaveDataset(d *models.DatasetConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.DatasetID] = *d
	return nil
}

func (s *fakeDatasetStore) SeedBuiltIns(datasets []models.DatasetConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range datasets {
		if _, ok := s.datasets[d.DatasetID]; !ok {
			s.datasets[d.DatasetID] = d
		}
	}
	return nil
}

func (s *fakeDatasetStore) DeactivateDataset(datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.datasets[datasetID]
	if !ok {
		return errors.New("no such dataset")
	}
	d.IsActive = false
	s.datasets[datasetID] = d
	return nil
}

type fakeFreshnessStore struct {
	mu      sync.Mutex
	records map[string]models.FreshnessRecord
}

func newFakeFreshnessStore() *fakeFreshnessStore {
	return &fakeFreshnessStore{records: make(map[string]models.FreshnessRecord)}
}

func (s *fakeFreshnessStore) SaveFreshness(rec *models.FreshnessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.DatasetID] = *rec
	return nil
}

func (s *fakeFreshnessStore) GetFreshness(datasetID string) (*models.FreshnessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[datasetID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *fakeFreshnessStore) ListFreshness() (map[string]models.FreshnessRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]models.FreshnessRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out, nil
}

type fakeSyncLogStore struct {
	mu      sync.Mutex
	entries []models.SyncLogEntry
}

func newFakeSyncLogStore() *fakeSyncLogStore {
	return &fakeSyncLogStore{}
}

func (s *fakeSyncLogStore) StartRun(entry *models.SyncLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = fmt.Sprintf("run-%d", len(s.entries)+1)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeSyncLogStore) FinalizeRun(entry *models.SyncLogEntry) error {
	if !entry.Terminal() {
		return errors.New("cannot finalize a non-terminal entry")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entry.ID {
			if s.entries[i].Status != models.StatusInProgress {
				return errors.New("entry already finalized")
			}
			s.entries[i] = *entry
			return nil
		}
	}
	return errors.New("no such entry")
}

func (s *fakeSyncLogStore) LastSuccessfulRun(datasetID string) (*models.SyncLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *models.SyncLogEntry
	for i := range s.entries {
		e := s.entries[i]
		if e.DatasetID != datasetID || !e.Succeeded() {
			continue
		}
		if best == nil || e.StartTime.After(best.StartTime) {
			best = &e
		}
	}
	return best, nil
}

func (s *fakeSyncLogStore) HasFreshInProgress(datasetID string, window time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-window)
	for i := range s.entries {
		e := s.entries[i]
		if e.DatasetID == datasetID && e.Status == models.StatusInProgress && e.StartTime.After(cutoff) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeSyncLogStore) List(q models.LogQuery) ([]models.SyncLogEntry, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []models.SyncLogEntry
	for _, e := range s.entries {
		if q.DatasetID != "" && e.DatasetID != q.DatasetID {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].StartTime.After(matched[j].StartTime) })
	total := len(matched)
	if q.Offset < len(matched) {
		matched = matched[q.Offset:]
	} else {
		matched = nil
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (s *fakeSyncLogStore) AggregateCounts(q models.LogQuery) (map[string]int, map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byStatus := make(map[string]int)
	byDataset := make(map[string]int)
	for _, e := range s.entries {
		if q.DatasetID != "" && e.DatasetID != q.DatasetID {
			continue
		}
		if q.Status != "" && e.Status != q.Status {
			continue
		}
		byStatus[e.Status]++
		byDataset[e.DatasetID]++
	}
	return byStatus, byDataset, nil
}

func (s *fakeSyncLogStore) entriesFor(datasetID string) []models.SyncLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SyncLogEntry
	for _, e := range s.entries {
		if e.DatasetID == datasetID {
			out = append(out, e)
		}
	}
	return out
}

type fakeRecordStore struct {
	mu        sync.Mutex
	records   map[string]map[string]models.SourceRecord
	upsertErr error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[string]map[string]models.SourceRecord)}
}

func (s *fakeRecordStore) UpsertBatch(datasetID string, records []models.SourceRecord) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return 0, 0, s.upsertErr
	}
	byKey, ok := s.records[datasetID]
	if !ok {
		byKey = make(map[string]models.SourceRecord)
		s.records[datasetID] = byKey
	}
	var added, updated int
	for _, rec := range records {
		if _, exists := byKey[rec.Key]; exists {
			updated++
		} else {
			added++
		}
		byKey[rec.Key] = rec
	}
	return added, updated, nil
}

func (s *fakeRecordStore) CountByDataset(datasetID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records[datasetID])), nil
}

// fakeSource routes each call to a configurable func; unset funcs fail so a
// test only exercises the paths it set up.
type fakeSource struct {
	countRows    func(datasetID string) (int64, error)
	scrapeCount  func(datasetID string) (int64, error)
	fetchPage    func(req socrata.PageRequest) ([]map[string]any, error)
	fetchPageCSV func(req socrata.PageRequest) ([]byte, error)
}

func (f *fakeSource) CountRows(_ context.Context, datasetID string) (int64, error) {
	if f.countRows == nil {
		return 0, errors.New("countRows not configured")
	}
	return f.countRows(datasetID)
}

func (f *fakeSource) ScrapeRowCount(_ context.Context, datasetID string) (int64, error) {
	if f.scrapeCount == nil {
		return 0, errors.New("scrapeCount not configured")
	}
	return f.scrapeCount(datasetID)
}

func (f *fakeSource) FetchPage(_ context.Context, req socrata.PageRequest) ([]map[string]any, error) {
	if f.fetchPage == nil {
		return nil, errors.New("fetchPage not configured")
	}
	return f.fetchPage(req)
}

func (f *fakeSource) FetchPageCSV(_ context.Context, req socrata.PageRequest) ([]byte, error) {
	if f.fetchPageCSV == nil {
		return nil, errors.New("fetchPageCSV not configured")
	}
	return f.fetchPageCSV(req)
}

// testSyncConfig returns the thresholds the tests assume.
func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		StaleThreshold:        0.99,
		CriticalThreshold:     0.90,
		ApproachingThreshold:  0.995,
		BatchSize:             1000,
		DefaultMaxConcurrent:  3,
		DefaultMaxDuration:    5 * time.Minute,
		DatasetTimeBudget:     10 * time.Minute,
		WithinHourAge:         time.Hour,
		NeverSyncedMaxAge:     7 * 24 * time.Hour,
		StaleInProgressWindow: 2 * time.Hour,
		CheckInterval:         30 * time.Minute,
	}
}

// makeRecords builds n keyed records, all carrying the same record date.
func makeRecords(n int, date *time.Time) []models.SourceRecord {
	out := make([]models.SourceRecord, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, models.SourceRecord{
			Key:        fmt.Sprintf("rec-%04d", i),
			RecordDate: date,
			Payload:    []byte(`{}`),
		})
	}
	return out
}

func int64Ptr(n int64) *int64 { return &n }

func timePtr(t time.Time) *time.Time { return &t }
