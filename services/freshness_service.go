// backend/services/freshness_service.go
package services

import (
	"context"
	"log"
	"time"

	"github.com/parcelview/propertydata/backend/config"
	"github.com/parcelview/propertydata/backend/metrics"
	"github.com/parcelview/propertydata/backend/models"
)

// FreshnessScorer probes the live source for each dataset's record count
// and scores how current our copy is. A failed probe degrades the dataset
// to "unknown"; it never produces an error that could block scoring of
// the other datasets.
type FreshnessScorer struct {
	registry       *Registry
	freshness      FreshnessStore
	records        RecordStore
	source         SourceClient
	staleThreshold float64
	now            func() time.Time
}

// NewFreshnessScorer wires the scorer.
func NewFreshnessScorer(registry *Registry, freshness FreshnessStore, records RecordStore, source SourceClient, cfg config.SyncConfig) *FreshnessScorer {
	return &FreshnessScorer{
		registry:       registry,
		freshness:      freshness,
		records:        records,
		source:         source,
		staleThreshold: cfg.StaleThreshold,
		now:            time.Now,
	}
}

// Score is the pure scoring rule.
//
// remoteCount nil means the probe failed: the prior record is returned
// unchanged except for lastChecked and the unverified flag, so the
// scheduler keeps working from the last good data. A dataset that has never
// had a successful probe gets a zero score with recommendSync off: unknown
// is not fresh, but it is not actionable either.
func Score(prior *models.FreshnessRecord, cfg *models.DatasetConfig, ourCount int64, remoteCount *int64, staleThreshold float64, now time.Time) models.FreshnessRecord {
	if remoteCount == nil {
		if prior == nil {
			return models.FreshnessRecord{
				DatasetID:      cfg.DatasetID,
				OurRecordCount: ourCount,
				Unverified:     true,
				LastChecked:    now,
			}
		}
		rec := *prior
		rec.Unverified = true
		rec.LastChecked = now
		return rec
	}

	rec := models.FreshnessRecord{
		DatasetID:         cfg.DatasetID,
		OurRecordCount:    ourCount,
		RemoteRecordCount: remoteCount,
		LastChecked:       now,
	}
	if *remoteCount == 0 {
		// An empty source is by definition fully covered.
		rec.FreshnessScore = 1.0
		return rec
	}

	score := float64(ourCount) / float64(*remoteCount)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	rec.FreshnessScore = score
	rec.IsStale = score < staleThreshold
	rec.RecommendSync = rec.IsStale && cfg.SyncEnabled
	return rec
}

// CheckDataset probes and scores one dataset, persisting the result.
func (s *FreshnessScorer) CheckDataset(ctx context.Context, cfg *models.DatasetConfig) models.FreshnessRecord {
	prior, err := s.freshness.GetFreshness(cfg.DatasetID)
	if err != nil {
		log.Printf("ERROR Scorer: Failed to load prior freshness for %s: %v", cfg.DatasetID, err)
		prior = nil
	}

	ourCount, err := s.records.CountByDataset(cfg.DatasetID)
	if err != nil {
		log.Printf("ERROR Scorer: Failed to count local records for %s: %v", cfg.DatasetID, err)
		if prior != nil {
			ourCount = prior.OurRecordCount
		}
	}

	var remote *int64
	if n, probeErr := s.probeRemote(ctx, cfg.DatasetID); probeErr != nil {
		log.Printf("Scorer: Remote count unavailable for %s, keeping last good score: %v\n", cfg.DatasetID, probeErr)
	} else {
		remote = &n
	}

	rec := Score(prior, cfg, ourCount, remote, s.staleThreshold, s.now().UTC())
	if err := s.freshness.SaveFreshness(&rec); err != nil {
		log.Printf("ERROR Scorer: Failed to persist freshness record for %s: %v", cfg.DatasetID, err)
	}
	metrics.FreshnessScore.WithLabelValues(cfg.DatasetID).Set(rec.FreshnessScore)
	return rec
}

// probeRemote tries the count API first and falls back to scraping the
// dataset landing page.
func (s *FreshnessScorer) probeRemote(ctx context.Context, datasetID string) (int64, error) {
	n, err := s.source.CountRows(ctx, datasetID)
	if err == nil {
		return n, nil
	}
	log.Printf("Scorer: Count API probe failed for %s (%v), trying landing page.\n", datasetID, err)
	return s.source.ScrapeRowCount(ctx, datasetID)
}

// CheckAll scores every active dataset. Individual probe failures degrade
// that dataset to unverified; only a registry read failure is an error.
func (s *FreshnessScorer) CheckAll(ctx context.Context) ([]models.FreshnessRecord, error) {
	datasets, err := s.registry.List(false)
	if err != nil {
		return nil, err
	}

	records := make([]models.FreshnessRecord, 0, len(datasets))
	for i := range datasets {
		records = append(records, s.CheckDataset(ctx, &datasets[i]))
	}
	log.Printf("Scorer: Freshness check pass finished for %d datasets.\n", len(records))
	return records, nil
}
