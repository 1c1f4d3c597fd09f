// backend/services/recommendation_service.go
package services

import (
	"log"
	"sort"
	"time"

	"github.com/parcelview/propertydata/backend/config"
	"github.com/parcelview/propertydata/backend/models"
)

// Bucket names.
const (
	BucketImmediate  = "immediate"
	BucketWithinHour = "withinHour"
	BucketToday      = "today"
	BucketThisWeek   = "thisWeek"
	BucketNoAction   = "noAction"
)

// Bucket assignment reasons, surfaced in the plan for operators.
const (
	ReasonDatasetInactive      = "dataset-inactive"
	ReasonSyncDisabled         = "sync-disabled"
	ReasonAlreadyInProgress    = "sync-already-in-progress"
	ReasonNeverChecked         = "never-checked"
	ReasonCriticallyStale      = "critically-stale"
	ReasonNeverSynced          = "never-synced"
	ReasonMaxAgeExceeded       = "max-sync-age-exceeded"
	ReasonStaleBeyondHour      = "stale-beyond-hour"
	ReasonStalenessReemerged   = "staleness-reemerged"
	ReasonApproachingThreshold = "approaching-stale-threshold"
	ReasonFresh                = "fresh"
)

// RecommendationScheduler partitions the registry into the five urgency
// buckets. Assignment is a pure, deterministic function of registry state;
// every dataset lands in exactly one bucket.
type RecommendationScheduler struct {
	registry  *Registry
	freshness FreshnessStore
	syncLogs  SyncLogStore
	cfg       config.SyncConfig
	now       func() time.Time
}

// NewRecommendationScheduler wires the scheduler.
func NewRecommendationScheduler(registry *Registry, freshness FreshnessStore, syncLogs SyncLogStore, cfg config.SyncConfig) *RecommendationScheduler {
	return &RecommendationScheduler{
		registry:  registry,
		freshness: freshness,
		syncLogs:  syncLogs,
		cfg:       cfg,
		now:       time.Now,
	}
}

// GenerateSyncRecommendations builds the tiered sync plan over the whole
// registry, inactive datasets included (they land in noAction, keeping the
// partition total).
func (s *RecommendationScheduler) GenerateSyncRecommendations() (*models.SyncRecommendations, error) {
	datasets, err := s.registry.List(true)
	if err != nil {
		return nil, err
	}
	freshByID, err := s.freshness.ListFreshness()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	recs := &models.SyncRecommendations{
		Immediate:   []models.Recommendation{},
		WithinHour:  []models.Recommendation{},
		Today:       []models.Recommendation{},
		ThisWeek:    []models.Recommendation{},
		NoAction:    []models.Recommendation{},
		GeneratedAt: now,
	}

	for i := range datasets {
		cfg := &datasets[i]

		var fresh *models.FreshnessRecord
		if f, ok := freshByID[cfg.DatasetID]; ok {
			fr := f
			fresh = &fr
		}

		// Sync history only matters for datasets the plan could act on.
		var lastSyncedAt *time.Time
		running := false
		if cfg.IsActive && cfg.SyncEnabled {
			if last, err := s.syncLogs.LastSuccessfulRun(cfg.DatasetID); err != nil {
				log.Printf("ERROR Scheduler: Failed to load last sync for %s: %v", cfg.DatasetID, err)
			} else if last != nil {
				lastSyncedAt = &last.StartTime
			}
			if r, err := s.syncLogs.HasFreshInProgress(cfg.DatasetID, s.cfg.StaleInProgressWindow); err != nil {
				log.Printf("ERROR Scheduler: Failed to check in-progress sync for %s: %v", cfg.DatasetID, err)
			} else {
				running = r
			}
		}

		bucket, reason := s.bucketFor(cfg, fresh, lastSyncedAt, running, now)

		rec := models.Recommendation{
			DatasetID:    cfg.DatasetID,
			Name:         cfg.Name,
			Priority:     cfg.Priority,
			Reason:       reason,
			LastSyncedAt: lastSyncedAt,
		}
		if fresh != nil {
			rec.FreshnessScore = fresh.FreshnessScore
			rec.Unverified = fresh.Unverified
		}

		switch bucket {
		case BucketImmediate:
			recs.Immediate = append(recs.Immediate, rec)
		case BucketWithinHour:
			recs.WithinHour = append(recs.WithinHour, rec)
		case BucketToday:
			recs.Today = append(recs.Today, rec)
		case BucketThisWeek:
			recs.ThisWeek = append(recs.ThisWeek, rec)
		default:
			recs.NoAction = append(recs.NoAction, rec)
		}
	}

	for _, bucket := range [][]models.Recommendation{
		recs.Immediate, recs.WithinHour, recs.Today, recs.ThisWeek, recs.NoAction,
	} {
		sortBucket(bucket)
	}

	recs.TotalRecommendations = len(recs.Immediate) + len(recs.WithinHour) +
		len(recs.Today) + len(recs.ThisWeek)
	return recs, nil
}

// bucketFor is the deterministic assignment rule. The case order gives the
// total ordering: configuration gates first, then the recommend-sync tiers
// by severity, then predictive maintenance.
func (s *RecommendationScheduler) bucketFor(
	cfg *models.DatasetConfig,
	fresh *models.FreshnessRecord,
	lastSyncedAt *time.Time,
	running bool,
	now time.Time,
) (bucket, reason string) {
	switch {
	case !cfg.IsActive:
		return BucketNoAction, ReasonDatasetInactive
	case !cfg.SyncEnabled:
		return BucketNoAction, ReasonSyncDisabled
	case running:
		return BucketNoAction, ReasonAlreadyInProgress
	case fresh == nil:
		return BucketNoAction, ReasonNeverChecked
	}

	if fresh.RecommendSync {
		switch {
		case fresh.FreshnessScore < s.cfg.CriticalThreshold:
			return BucketImmediate, ReasonCriticallyStale
		case lastSyncedAt == nil:
			return BucketImmediate, ReasonNeverSynced
		case now.Sub(*lastSyncedAt) > s.cfg.NeverSyncedMaxAge:
			return BucketImmediate, ReasonMaxAgeExceeded
		case now.Sub(*lastSyncedAt) > s.cfg.WithinHourAge:
			return BucketWithinHour, ReasonStaleBeyondHour
		default:
			// Synced within the hour yet stale again: the source grew.
			return BucketToday, ReasonStalenessReemerged
		}
	}

	if !fresh.IsStale && fresh.FreshnessScore < s.cfg.ApproachingThreshold {
		return BucketThisWeek, ReasonApproachingThreshold
	}
	return BucketNoAction, ReasonFresh
}

// sortBucket orders a bucket by priority descending, staleness score
// ascending (most stale first), dataset id as the final tiebreak.
func sortBucket(bucket []models.Recommendation) {
	sort.Slice(bucket, func(i, j int) bool {
		if bucket[i].Priority != bucket[j].Priority {
			return bucket[i].Priority > bucket[j].Priority
		}
		if bucket[i].FreshnessScore != bucket[j].FreshnessScore {
			return bucket[i].FreshnessScore < bucket[j].FreshnessScore
		}
		return bucket[i].DatasetID < bucket[j].DatasetID
	})
}
