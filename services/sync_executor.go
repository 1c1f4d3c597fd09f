// backend/services/sync_executor.go
package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/parcelview/propertydata/backend/config"
	"github.com/parcelview/propertydata/backend/metrics"
	"github.com/parcelview/propertydata/backend/models"
)

// Recommender produces the tiered sync plan the executor works through.
type Recommender interface {
	GenerateSyncRecommendations() (*models.SyncRecommendations, error)
}

// IngestRunner runs one dataset's ingestion to a terminal SyncLogEntry.
type IngestRunner interface {
	Ingest(ctx context.Context, datasetID string, opts IngestOptions) (*models.SyncLogEntry, error)
}

// SyncExecutor runs the actionable part of the plan (immediate, then
// withinHour, then today) under a concurrency cap and a wall-clock budget.
// The deadline only blocks new starts: in-flight ingestions are allowed to
// finish so no sync_log row is abandoned at in_progress.
type SyncExecutor struct {
	scheduler            Recommender
	pipeline             IngestRunner
	defaultMaxConcurrent int
	defaultMaxDuration   time.Duration
}

// NewSyncExecutor wires the executor with its configured defaults.
func NewSyncExecutor(scheduler Recommender, pipeline IngestRunner, cfg config.SyncConfig) *SyncExecutor {
	return &SyncExecutor{
		scheduler:            scheduler,
		pipeline:             pipeline,
		defaultMaxConcurrent: cfg.DefaultMaxConcurrent,
		defaultMaxDuration:   cfg.DefaultMaxDuration,
	}
}

// ExecuteRecommended generates the plan and executes it. maxConcurrent <= 0
// falls back to the default; maxDuration < 0 falls back to the default,
// while an explicit 0 means the budget is already spent and everything
// queued is skipped. One dataset failing never touches its siblings;
// failures surface only in the counters.
func (e *SyncExecutor) ExecuteRecommended(ctx context.Context, maxConcurrent int, maxDuration time.Duration, triggeredBy string) (*models.ExecuteSummary, error) {
	if maxConcurrent <= 0 {
		maxConcurrent = e.defaultMaxConcurrent
	}
	if maxDuration < 0 {
		maxDuration = e.defaultMaxDuration
	}

	plan, err := e.scheduler.GenerateSyncRecommendations()
	if err != nil {
		return nil, fmt.Errorf("failed to generate sync plan: %w", err)
	}

	queue := make([]models.Recommendation, 0,
		len(plan.Immediate)+len(plan.WithinHour)+len(plan.Today))
	queue = append(queue, plan.Immediate...)
	queue = append(queue, plan.WithinHour...)
	queue = append(queue, plan.Today...)

	log.Printf("Executor: Starting sync pass: %d queued, max %d concurrent, %s budget.\n",
		len(queue), maxConcurrent, maxDuration)

	start := time.Now()
	deadline := start.Add(maxDuration)
	sem := semaphore.NewWeighted(int64(maxConcurrent))
	// In-flight runs must outlive caller cancellation to finalize their
	// audit rows.
	runCtx := context.WithoutCancel(ctx)

	var wg sync.WaitGroup
	var executed, failed, skipped atomic.Int64

	for _, item := range queue {
		if !time.Now().Before(deadline) {
			skipped.Add(1)
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			skipped.Add(1)
			continue
		}
		// A slot may free up after the budget ran out.
		if !time.Now().Before(deadline) {
			sem.Release(1)
			skipped.Add(1)
			continue
		}

		wg.Add(1)
		go func(datasetID string) {
			defer wg.Done()
			defer sem.Release(1)

			entry, err := e.pipeline.Ingest(runCtx, datasetID, IngestOptions{TriggeredBy: triggeredBy})
			switch {
			case err != nil:
				log.Printf("ERROR Executor: Ingestion for %s did not produce a run: %v", datasetID, err)
				failed.Add(1)
			case entry.Succeeded():
				executed.Add(1)
			default:
				failed.Add(1)
			}
		}(item.DatasetID)
	}

	wg.Wait()

	summary := &models.ExecuteSummary{
		Executed:             int(executed.Load()),
		Failed:               int(failed.Load()),
		Skipped:              int(skipped.Load()),
		TotalDurationSeconds: time.Since(start).Seconds(),
	}
	if ran := summary.Executed + summary.Failed; ran > 0 {
		summary.SuccessRate = float64(summary.Executed) / float64(ran)
	}
	metrics.SyncsSkippedTotal.Add(float64(summary.Skipped))

	log.Printf("Executor: Sync pass finished: %d executed, %d failed, %d skipped in %.1fs.\n",
		summary.Executed, summary.Failed, summary.Skipped, summary.TotalDurationSeconds)
	return summary, nil
}
