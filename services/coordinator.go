// backend/services/coordinator.go
package services

import (
	"context"
	"log"
	"math/rand/v2"
	"time"

	"github.com/parcelview/propertydata/backend/config"
)

// SyncCoordinator is the background loop that keeps the whole registry
// moving without operator involvement: every interval it re-checks
// freshness for all datasets, then executes whatever the scheduler
// recommends. Each tick is jittered so restarts of several instances don't
// hammer the portal in lockstep.
type SyncCoordinator struct {
	scorer   *FreshnessScorer
	executor *SyncExecutor
	cfg      config.SyncConfig
}

func NewSyncCoordinator(scorer *FreshnessScorer, executor *SyncExecutor, cfg config.SyncConfig) *SyncCoordinator {
	return &SyncCoordinator{scorer: scorer, executor: executor, cfg: cfg}
}

// Start runs the coordinator loop until ctx is cancelled. It blocks, so
// callers run it in its own goroutine. One pass runs immediately on start.
func (c *SyncCoordinator) Start(ctx context.Context) {
	log.Printf("Coordinator: Auto-sync loop starting, interval %s.\n", c.cfg.CheckInterval)

	c.runOnce(ctx)
	for {
		timer := time.NewTimer(c.jitteredInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			log.Println("Coordinator: Auto-sync loop stopping.")
			return
		case <-timer.C:
			c.runOnce(ctx)
		}
	}
}

func (c *SyncCoordinator) runOnce(ctx context.Context) {
	if _, err := c.scorer.CheckAll(ctx); err != nil {
		log.Printf("ERROR Coordinator: Freshness check pass failed: %v", err)
		// The scheduler can still act on whatever freshness survived.
	}
	// Defaults for both knobs; the scheduled pass has no caller to override them.
	if _, err := c.executor.ExecuteRecommended(ctx, 0, -1, "scheduler"); err != nil {
		log.Printf("ERROR Coordinator: Scheduled sync pass failed: %v", err)
	}
}

// jitteredInterval spreads ticks around the configured interval, up to
// about two minutes either way at the default 30m.
func (c *SyncCoordinator) jitteredInterval() time.Duration {
	base := c.cfg.CheckInterval
	if base <= 0 {
		base = 30 * time.Minute
	}
	jitter := time.Duration(rand.Int64N(int64(base) / 15))
	if rand.IntN(2) == 0 {
		return base - jitter
	}
	return base + jitter
}
