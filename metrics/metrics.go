// backend/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRunsTotal counts finished ingestion runs by terminal status.
	SyncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propertydata_sync_runs_total",
		Help: "Finished ingestion runs by dataset and terminal status.",
	}, []string{"dataset", "status"})

	// RecordsProcessedTotal counts source records fetched per dataset.
	RecordsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propertydata_records_processed_total",
		Help: "Source records fetched from NYC Open Data per dataset.",
	}, []string{"dataset"})

	// RecordsFailedTotal counts records that failed transform or load.
	RecordsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "propertydata_records_failed_total",
		Help: "Records dropped by transform or failed batch writes per dataset.",
	}, []string{"dataset"})

	// SyncsSkippedTotal counts queued syncs never started before the
	// executor's deadline.
	SyncsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "propertydata_syncs_skipped_total",
		Help: "Queued syncs skipped because the executor budget expired.",
	})

	// FreshnessScore is each dataset's last computed freshness score.
	FreshnessScore = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "propertydata_freshness_score",
		Help: "Last computed freshness score per dataset (1 = fully current).",
	}, []string{"dataset"})
)
