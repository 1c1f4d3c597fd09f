// backend/models/sync_log.go
package models

import "time"

// Sync run statuses. A row is written with StatusInProgress when a run
// starts and finalized exactly once with one of the terminal statuses.
const (
	StatusInProgress = "in_progress"
	StatusSuccess    = "success"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
)

// Sync types.
const (
	SyncTypeFull        = "full"
	SyncTypeIncremental = "incremental"
)

// SyncLogEntry is the durable audit record of one ingestion attempt.
// Immutable once finalized; rows left at in_progress past the sanity window
// (process crash) are kept as historical artifacts and never rewritten.
type SyncLogEntry struct {
	ID               string     `db:"id" json:"id"`
	DatasetID        string     `db:"dataset_id" json:"dataset_id"`
	SyncType         string     `db:"sync_type" json:"sync_type"`
	RecordsProcessed int        `db:"records_processed" json:"records_processed"`
	RecordsAdded     int        `db:"records_added" json:"records_added"`
	RecordsUpdated   int        `db:"records_updated" json:"records_updated"`
	RecordsFailed    int        `db:"records_failed" json:"records_failed"`
	StartTime        time.Time  `db:"start_time" json:"start_time"`
	EndTime          *time.Time `db:"end_time" json:"end_time,omitempty"`
	Status           string     `db:"status" json:"status"`
	ErrorMessage     string     `db:"error_message" json:"error_message,omitempty"`
	// LastRecordDate is the watermark value of the most recent record
	// successfully written; the next incremental run starts from here.
	LastRecordDate *time.Time `db:"last_record_date" json:"last_record_date,omitempty"`
	TriggeredBy    string     `db:"triggered_by" json:"triggered_by"`
}

// Terminal reports whether the entry has reached a terminal status.
func (e *SyncLogEntry) Terminal() bool {
	return e.Status == StatusSuccess || e.Status == StatusPartial || e.Status == StatusFailed
}

// Succeeded reports whether the run wrote at least some data and finished.
func (e *SyncLogEntry) Succeeded() bool {
	return e.Status == StatusSuccess || e.Status == StatusPartial
}

// LogQuery carries the filters for the sync log listing endpoint.
type LogQuery struct {
	DatasetID string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
