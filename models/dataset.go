// backend/models/dataset.go
package models

import (
	"strings"
	"time"
)

// Source formats a dataset can be ingested from. NYC Open Data exposes every
// dataset as JSON; a few of the DOF extracts are only reliable as CSV.
const (
	SourceFormatJSON = "json"
	SourceFormatCSV  = "csv"
)

// DatasetConfig holds the per-dataset sync configuration.
// Built-in datasets are seeded at startup and can only be soft-disabled,
// never deleted. Custom datasets are onboarded through the API.
type DatasetConfig struct {
	DatasetID        string     `db:"dataset_id" json:"dataset_id"`     // Socrata 4x4 id, e.g. "ipu4-2q9a"
	Name             string     `db:"name" json:"name"`
	Priority         int        `db:"priority" json:"priority"`         // higher = more urgent
	IsActive         bool       `db:"is_active" json:"is_active"`
	SyncEnabled      bool       `db:"sync_enabled" json:"sync_enabled"`
	IsBuiltIn        bool       `db:"is_built_in" json:"is_built_in"`
	DateField        string     `db:"date_field" json:"date_field"`     // incremental watermark column
	PrimaryKeyFields []string   `db:"-" json:"primary_key_fields"`      // stored comma-joined
	SourceFormat     string     `db:"source_format" json:"source_format"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// PrimaryKeyFieldsJoined returns the natural key columns in their stored
// comma-joined form.
func (d *DatasetConfig) PrimaryKeyFieldsJoined() string {
	return strings.Join(d.PrimaryKeyFields, ",")
}

// SplitPrimaryKeyFields parses the stored comma-joined form back into a slice.
func SplitPrimaryKeyFields(joined string) []string {
	if strings.TrimSpace(joined) == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	fields := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			fields = append(fields, trimmed)
		}
	}
	return fields
}

// FreshnessRecord is the last known freshness state for one dataset.
// RemoteRecordCount is nil when the most recent count probe failed; in that
// case the previous score is retained and Unverified is set so the scheduler
// knows it is working from stale information rather than a fresh probe.
type FreshnessRecord struct {
	DatasetID         string    `db:"dataset_id" json:"dataset_id"`
	OurRecordCount    int64     `db:"our_record_count" json:"our_record_count"`
	RemoteRecordCount *int64    `db:"remote_record_count" json:"remote_record_count,omitempty"`
	FreshnessScore    float64   `db:"freshness_score" json:"freshness_score"` // in [0,1], 1 = fully current
	IsStale           bool      `db:"is_stale" json:"is_stale"`
	RecommendSync     bool      `db:"recommend_sync" json:"recommend_sync"`
	Unverified        bool      `db:"unverified" json:"unverified"`
	LastChecked       time.Time `db:"last_checked" json:"last_checked"`
}
