// backend/models/api_models.go
package models

import "time"

// IngestRequest is the expected JSON body for POST /api/sync/ingest.
type IngestRequest struct {
	DatasetID string `json:"dataset_id"`
	FullSync  bool   `json:"full_sync"`
	Limit     int    `json:"limit"` // 0 = uncapped
}

// ExecuteRequest is the expected JSON body for POST /api/sync/execute.
// MaxDurationSeconds is a pointer so that an explicit 0 ("budget already
// spent, start nothing") is distinguishable from the field being omitted.
type ExecuteRequest struct {
	MaxConcurrent      int  `json:"max_concurrent"`
	MaxDurationSeconds *int `json:"max_duration_seconds"`
}

// ExecuteSummary is the aggregate outcome of one executor pass.
type ExecuteSummary struct {
	Executed             int     `json:"executed"`
	Failed               int     `json:"failed"`
	Skipped              int     `json:"skipped"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
	SuccessRate          float64 `json:"success_rate"`
}

// Recommendation is one dataset's entry in the tiered sync plan.
type Recommendation struct {
	DatasetID      string     `json:"dataset_id"`
	Name           string     `json:"name"`
	Priority       int        `json:"priority"`
	FreshnessScore float64    `json:"freshness_score"`
	Unverified     bool       `json:"unverified"`
	Reason         string     `json:"reason"`
	LastSyncedAt   *time.Time `json:"last_synced_at,omitempty"`
}

// SyncRecommendations is the full tiered plan: every dataset in the registry
// appears in exactly one bucket.
type SyncRecommendations struct {
	Immediate            []Recommendation `json:"immediate"`
	WithinHour           []Recommendation `json:"withinHour"`
	Today                []Recommendation `json:"today"`
	ThisWeek             []Recommendation `json:"thisWeek"`
	NoAction             []Recommendation `json:"noAction"`
	TotalRecommendations int              `json:"totalRecommendations"`
	GeneratedAt          time.Time        `json:"generated_at"`
}

// LogListResponse is the paginated sync log listing plus aggregate counts.
type LogListResponse struct {
	Logs      []SyncLogEntry `json:"logs"`
	Total     int            `json:"total"`
	ByStatus  map[string]int `json:"by_status"`
	ByDataset map[string]int `json:"by_dataset"`
}

// CreateDatasetRequest onboards a custom dataset.
type CreateDatasetRequest struct {
	DatasetID        string   `json:"dataset_id"`
	Name             string   `json:"name"`
	Priority         int      `json:"priority"`
	DateField        string   `json:"date_field"`
	PrimaryKeyFields []string `json:"primary_key_fields"`
	SourceFormat     string   `json:"source_format"`
}

// UpdateDatasetRequest carries partial updates; nil fields are left alone.
type UpdateDatasetRequest struct {
	Name        *string `json:"name,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	SyncEnabled *bool   `json:"sync_enabled,omitempty"`
}
