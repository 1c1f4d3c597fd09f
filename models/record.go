// backend/models/record.go
package models

import (
	"encoding/json"
	"time"
)

// SourceRecord is one normalized record from an external dataset, ready for
// the idempotent upsert. Key is the dataset's natural key (the configured
// primary key fields joined with ":"), RecordDate is the value of the
// dataset's watermark column when present, and Payload is the full record as
// JSON. Per-field mapping from the raw source row is the transform's job.
type SourceRecord struct {
	Key        string          `db:"record_key" json:"record_key"`
	RecordDate *time.Time      `db:"record_date" json:"record_date,omitempty"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
}
