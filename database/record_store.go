// backend/database/record_store.go
package database

import (
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/parcelview/propertydata/backend/models"
)

// RecordStore persists normalized source records into dataset_records with
// an idempotent upsert keyed by (dataset_id, record_key), so re-running the
// same source window is always safe.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore wires a sql.DB implementation.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// UpsertBatch writes one batch inside a transaction and reports how many
// rows were newly inserted vs merged into existing rows.
//
// The split is derived from RowsAffected: with clientFoundRows set on the
// DSN every duplicate-key row counts 2 and every insert counts 1, so for a
// batch of n rows with affected total a, inserted = 2n - a.
func (s *RecordStore) UpsertBatch(datasetID string, records []models.SourceRecord) (added, updated int, err error) {
	if s.db == nil {
		return 0, 0, fmt.Errorf("database connection is not initialized")
	}
	if len(records) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction for dataset_records: %w", err)
	}
	defer tx.Rollback()

	// Multi-row VALUES keeps round trips down for the usual 1000-row batch.
	placeholders := make([]string, 0, len(records))
	args := make([]any, 0, len(records)*4)
	for _, rec := range records {
		placeholders = append(placeholders, "(?, ?, ?, ?, NOW(), NOW())")
		var recordDate sql.NullTime
		if rec.RecordDate != nil {
			recordDate = sql.NullTime{Time: *rec.RecordDate, Valid: true}
		}
		args = append(args, datasetID, rec.Key, recordDate, []byte(rec.Payload))
	}

	query := `
		INSERT INTO dataset_records (dataset_id, record_key, record_date, payload, created_at, updated_at)
		VALUES ` + strings.Join(placeholders, ", ") + `
		ON DUPLICATE KEY UPDATE
			record_date = VALUES(record_date),
			payload = VALUES(payload),
			updated_at = NOW()
	`

	res, err := tx.Exec(query, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to upsert %d records for dataset %s: %w", len(records), datasetID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read affected rows for dataset %s upsert: %w", datasetID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit dataset_records batch for %s: %w", datasetID, err)
	}

	n := int64(len(records))
	added = int(2*n - affected)
	if added < 0 {
		added = 0
	}
	if added > len(records) {
		added = len(records)
	}
	updated = len(records) - added

	log.Printf("Database: Upserted batch for dataset '%s': %d added, %d updated.\n", datasetID, added, updated)
	return added, updated, nil
}

// CountByDataset returns the number of locally held records for a dataset.
func (s *RecordStore) CountByDataset(datasetID string) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is not initialized")
	}
	var count int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM dataset_records WHERE dataset_id = ?`, datasetID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records for dataset %s: %w", datasetID, err)
	}
	return count, nil
}
