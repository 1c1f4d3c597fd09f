// backend/database/freshness_store.go
package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/parcelview/propertydata/backend/models"
)

// FreshnessStore reads and writes the data_freshness table (one row per
// dataset, replaced wholesale on every write).
type FreshnessStore struct {
	db *sql.DB
}

// NewFreshnessStore wires a sql.DB implementation.
func NewFreshnessStore(db *sql.DB) *FreshnessStore {
	return &FreshnessStore{db: db}
}

// SaveFreshness upserts a dataset's freshness record. Both the scorer and
// the ingestion pipeline write here, last-writer-wins per row, except that
// last_checked can never move backwards: GREATEST keeps the stored value
// when a slow writer lands after a newer probe.
func (s *FreshnessStore) SaveFreshness(rec *models.FreshnessRecord) error {
	if s.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	var remote sql.NullInt64
	if rec.RemoteRecordCount != nil {
		remote = sql.NullInt64{Int64: *rec.RemoteRecordCount, Valid: true}
	}

	_, err := s.db.Exec(`
		INSERT INTO data_freshness (
			dataset_id, our_record_count, remote_record_count, freshness_score,
			is_stale, recommend_sync, unverified, last_checked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			our_record_count = VALUES(our_record_count),
			remote_record_count = VALUES(remote_record_count),
			freshness_score = VALUES(freshness_score),
			is_stale = VALUES(is_stale),
			recommend_sync = VALUES(recommend_sync),
			unverified = VALUES(unverified),
			last_checked = GREATEST(last_checked, VALUES(last_checked))
	`,
		rec.DatasetID, rec.OurRecordCount, remote, rec.FreshnessScore,
		rec.IsStale, rec.RecommendSync, rec.Unverified, rec.LastChecked,
	)
	if err != nil {
		log.Printf("ERROR Database: Failed to save freshness record for '%s': %v", rec.DatasetID, err)
		return fmt.Errorf("failed to save freshness record for %s: %w", rec.DatasetID, err)
	}
	return nil
}

// GetFreshness returns the freshness record for one dataset, or nil if the
// dataset has never been checked.
func (s *FreshnessStore) GetFreshness(datasetID string) (*models.FreshnessRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	row := s.db.QueryRow(`
		SELECT dataset_id, our_record_count, remote_record_count, freshness_score,
		       is_stale, recommend_sync, unverified, last_checked
		FROM data_freshness WHERE dataset_id = ?
	`, datasetID)

	rec, err := scanFreshness(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query data_freshness for %s: %w", datasetID, err)
	}
	return rec, nil
}

// ListFreshness returns all freshness records keyed by dataset id.
func (s *FreshnessStore) ListFreshness() (map[string]models.FreshnessRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	rows, err := s.db.Query(`
		SELECT dataset_id, our_record_count, remote_record_count, freshness_score,
		       is_stale, recommend_sync, unverified, last_checked
		FROM data_freshness
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query data_freshness: %w", err)
	}
	defer rows.Close()

	records := make(map[string]models.FreshnessRecord)
	for rows.Next() {
		rec, err := scanFreshness(rows)
		if err != nil {
			log.Printf("ERROR Database: Failed to scan data_freshness row: %v", err)
			continue
		}
		records[rec.DatasetID] = *rec
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating data_freshness rows: %w", err)
	}
	return records, nil
}

func scanFreshness(row interface{ Scan(...any) error }) (*models.FreshnessRecord, error) {
	var rec models.FreshnessRecord
	var remote sql.NullInt64
	err := row.Scan(
		&rec.DatasetID, &rec.OurRecordCount, &remote, &rec.FreshnessScore,
		&rec.IsStale, &rec.RecommendSync, &rec.Unverified, &rec.LastChecked,
	)
	if err != nil {
		return nil, err
	}
	if remote.Valid {
		rec.RemoteRecordCount = &remote.Int64
	}
	return &rec, nil
}
