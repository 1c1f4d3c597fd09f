// backend/database/synclog_store.go
package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/parcelview/propertydata/backend/models"
)

// SyncLogStore is the append-only audit trail of ingestion attempts.
// A run gets exactly two writes: the in_progress row at start and the
// terminal row at finish. Nothing here ever updates a finalized row.
type SyncLogStore struct {
	db *sql.DB
}

// NewSyncLogStore wires a sql.DB implementation.
func NewSyncLogStore(db *sql.DB) *SyncLogStore {
	return &SyncLogStore{db: db}
}

const syncLogColumns = `id, dataset_id, sync_type, records_processed, records_added,
       records_updated, records_failed, start_time, end_time, status,
       error_message, last_record_date, triggered_by`

// StartRun assigns the entry an id and writes its in_progress row.
func (s *SyncLogStore) StartRun(entry *models.SyncLogEntry) error {
	if s.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	entry.Status = models.StatusInProgress

	_, err := s.db.Exec(`
		INSERT INTO sync_log (
			id, dataset_id, sync_type, records_processed, records_added,
			records_updated, records_failed, start_time, status, triggered_by
		) VALUES (?, ?, ?, 0, 0, 0, 0, ?, ?, ?)
	`, entry.ID, entry.DatasetID, entry.SyncType, entry.StartTime, entry.Status, entry.TriggeredBy)
	if err != nil {
		return fmt.Errorf("failed to insert in_progress sync_log row for %s: %w", entry.DatasetID, err)
	}
	return nil
}

// FinalizeRun writes the terminal state of a run. It refuses to touch rows
// that already reached a terminal status, keeping finalization exactly-once.
func (s *SyncLogStore) FinalizeRun(entry *models.SyncLogEntry) error {
	if s.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	if !entry.Terminal() {
		return fmt.Errorf("refusing to finalize sync_log %s with non-terminal status %q", entry.ID, entry.Status)
	}

	var endTime sql.NullTime
	if entry.EndTime != nil {
		endTime = sql.NullTime{Time: *entry.EndTime, Valid: true}
	}
	var lastRecordDate sql.NullTime
	if entry.LastRecordDate != nil {
		lastRecordDate = sql.NullTime{Time: *entry.LastRecordDate, Valid: true}
	}
	var errMsg sql.NullString
	if entry.ErrorMessage != "" {
		errMsg = sql.NullString{String: entry.ErrorMessage, Valid: true}
	}

	res, err := s.db.Exec(`
		UPDATE sync_log
		SET records_processed = ?, records_added = ?, records_updated = ?,
		    records_failed = ?, end_time = ?, status = ?, error_message = ?,
		    last_record_date = ?
		WHERE id = ? AND status = ?
	`,
		entry.RecordsProcessed, entry.RecordsAdded, entry.RecordsUpdated,
		entry.RecordsFailed, endTime, entry.Status, errMsg,
		lastRecordDate, entry.ID, models.StatusInProgress,
	)
	if err != nil {
		return fmt.Errorf("failed to finalize sync_log row %s: %w", entry.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		log.Printf("ERROR Database: sync_log row %s was not in_progress at finalize time.", entry.ID)
		return fmt.Errorf("sync_log row %s already finalized", entry.ID)
	}
	return nil
}

// LastSuccessfulRun returns the most recent success-or-partial entry for a
// dataset, or nil when the dataset has never synced.
func (s *SyncLogStore) LastSuccessfulRun(datasetID string) (*models.SyncLogEntry, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	row := s.db.QueryRow(`
		SELECT `+syncLogColumns+`
		FROM sync_log
		WHERE dataset_id = ? AND status IN (?, ?)
		ORDER BY start_time DESC
		LIMIT 1
	`, datasetID, models.StatusSuccess, models.StatusPartial)

	entry, err := scanSyncLog(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query last successful sync for %s: %w", datasetID, err)
	}
	return entry, nil
}

// HasFreshInProgress reports whether a run is currently believed to be
// running: an in_progress row younger than the sanity window. Older
// in_progress rows are crash leftovers and are deliberately ignored so the
// dataset stays eligible for a new attempt.
func (s *SyncLogStore) HasFreshInProgress(datasetID string, window time.Duration) (bool, error) {
	if s.db == nil {
		return false, fmt.Errorf("database connection is not initialized")
	}
	cutoff := time.Now().UTC().Add(-window)
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sync_log
		WHERE dataset_id = ? AND status = ? AND start_time > ?
	`, datasetID, models.StatusInProgress, cutoff).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check in-progress syncs for %s: %w", datasetID, err)
	}
	return count > 0, nil
}

// List returns entries matching the query, newest first, plus the total
// match count before limit/offset.
func (s *SyncLogStore) List(q models.LogQuery) ([]models.SyncLogEntry, int, error) {
	if s.db == nil {
		return nil, 0, fmt.Errorf("database connection is not initialized")
	}

	base := sq.Select(syncLogColumns).From("sync_log")
	base = applyLogFilters(base, q)
	query, args, err := base.
		OrderBy("start_time DESC").
		Limit(uint64(q.Limit)).
		Offset(uint64(q.Offset)).
		ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build sync_log query: %w", err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query sync_log: %w", err)
	}
	defer rows.Close()

	var entries []models.SyncLogEntry
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			log.Printf("ERROR Database: Failed to scan sync_log row: %v", err)
			continue
		}
		entries = append(entries, *entry)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating sync_log rows: %w", err)
	}

	countQuery, countArgs, err := applyLogFilters(sq.Select("COUNT(*)").From("sync_log"), q).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build sync_log count query: %w", err)
	}
	var total int
	if err := s.db.QueryRow(countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count sync_log rows: %w", err)
	}

	return entries, total, nil
}

// AggregateCounts returns match counts grouped by status and by dataset for
// the same filters the listing uses (minus pagination).
func (s *SyncLogStore) AggregateCounts(q models.LogQuery) (byStatus, byDataset map[string]int, err error) {
	if s.db == nil {
		return nil, nil, fmt.Errorf("database connection is not initialized")
	}

	byStatus, err = s.groupedCounts(q, "status")
	if err != nil {
		return nil, nil, err
	}
	byDataset, err = s.groupedCounts(q, "dataset_id")
	if err != nil {
		return nil, nil, err
	}
	return byStatus, byDataset, nil
}

func (s *SyncLogStore) groupedCounts(q models.LogQuery, column string) (map[string]int, error) {
	query, args, err := applyLogFilters(
		sq.Select(column, "COUNT(*)").From("sync_log"), q,
	).GroupBy(column).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync_log %s aggregate query: %w", column, err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync_log %s aggregates: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			log.Printf("ERROR Database: Failed to scan sync_log aggregate row: %v", err)
			continue
		}
		counts[key] = count
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sync_log aggregate rows: %w", err)
	}
	return counts, nil
}

func applyLogFilters(builder sq.SelectBuilder, q models.LogQuery) sq.SelectBuilder {
	if q.DatasetID != "" {
		builder = builder.Where(sq.Eq{"dataset_id": q.DatasetID})
	}
	if q.Status != "" {
		builder = builder.Where(sq.Eq{"status": q.Status})
	}
	if q.StartDate != nil {
		builder = builder.Where(sq.GtOrEq{"start_time": *q.StartDate})
	}
	if q.EndDate != nil {
		builder = builder.Where(sq.LtOrEq{"start_time": *q.EndDate})
	}
	return builder
}

func scanSyncLog(row interface{ Scan(...any) error }) (*models.SyncLogEntry, error) {
	var e models.SyncLogEntry
	var endTime, lastRecordDate sql.NullTime
	var errMsg sql.NullString
	err := row.Scan(
		&e.ID, &e.DatasetID, &e.SyncType, &e.RecordsProcessed, &e.RecordsAdded,
		&e.RecordsUpdated, &e.RecordsFailed, &e.StartTime, &endTime, &e.Status,
		&errMsg, &lastRecordDate, &e.TriggeredBy,
	)
	if err != nil {
		return nil, err
	}
	if endTime.Valid {
		e.EndTime = &endTime.Time
	}
	if lastRecordDate.Valid {
		e.LastRecordDate = &lastRecordDate.Time
	}
	if errMsg.Valid {
		e.ErrorMessage = errMsg.String
	}
	return &e, nil
}
