// backend/database/dataset_store.go
package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/parcelview/propertydata/backend/models"
)

// DatasetStore reads and writes the dataset_config table.
type DatasetStore struct {
	db *sql.DB
}

// NewDatasetStore wires a sql.DB implementation.
func NewDatasetStore(db *sql.DB) *DatasetStore {
	return &DatasetStore{db: db}
}

const datasetColumns = `dataset_id, name, priority, is_active, sync_enabled, is_built_in,
       date_field, primary_key_fields, source_format, created_at, updated_at`

func scanDataset(row interface{ Scan(...any) error }) (*models.DatasetConfig, error) {
	var d models.DatasetConfig
	var pkFields string
	err := row.Scan(
		&d.DatasetID, &d.Name, &d.Priority, &d.IsActive, &d.SyncEnabled, &d.IsBuiltIn,
		&d.DateField, &pkFields, &d.SourceFormat, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.PrimaryKeyFields = models.SplitPrimaryKeyFields(pkFields)
	return &d, nil
}

// GetDataset returns the config for one dataset, or nil if it is unknown.
func (s *DatasetStore) GetDataset(datasetID string) (*models.DatasetConfig, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	row := s.db.QueryRow(
		`SELECT `+datasetColumns+` FROM dataset_config WHERE dataset_id = ?`, datasetID)
	d, err := scanDataset(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset_config for %s: %w", datasetID, err)
	}
	return d, nil
}

// ListDatasets returns every dataset, inactive ones included when asked.
// Ordered by priority descending so callers get the urgent ones first.
func (s *DatasetStore) ListDatasets(includeInactive bool) ([]models.DatasetConfig, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	query := `SELECT ` + datasetColumns + ` FROM dataset_config`
	if !includeInactive {
		query += ` WHERE is_active = TRUE`
	}
	query += ` ORDER BY priority DESC, dataset_id`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query dataset_config: %w", err)
	}
	defer rows.Close()

	var datasets []models.DatasetConfig
	for rows.Next() {
		d, err := scanDataset(rows)
		if err != nil {
			log.Printf("ERROR Database: Failed to scan dataset_config row: %v", err)
			continue
		}
		datasets = append(datasets, *d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dataset_config rows: %w", err)
	}
	return datasets, nil
}

// SaveDataset inserts or fully replaces a dataset config. The is_built_in
// flag is immutable on update so a built-in can never be demoted to custom.
func (s *DatasetStore) SaveDataset(d *models.DatasetConfig) error {
	if s.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	_, err := s.db.Exec(`
		INSERT INTO dataset_config (
			dataset_id, name, priority, is_active, sync_enabled, is_built_in,
			date_field, primary_key_fields, source_format, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
			name = VALUES(name),
			priority = VALUES(priority),
			is_active = VALUES(is_active),
			sync_enabled = VALUES(sync_enabled),
			date_field = VALUES(date_field),
			primary_key_fields = VALUES(primary_key_fields),
			source_format = VALUES(source_format),
			updated_at = NOW()
	`,
		d.DatasetID, d.Name, d.Priority, d.IsActive, d.SyncEnabled, d.IsBuiltIn,
		d.DateField, d.PrimaryKeyFieldsJoined(), d.SourceFormat,
	)
	if err != nil {
		log.Printf("ERROR Database: Failed to save dataset config for '%s': %v", d.DatasetID, err)
		return fmt.Errorf("failed to save dataset config for %s: %w", d.DatasetID, err)
	}
	return nil
}

// SeedBuiltIns inserts the built-in datasets that are not present yet,
// leaving any operator-tuned flags on existing rows untouched.
func (s *DatasetStore) SeedBuiltIns(datasets []models.DatasetConfig) error {
	if s.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	stmt, err := s.db.Prepare(`
		INSERT IGNORE INTO dataset_config (
			dataset_id, name, priority, is_active, sync_enabled, is_built_in,
			date_field, primary_key_fields, source_format, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare built-in seed statement: %w", err)
	}
	defer stmt.Close()

	for _, d := range datasets {
		if _, err := stmt.Exec(
			d.DatasetID, d.Name, d.Priority, d.IsActive, d.SyncEnabled, d.IsBuiltIn,
			d.DateField, d.PrimaryKeyFieldsJoined(), d.SourceFormat,
		); err != nil {
			return fmt.Errorf("failed to seed built-in dataset %s: %w", d.DatasetID, err)
		}
	}
	log.Printf("Database: Seeded %d built-in dataset configs (existing rows untouched).\n", len(datasets))
	return nil
}

// DeactivateDataset soft-disables a dataset. Rows are never deleted; the
// built-in guard lives in the service layer.
func (s *DatasetStore) DeactivateDataset(datasetID string) error {
	if s.db == nil {
		return fmt.Errorf("database connection is not initialized")
	}
	res, err := s.db.Exec(`
		UPDATE dataset_config
		SET is_active = FALSE, sync_enabled = FALSE, updated_at = NOW()
		WHERE dataset_id = ?
	`, datasetID)
	if err != nil {
		return fmt.Errorf("failed to deactivate dataset %s: %w", datasetID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dataset %s not found", datasetID)
	}
	log.Printf("Database: Soft-deactivated dataset '%s'.\n", datasetID)
	return nil
}
