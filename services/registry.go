// backend/services/registry.go
package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/parcelview/propertydata/backend/models"
)

var (
	ErrDatasetNotFound = errors.New("dataset not found")
	ErrDatasetExists   = errors.New("dataset already exists")
	ErrBuiltInDataset  = errors.New("built-in datasets cannot be deactivated by deletion")
	ErrInvalidDataset  = errors.New("invalid dataset configuration")
)

// builtInDatasets is the seeded NYC Open Data catalog. Only the priority
// and the enabled flags are expected to be tuned by operators afterwards.
var builtInDatasets = []models.DatasetConfig{
	{
		DatasetID: "bnx9-e6tj", Name: "ACRIS Real Property Master", Priority: 90,
		IsActive: true, SyncEnabled: true, IsBuiltIn: true,
		DateField: "recorded_datetime", PrimaryKeyFields: []string{"document_id"},
		SourceFormat: models.SourceFormatJSON,
	},
	{
		DatasetID: "ipu4-2q9a", Name: "DOB Permit Issuance", Priority: 80,
		IsActive: true, SyncEnabled: true, IsBuiltIn: true,
		DateField: "issuance_date", PrimaryKeyFields: []string{"job__", "permit_si_no"},
		SourceFormat: models.SourceFormatJSON,
	},
	{
		DatasetID: "wvxf-dwi5", Name: "HPD Housing Maintenance Code Violations", Priority: 70,
		IsActive: true, SyncEnabled: true, IsBuiltIn: true,
		DateField: "inspectiondate", PrimaryKeyFields: []string{"violationid"},
		SourceFormat: models.SourceFormatJSON,
	},
	{
		// The assessment roll has no usable watermark column; every sync
		// is a full scan.
		DatasetID: "yjxr-fw8i", Name: "DOF Property Assessment Roll", Priority: 60,
		IsActive: true, SyncEnabled: true, IsBuiltIn: true,
		DateField: "", PrimaryKeyFields: []string{"parid", "year"},
		SourceFormat: models.SourceFormatJSON,
	},
	{
		DatasetID: "6z8x-wfk4", Name: "Marshal Evictions", Priority: 50,
		IsActive: true, SyncEnabled: true, IsBuiltIn: true,
		DateField: "executed_date", PrimaryKeyFields: []string{"court_index_number", "docket_number"},
		SourceFormat: models.SourceFormatJSON,
	},
	{
		DatasetID: "usep-8jbt", Name: "DOF Annualized Sales", Priority: 40,
		IsActive: true, SyncEnabled: true, IsBuiltIn: true,
		DateField: "sale_date", PrimaryKeyFields: []string{"borough", "block", "lot", "sale_date"},
		SourceFormat: models.SourceFormatCSV,
	},
}

// Registry is the dataset registry: configs from storage plus the
// datasetId → transform mapping, resolved once at startup. Adding a dataset
// means registering its config (and, if needed, a typed transform); no
// branching in the ingestion path.
type Registry struct {
	datasets   DatasetStore
	transforms map[string]TransformFunc
}

// NewRegistry builds the registry with the built-in transforms registered.
func NewRegistry(store DatasetStore) *Registry {
	r := &Registry{
		datasets:   store,
		transforms: make(map[string]TransformFunc),
	}
	r.RegisterTransform("usep-8jbt", AnnualizedSalesTransform)
	return r
}

// SeedBuiltIns inserts the built-in catalog rows that do not exist yet.
func (r *Registry) SeedBuiltIns() error {
	return r.datasets.SeedBuiltIns(builtInDatasets)
}

// RegisterTransform binds a dataset id to a typed transform. Datasets
// without one fall back to GenericJSONTransform.
func (r *Registry) RegisterTransform(datasetID string, fn TransformFunc) {
	r.transforms[datasetID] = fn
}

// TransformFor resolves the transform for a dataset.
func (r *Registry) TransformFor(cfg *models.DatasetConfig) TransformFunc {
	if fn, ok := r.transforms[cfg.DatasetID]; ok {
		return fn
	}
	return GenericJSONTransform
}

// Get returns one dataset config, or ErrDatasetNotFound.
func (r *Registry) Get(datasetID string) (*models.DatasetConfig, error) {
	cfg, err := r.datasets.GetDataset(datasetID)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, ErrDatasetNotFound
	}
	return cfg, nil
}

// List returns the registry's datasets.
func (r *Registry) List(includeInactive bool) ([]models.DatasetConfig, error) {
	return r.datasets.ListDatasets(includeInactive)
}

// CreateCustom onboards a custom dataset.
func (r *Registry) CreateCustom(req models.CreateDatasetRequest) (*models.DatasetConfig, error) {
	if req.DatasetID == "" {
		return nil, fmt.Errorf("%w: dataset_id is required", ErrInvalidDataset)
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidDataset)
	}
	if len(req.PrimaryKeyFields) == 0 {
		return nil, fmt.Errorf("%w: primary_key_fields are required for idempotent upserts", ErrInvalidDataset)
	}
	format := req.SourceFormat
	if format == "" {
		format = models.SourceFormatJSON
	}
	if format != models.SourceFormatJSON && format != models.SourceFormatCSV {
		return nil, fmt.Errorf("%w: unsupported source_format %q", ErrInvalidDataset, format)
	}

	existing, err := r.datasets.GetDataset(req.DatasetID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDatasetExists
	}

	cfg := &models.DatasetConfig{
		DatasetID:        req.DatasetID,
		Name:             req.Name,
		Priority:         req.Priority,
		IsActive:         true,
		SyncEnabled:      true,
		IsBuiltIn:        false,
		DateField:        req.DateField,
		PrimaryKeyFields: req.PrimaryKeyFields,
		SourceFormat:     format,
	}
	if err := r.datasets.SaveDataset(cfg); err != nil {
		return nil, err
	}
	log.Printf("Registry: Onboarded custom dataset '%s' (%s).\n", cfg.DatasetID, cfg.Name)
	return cfg, nil
}

// Update applies a partial configuration update.
func (r *Registry) Update(datasetID string, req models.UpdateDatasetRequest) (*models.DatasetConfig, error) {
	cfg, err := r.Get(datasetID)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.Priority != nil {
		cfg.Priority = *req.Priority
	}
	if req.IsActive != nil {
		cfg.IsActive = *req.IsActive
	}
	if req.SyncEnabled != nil {
		cfg.SyncEnabled = *req.SyncEnabled
	}
	if err := r.datasets.SaveDataset(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Deactivate soft-disables a custom dataset. Built-ins can be disabled via
// Update but never deactivated through the delete path.
func (r *Registry) Deactivate(datasetID string) error {
	cfg, err := r.Get(datasetID)
	if err != nil {
		return err
	}
	if cfg.IsBuiltIn {
		return ErrBuiltInDataset
	}
	return r.datasets.DeactivateDataset(datasetID)
}
