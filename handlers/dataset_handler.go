// backend/handlers/dataset_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/services"
)

// ListDatasetsHandler returns the dataset registry.
// Expects GET to /api/datasets; ?include_inactive=true includes disabled ones.
func (a *API) ListDatasetsHandler(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	datasets, err := a.Registry.List(includeInactive)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list datasets: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, datasets)
}

// CreateDatasetHandler onboards a custom dataset.
// Expects POST to /api/datasets
// with JSON body: {"dataset_id": "...", "name": "...", "priority": 10,
// "date_field": "...", "primary_key_fields": ["..."], "source_format": "json"}
func (a *API) CreateDatasetHandler(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	cfg, err := a.Registry.CreateCustom(req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrDatasetExists):
			respondWithError(w, http.StatusConflict, "Dataset already registered: "+req.DatasetID)
		case errors.Is(err, services.ErrInvalidDataset):
			respondWithError(w, http.StatusBadRequest, err.Error())
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to create dataset: "+err.Error())
		}
		return
	}
	respondWithJSON(w, http.StatusCreated, cfg)
}

// UpdateDatasetHandler applies a partial update.
// Expects PATCH to /api/datasets/{datasetID}
func (a *API) UpdateDatasetHandler(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")

	var req models.UpdateDatasetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	cfg, err := a.Registry.Update(datasetID, req)
	if err != nil {
		if errors.Is(err, services.ErrDatasetNotFound) {
			respondWithError(w, http.StatusNotFound, "Unknown dataset: "+datasetID)
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to update dataset: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, cfg)
}

// DeleteDatasetHandler soft-disables a custom dataset. Built-in datasets
// can only be deactivated via PATCH, never removed.
// Expects DELETE to /api/datasets/{datasetID}
func (a *API) DeleteDatasetHandler(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "datasetID")

	if err := a.Registry.Deactivate(datasetID); err != nil {
		switch {
		case errors.Is(err, services.ErrDatasetNotFound):
			respondWithError(w, http.StatusNotFound, "Unknown dataset: "+datasetID)
		case errors.Is(err, services.ErrBuiltInDataset):
			respondWithError(w, http.StatusConflict, "Built-in datasets cannot be removed")
		default:
			respondWithError(w, http.StatusInternalServerError, "Failed to remove dataset: "+err.Error())
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
