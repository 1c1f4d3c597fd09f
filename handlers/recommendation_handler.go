// backend/handlers/recommendation_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/services"
)

// RecommendationsHandler returns the tiered sync plan.
// Expects GET to /api/sync/recommendations
func (a *API) RecommendationsHandler(w http.ResponseWriter, r *http.Request) {
	plan, err := a.Scheduler.GenerateSyncRecommendations()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to generate recommendations: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, plan)
}

// ListFreshnessHandler returns the last known freshness record for every
// dataset, sorted by dataset id for stable output.
// Expects GET to /api/freshness
func (a *API) ListFreshnessHandler(w http.ResponseWriter, r *http.Request) {
	byDataset, err := a.Freshness.ListFreshness()
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load freshness records: "+err.Error())
		return
	}

	records := make([]models.FreshnessRecord, 0, len(byDataset))
	for _, rec := range byDataset {
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DatasetID < records[j].DatasetID })
	respondWithJSON(w, http.StatusOK, records)
}

// CheckFreshnessHandler runs a freshness probe on demand.
// Expects POST to /api/freshness/check
// with optional JSON body: {"dataset_id": "ipu4-2q9a"}; an empty body
// checks every active dataset.
func (a *API) CheckFreshnessHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DatasetID string `json:"dataset_id"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	defer r.Body.Close()

	if req.DatasetID != "" {
		cfg, err := a.Registry.Get(req.DatasetID)
		if err != nil {
			if errors.Is(err, services.ErrDatasetNotFound) {
				respondWithError(w, http.StatusNotFound, "Unknown dataset: "+req.DatasetID)
				return
			}
			respondWithError(w, http.StatusInternalServerError, "Failed to load dataset: "+err.Error())
			return
		}
		rec := a.Scorer.CheckDataset(r.Context(), cfg)
		respondWithJSON(w, http.StatusOK, rec)
		return
	}

	records, err := a.Scorer.CheckAll(r.Context())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Freshness check failed: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}
