// backend/handlers/sync_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/parcelview/propertydata/backend/models"
	"github.com/parcelview/propertydata/backend/services"
)

// IngestHandler triggers one ingestion run and waits for it.
// Expects POST to /api/sync/ingest
// with JSON body: {"dataset_id": "ipu4-2q9a", "full_sync": false, "limit": 0}
func (a *API) IngestHandler(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	defer r.Body.Close()

	if req.DatasetID == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'dataset_id' in request body")
		return
	}
	if req.Limit < 0 {
		respondWithError(w, http.StatusBadRequest, "'limit' must not be negative")
		return
	}

	entry, err := a.Pipeline.Ingest(r.Context(), req.DatasetID, services.IngestOptions{
		FullSync:    req.FullSync,
		Limit:       req.Limit,
		TriggeredBy: actingPrincipal(r),
	})
	if err != nil {
		if errors.Is(err, services.ErrSyncInProgress) {
			respondWithError(w, http.StatusConflict, "A sync for this dataset is already in progress")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Ingestion failed: "+err.Error())
		return
	}

	// The run itself may have failed; that outcome lives in the entry,
	// not in the HTTP status.
	respondWithJSON(w, http.StatusOK, entry)
}

// ExecuteRecommendedHandler generates the sync plan and executes it.
// Expects POST to /api/sync/execute
// with JSON body: {"max_concurrent": 3, "max_duration_seconds": 300}
// An empty body runs with the configured defaults.
func (a *API) ExecuteRecommendedHandler(w http.ResponseWriter, r *http.Request) {
	var req models.ExecuteRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}
	defer r.Body.Close()

	if req.MaxConcurrent < 0 {
		respondWithError(w, http.StatusBadRequest, "'max_concurrent' must not be negative")
		return
	}

	// Omitted duration means "use the default"; an explicit 0 means the
	// budget is already spent and everything queued gets skipped.
	maxDuration := time.Duration(-1)
	if req.MaxDurationSeconds != nil {
		if *req.MaxDurationSeconds < 0 {
			respondWithError(w, http.StatusBadRequest, "'max_duration_seconds' must not be negative")
			return
		}
		maxDuration = time.Duration(*req.MaxDurationSeconds) * time.Second
	}

	summary, err := a.Executor.ExecuteRecommended(r.Context(), req.MaxConcurrent, maxDuration, actingPrincipal(r))
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Sync pass failed: "+err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}
