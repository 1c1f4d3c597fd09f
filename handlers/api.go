// backend/handlers/api.go
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/parcelview/propertydata/backend/database"
	"github.com/parcelview/propertydata/backend/services"
)

// API bundles the service layer for the HTTP handlers.
type API struct {
	Registry  *services.Registry
	Scorer    *services.FreshnessScorer
	Scheduler *services.RecommendationScheduler
	Executor  *services.SyncExecutor
	Pipeline  *services.IngestionPipeline
	Freshness services.FreshnessStore
	SyncLogs  services.SyncLogStore
}

// Routes returns the /api router.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", a.HealthHandler)

	r.Route("/sync", func(r chi.Router) {
		r.Get("/recommendations", a.RecommendationsHandler)
		r.Post("/execute", a.ExecuteRecommendedHandler)
		r.Post("/ingest", a.IngestHandler)
		r.Get("/logs", a.ListLogsHandler)
	})

	r.Route("/freshness", func(r chi.Router) {
		r.Get("/", a.ListFreshnessHandler)
		r.Post("/check", a.CheckFreshnessHandler)
	})

	r.Route("/datasets", func(r chi.Router) {
		r.Get("/", a.ListDatasetsHandler)
		r.Post("/", a.CreateDatasetHandler)
		r.Patch("/{datasetID}", a.UpdateDatasetHandler)
		r.Delete("/{datasetID}", a.DeleteDatasetHandler)
	})

	return r
}

// HealthHandler reports process liveness and database reachability.
func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if err := database.DB.PingContext(r.Context()); err != nil {
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": err.Error(),
		})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
