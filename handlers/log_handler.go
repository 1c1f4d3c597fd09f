// backend/handlers/log_handler.go
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/parcelview/propertydata/backend/models"
)

const (
	defaultLogLimit = 50
	maxLogLimit     = 500
)

var validLogStatuses = map[string]bool{
	models.StatusInProgress: true,
	models.StatusSuccess:    true,
	models.StatusPartial:    true,
	models.StatusFailed:     true,
}

// ListLogsHandler returns the paginated sync history with aggregate counts.
// Expects GET to /api/sync/logs
// with optional query params: dataset_id, status, start_date, end_date,
// limit (default 50, max 500), offset.
func (a *API) ListLogsHandler(w http.ResponseWriter, r *http.Request) {
	q := models.LogQuery{
		DatasetID: r.URL.Query().Get("dataset_id"),
		Status:    r.URL.Query().Get("status"),
		Limit:     defaultLogLimit,
	}

	if q.Status != "" && !validLogStatuses[q.Status] {
		respondWithError(w, http.StatusBadRequest, "Invalid 'status' filter: "+q.Status)
		return
	}

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondWithError(w, http.StatusBadRequest, "'limit' must be a positive integer")
			return
		}
		if n > maxLogLimit {
			n = maxLogLimit
		}
		q.Limit = n
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondWithError(w, http.StatusBadRequest, "'offset' must be a non-negative integer")
			return
		}
		q.Offset = n
	}

	var err error
	if q.StartDate, err = parseLogDate(r.URL.Query().Get("start_date")); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'start_date': "+err.Error())
		return
	}
	if q.EndDate, err = parseLogEndDate(r.URL.Query().Get("end_date")); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid 'end_date': "+err.Error())
		return
	}

	logs, total, err := a.SyncLogs.List(q)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to list sync logs: "+err.Error())
		return
	}
	byStatus, byDataset, err := a.SyncLogs.AggregateCounts(q)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to aggregate sync logs: "+err.Error())
		return
	}

	respondWithJSON(w, http.StatusOK, models.LogListResponse{
		Logs:      logs,
		Total:     total,
		ByStatus:  byStatus,
		ByDataset: byDataset,
	})
}

// parseLogDate accepts RFC3339 or a bare YYYY-MM-DD day.
func parseLogDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// parseLogEndDate is parseLogDate, except a bare day means the whole day:
// the filter is inclusive, so midnight would silently drop that day's runs.
func parseLogEndDate(raw string) (*time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		end := t.Add(24*time.Hour - time.Second)
		return &end, nil
	}
	return parseLogDate(raw)
}
