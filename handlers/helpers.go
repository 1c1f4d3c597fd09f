// backend/handlers/helpers.go
package handlers

import (
	"encoding/json"
	"log"
	"net/http"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Handler ERROR: Marshalling JSON response: %v", err)
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	log.Printf("Handler API Error %d: %s", code, message)
	respondWithJSON(w, code, map[string]string{"error": message})
}

// actingPrincipal identifies who triggered a mutating request, for the
// sync log's triggered_by column. There is no auth layer; this is an
// honesty-based header for operator attribution.
func actingPrincipal(r *http.Request) string {
	if who := r.Header.Get("X-Acting-User"); who != "" {
		return who
	}
	return "anonymous"
}
