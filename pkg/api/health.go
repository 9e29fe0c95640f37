package api

import (
	"net/http"
	"time"
)

// Health reports service liveness. It touches no backing store, so it
// stays green while the database is down; readiness checks belong on the
// store's own Ping.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   h.config.ServiceName,
		Version:   h.config.Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
