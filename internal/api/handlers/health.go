package handlers

import (
	"net/http"
	"time"

	"github.com/finbase/exchange-core/internal/api/models"
)

var startTime = time.Now()

// Health handles health check requests
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:        "healthy",
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(startTime).Seconds()),
		Version:       "1.0.0",
	})
}
