package handlers

import (
	"net/http"

	"github.com/wonny/pythia/backend/pkg/database"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// HealthHandler reports process and dependency health
type HealthHandler struct {
	db     *database.DB // nil when running without PostgreSQL
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.DB, log *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: log}
}

// Check returns server health status
// GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{
		"status":  "ok",
		"service": "pythia-api",
	}

	if h.db != nil {
		status, err := h.db.HealthCheck(r.Context())
		body["database"] = status
		if err != nil {
			h.logger.WithError(err).Warn("Database health check failed")
			body["status"] = "degraded"
			respondJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}

	respondJSON(w, http.StatusOK, body)
}
