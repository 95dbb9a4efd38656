package handlers

import (
	"net/http"

	"github.com/wonny/pythia/backend/internal/pipeline"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// QuotaHandler exposes non-consuming quota checks
type QuotaHandler struct {
	orchestrator *pipeline.Orchestrator
	logger       *logger.Logger
}

// NewQuotaHandler creates a new quota handler
func NewQuotaHandler(orch *pipeline.Orchestrator, log *logger.Logger) *QuotaHandler {
	return &QuotaHandler{
		orchestrator: orch,
		logger:       log,
	}
}

// Check reports the user's quota state without consuming a slot
// GET /api/quota?user_id=...&plan=free&instrument_key=KRX|005930
func (h *QuotaHandler) Check(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	if userID == "" {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	plan := q.Get("plan")
	instrumentKey := q.Get("instrument_key")

	decision, err := h.orchestrator.CheckQuota(r.Context(), userID, plan, instrumentKey)
	if err != nil {
		h.logger.WithError(err).Error("Quota check failed")
		respondError(w, http.StatusInternalServerError, "quota check failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    decision,
	})
}
