package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/internal/pipeline"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// AnalysisHandler handles analysis request and polling endpoints
// ⭐ SSOT: 분석 API 핸들러는 여기서만
type AnalysisHandler struct {
	orchestrator *pipeline.Orchestrator
	logger       *logger.Logger
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(orch *pipeline.Orchestrator, log *logger.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		orchestrator: orch,
		logger:       log,
	}
}

// analysisRequest is the POST /api/analysis body
type analysisRequest struct {
	InstrumentKey string  `json:"instrument_key"`
	StockName     string  `json:"stock_name"`
	StockSymbol   string  `json:"stock_symbol"`
	CurrentPrice  float64 `json:"current_price"`
	AnalysisType  string  `json:"analysis_type"`
	UserID        string  `json:"user_id"`
	Plan          string  `json:"plan"`
	Notify        bool    `json:"notify"`
}

// Request starts (or reuses) an analysis for one instrument
// POST /api/analysis
func (h *AnalysisHandler) Request(w http.ResponseWriter, r *http.Request) {
	var body analysisRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orchestrator.RequestAnalysis(r.Context(), pipeline.Request{
		InstrumentKey: body.InstrumentKey,
		StockName:     body.StockName,
		StockSymbol:   body.StockSymbol,
		CurrentPrice:  body.CurrentPrice,
		Type:          contracts.AnalysisType(body.AnalysisType),
		UserID:        body.UserID,
		Plan:          body.Plan,
		Notify:        contracts.NotifyPolicy{Enabled: body.Notify, Channel: "websocket"},
	})
	if err != nil {
		h.respondAnalysisError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    result,
	})
}

// Status returns the current record for polling
// GET /api/analysis/{instrument}/{type}
func (h *AnalysisHandler) Status(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	instrumentKey := vars["instrument"]
	analysisType := contracts.AnalysisType(vars["type"])

	if !analysisType.IsValid() {
		respondError(w, http.StatusBadRequest, "invalid analysis type")
		return
	}

	record, err := h.orchestrator.GetAnalysisStatus(r.Context(), instrumentKey, analysisType)
	if err != nil {
		if errors.Is(err, contracts.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no analysis for this instrument")
			return
		}
		h.logger.WithError(err).Error("Status lookup failed")
		respondError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    record,
	})
}

// respondAnalysisError maps domain errors to HTTP statuses
func (h *AnalysisHandler) respondAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case contracts.IsQuotaExceeded(err):
		respondJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	case contracts.IsInsufficientData(err):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
	case contracts.IsExternalService(err), contracts.IsSchemaViolation(err):
		h.logger.WithError(err).Error("Pipeline dependency failed")
		respondError(w, http.StatusBadGateway, "analysis pipeline temporarily unavailable")
	default:
		h.logger.WithError(err).Error("Analysis request failed")
		respondError(w, http.StatusBadRequest, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
