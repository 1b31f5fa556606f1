// src/handlers/recon_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/username/divrecon/src/config"
	"github.com/username/divrecon/src/logger"
	"github.com/username/divrecon/src/models"
	"github.com/username/divrecon/src/reports"
	"github.com/username/divrecon/src/services"
	"github.com/username/divrecon/src/utils"
)

type ReconHandler struct {
	reconService services.ReconService
}

func NewReconHandler(service services.ReconService) *ReconHandler {
	return &ReconHandler{
		reconService: service,
	}
}

// HandleReconcile accepts the two feeds as a multipart upload ("primary" and
// "custodian" file parts, optional "tolerance" field) and runs one full
// reconciliation pass.
func (h *ReconHandler) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.Cfg.MaxUploadSizeBytes)
	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		utils.SendJSONError(w, fmt.Sprintf("invalid multipart upload: %v", err), http.StatusBadRequest)
		return
	}

	primaryFile, _, err := r.FormFile("primary")
	if err != nil {
		utils.SendJSONError(w, "missing 'primary' feed file", http.StatusBadRequest)
		return
	}
	defer primaryFile.Close()

	custodianFile, _, err := r.FormFile("custodian")
	if err != nil {
		utils.SendJSONError(w, "missing 'custodian' feed file", http.StatusBadRequest)
		return
	}
	defer custodianFile.Close()

	tolerance := config.Cfg.Tolerance
	if raw := r.FormValue("tolerance"); raw != "" {
		tolerance, err = decimal.NewFromString(raw)
		if err != nil || tolerance.IsNegative() {
			utils.SendJSONError(w, fmt.Sprintf("invalid tolerance %q", raw), http.StatusBadRequest)
			return
		}
	}

	logger.L.Info("Handling reconciliation upload", "tolerance", tolerance.String())
	result, err := h.reconService.Run(r.Context(), primaryFile, custodianFile, tolerance)
	if err != nil {
		if errors.Is(err, services.ErrParsingFailed) || errors.Is(err, services.ErrMatchingFailed) {
			logger.L.Warn("Reconciliation rejected due to input fault", "error", err)
			utils.SendJSONError(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		logger.L.Error("Reconciliation run failed", "error", err)
		utils.SendJSONError(w, "reconciliation run failed", http.StatusInternalServerError)
		return
	}

	writeJSON(w, result)
}

// HandleGetBreaks returns the break list of the latest completed run.
func (h *ReconHandler) HandleGetBreaks(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latestResult(w)
	if !ok {
		return
	}
	breaks := result.Breaks
	if breaks == nil {
		breaks = []models.BreakDetail{}
	}
	writeWithETag(w, r, breaks)
}

// HandleGetTasks returns the agent task queue of the latest completed run.
func (h *ReconHandler) HandleGetTasks(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latestResult(w)
	if !ok {
		return
	}
	tasks := result.Tasks
	if tasks == nil {
		tasks = []models.AgentTask{}
	}
	writeWithETag(w, r, tasks)
}

// HandleGetReport returns the Markdown summary of the latest completed run.
func (h *ReconHandler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	result, ok := h.latestResult(w)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	fmt.Fprint(w, reports.MarkdownSummary(result))
}

func (h *ReconHandler) latestResult(w http.ResponseWriter) (*services.ReconResult, bool) {
	result, err := h.reconService.LatestResult()
	if err != nil {
		if errors.Is(err, services.ErrNoCompletedRun) {
			utils.SendJSONError(w, "no completed reconciliation run", http.StatusNotFound)
			return nil, false
		}
		logger.L.Error("Error loading latest reconciliation result", "error", err)
		utils.SendJSONError(w, "error loading latest reconciliation result", http.StatusInternalServerError)
		return nil, false
	}
	return result, true
}

func writeWithETag(w http.ResponseWriter, r *http.Request, data interface{}) {
	etag, err := utils.GenerateETag(data)
	if err == nil {
		w.Header().Set("ETag", etag)
		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	writeJSON(w, data)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Error encoding JSON response", "error", err)
	}
}
