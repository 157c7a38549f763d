package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"invoicerag/internal/config"
	"invoicerag/internal/services"
)

type AnalysisHandler struct {
	analysis *services.AnalysisService
	cfg      *config.Config
}

func NewAnalysisHandler(analysis *services.AnalysisService, cfg *config.Config) *AnalysisHandler {
	return &AnalysisHandler{analysis: analysis, cfg: cfg}
}

// AnalyzeInvoices handles the multipart upload of a policy PDF and a ZIP of
// invoice PDFs, analyzes every invoice against the policy and reports
// per-item results.
func (h *AnalysisHandler) AnalyzeInvoices(w http.ResponseWriter, r *http.Request) {
	maxBytes := int64(h.cfg.MaxFileSizeMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, 2*maxBytes)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	employeeName := strings.TrimSpace(r.FormValue("employee_name"))
	if employeeName == "" {
		http.Error(w, "employee_name is required", http.StatusBadRequest)
		return
	}

	policyData, err := h.readUpload(r, "policy_file", ".pdf", maxBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	zipData, err := h.readUpload(r, "invoices_zip", ".zip", maxBytes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log.Printf("analysis: starting batch for employee %s", employeeName)

	resp, err := h.analysis.AnalyzeBatch(r.Context(), employeeName, policyData, zipData)
	if err != nil {
		http.Error(w, fmt.Sprintf("analysis failed: %v", err), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (h *AnalysisHandler) readUpload(r *http.Request, field, wantExt string, maxBytes int64) ([]byte, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, fmt.Errorf("%s is required", field)
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), wantExt) {
		return nil, fmt.Errorf("%s must be a %s file", field, strings.TrimPrefix(wantExt, "."))
	}
	if header.Size > maxBytes {
		return nil, fmt.Errorf("%s too large", field)
	}

	data, err := io.ReadAll(io.LimitReader(file, maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", field, err)
	}
	return data, nil
}
