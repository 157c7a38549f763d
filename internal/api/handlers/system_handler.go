package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"invoicerag/internal/conversation"
	"invoicerag/internal/vectorindex"
)

type SystemHandler struct {
	index    *vectorindex.Index
	sessions *conversation.Manager
}

func NewSystemHandler(index *vectorindex.Index, sessions *conversation.Manager) *SystemHandler {
	return &SystemHandler{index: index, sessions: sessions}
}

// Root reports system identity plus headline counters.
func (h *SystemHandler) Root(w http.ResponseWriter, r *http.Request) {
	stats := h.index.Statistics()
	sessionStats := h.sessions.Statistics()

	writeJSON(w, map[string]any{
		"message": "Invoice Reimbursement System API",
		"version": "1.0.0",
		"status":  "running",
		"statistics": map[string]any{
			"total_analyses":      stats.TotalAnalyses,
			"active_sessions":     sessionStats.ActiveSessions,
			"employees_processed": len(stats.Employees),
			"total_reimbursed":    stats.TotalReimbursed,
		},
	})
}

// Statistics returns the full index and session aggregates.
func (h *SystemHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"vector_store":  h.index.Statistics(),
		"conversations": h.sessions.Statistics(),
	})
}

// Health is the liveness probe.
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"records":   h.index.Count(),
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
