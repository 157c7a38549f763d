package handlers

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"invoicerag/internal/core/archive"
	"invoicerag/internal/vectorindex"
)

type DocumentHandler struct {
	index    *vectorindex.Index
	archiver archive.Archiver // nil when archival is disabled
}

func NewDocumentHandler(index *vectorindex.Index, archiver archive.Archiver) *DocumentHandler {
	return &DocumentHandler{index: index, archiver: archiver}
}

// Download streams the archived original PDF for an analyzed invoice.
func (h *DocumentHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		http.Error(w, "document archival is not enabled", http.StatusNotFound)
		return
	}

	recordID := chi.URLParam(r, "record_id")
	rec, ok := h.index.Get(recordID)
	if !ok {
		http.Error(w, "record not found", http.StatusNotFound)
		return
	}
	if rec.ArchiveKey == "" {
		http.Error(w, "no archived document for this record", http.StatusNotFound)
		return
	}

	data, err := h.archiver.Fetch(r.Context(), rec.ArchiveKey)
	if err != nil {
		http.Error(w, fmt.Sprintf("fetch document: %v", err), http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.InvoiceFilename))
	w.Write(data)
}
