package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/labels"
)

// SwatchesHandler lists the reference swatches.
type SwatchesHandler struct {
	catalog *catalog.Catalog
	labels  labels.Labels
}

// NewSwatchesHandler creates a new swatches handler.
func NewSwatchesHandler(cat *catalog.Catalog, lbl labels.Labels) *SwatchesHandler {
	return &SwatchesHandler{catalog: cat, labels: lbl}
}

// SwatchResponse describes one swatch.
type SwatchResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Dim         int    `json:"dim"`
}

func (h *SwatchesHandler) swatch(sw catalog.Swatch) SwatchResponse {
	desc, _ := h.labels.Describe(sw.Name)
	return SwatchResponse{Name: sw.Name, Description: desc, Dim: len(sw.Embedding)}
}

// List returns all swatches in catalog order.
func (h *SwatchesHandler) List(w http.ResponseWriter, r *http.Request) {
	out := make([]SwatchResponse, 0, h.catalog.Len())
	for _, sw := range h.catalog.Swatches() {
		out = append(out, h.swatch(sw))
	}
	respondJSON(w, http.StatusOK, out)
}

// Get returns one swatch by file name.
func (h *SwatchesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sw, ok := h.catalog.Get(name)
	if !ok {
		respondError(w, http.StatusNotFound, "swatch not found")
		return
	}
	respondJSON(w, http.StatusOK, h.swatch(sw))
}
