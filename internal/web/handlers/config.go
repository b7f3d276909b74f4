package handlers

import (
	"net/http"

	"github.com/deep-saket/color-matching/internal/catalog"
	"github.com/deep-saket/color-matching/internal/config"
	"github.com/deep-saket/color-matching/internal/embedding"
	"github.com/deep-saket/color-matching/internal/segment"
)

// ConfigHandler reports the active matching configuration.
type ConfigHandler struct {
	config  *config.Config
	catalog *catalog.Catalog
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, cat *catalog.Catalog) *ConfigHandler {
	return &ConfigHandler{
		config:  cfg,
		catalog: cat,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	EmbeddingProvider     string   `json:"embedding_provider"`
	EmbeddingProviders    []string `json:"embedding_providers"`
	SegmentationProvider  string   `json:"segmentation_provider"`
	SegmentationProviders []string `json:"segmentation_providers"`
	Threshold             float64  `json:"threshold"`
	PatchWidth            int      `json:"patch_width"`
	PatchHeight           int      `json:"patch_height"`
	StrideX               int      `json:"stride_x"`
	StrideY               int      `json:"stride_y"`
	Workers               int      `json:"workers"`
	Swatches              int      `json:"swatches"`
	EmbeddingDim          int      `json:"embedding_dim"`
}

// Get returns the active configuration. Zero strides are reported as the
// patch size they default to.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	m := h.config.Matching
	resp := ConfigResponse{
		EmbeddingProvider:     h.catalog.Provider(),
		EmbeddingProviders:    embedding.Keys(),
		SegmentationProvider:  h.config.Segmentation.Provider,
		SegmentationProviders: segment.Keys(),
		Threshold:             m.Threshold,
		PatchWidth:            m.PatchWidth,
		PatchHeight:           m.PatchHeight,
		StrideX:               orDefault(m.StrideX, m.PatchWidth),
		StrideY:               orDefault(m.StrideY, m.PatchHeight),
		Workers:               m.Workers,
		Swatches:              h.catalog.Len(),
		EmbeddingDim:          h.catalog.Dim(),
	}
	respondJSON(w, http.StatusOK, resp)
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
