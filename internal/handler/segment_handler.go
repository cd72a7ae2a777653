package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/catalog"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/segment"
	"github.com/Raymond9734/drip-campaign-engine/internal/service"
)

// SegmentHandler serves audience authoring helpers
type SegmentHandler struct {
	segmentService service.SegmentService
	logger         *slog.Logger
	now            func() time.Time
}

// NewSegmentHandler creates a new segment handler
func NewSegmentHandler(segmentService service.SegmentService, logger *slog.Logger) *SegmentHandler {
	return &SegmentHandler{
		segmentService: segmentService,
		logger:         logger,
		now:            time.Now,
	}
}

// CatalogResponse lists what campaign authors can reference
type CatalogResponse struct {
	CampaignTypes     []models.CampaignType `json:"campaign_types"`
	Fields            []segment.Field       `json:"fields"`
	TemplateVariables []string              `json:"template_variables"`
}

// PreviewSegment handles POST /segments/preview
func (h *SegmentHandler) PreviewSegment(w http.ResponseWriter, r *http.Request) {
	var req service.SegmentPreviewRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}
	if err := req.Validate(); err != nil {
		handleError(w, err, h.logger)
		return
	}

	preview, err := h.segmentService.Preview(r.Context(), req.Segment, h.now(), req.SampleSize)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, preview)
}

// Catalog handles GET /catalog
func (h *SegmentHandler) Catalog(w http.ResponseWriter, _ *http.Request) {
	respondSuccess(w, CatalogResponse{
		CampaignTypes:     catalog.Types(),
		Fields:            segment.Fields(),
		TemplateVariables: service.TemplateVariables(),
	})
}
