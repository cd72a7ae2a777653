package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/service"
)

// CampaignHandler handles campaign HTTP requests
type CampaignHandler struct {
	campaignService service.CampaignService
	engine          service.CampaignEngine
	logger          *slog.Logger
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignService service.CampaignService, engine service.CampaignEngine, logger *slog.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignService,
		engine:          engine,
		logger:          logger,
	}
}

// CreateCampaign handles POST /campaigns
func (h *CampaignHandler) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req service.CreateCampaignRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	campaign, err := h.campaignService.Create(r.Context(), &req)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondCreated(w, campaign)
}

// ListCampaigns handles GET /campaigns?status=ACTIVE
func (h *CampaignHandler) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := models.CampaignStatus(r.URL.Query().Get("status"))

	result, err := h.campaignService.List(r.Context(), status)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// GetCampaign handles GET /campaigns/{id}
func (h *CampaignHandler) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.GetByID(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, campaign)
}

// ActivateCampaign handles POST /campaigns/{id}/activate
func (h *CampaignHandler) ActivateCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.engine.ActivateCampaign(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, campaign)
}

// PauseCampaign handles POST /campaigns/{id}/pause
func (h *CampaignHandler) PauseCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.engine.PauseCampaign(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, campaign)
}

// ArchiveCampaign handles POST /campaigns/{id}/archive
func (h *CampaignHandler) ArchiveCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	campaign, err := h.campaignService.Archive(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, campaign)
}

// ProcessCampaign handles POST /campaigns/{id}/process by queueing a pass
func (h *CampaignHandler) ProcessCampaign(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	result, err := h.campaignService.RequestPass(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondAccepted(w, result)
}

// EnrollCustomers handles POST /campaigns/{id}/enroll
func (h *CampaignHandler) EnrollCustomers(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req service.EnrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}
	if err := req.Validate(); err != nil {
		handleError(w, err, h.logger)
		return
	}

	enrolled, err := h.engine.EnrollManual(r.Context(), id, req.CustomerIDs)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, service.EnrollResult{
		CampaignID: id,
		Requested:  len(req.CustomerIDs),
		Enrolled:   enrolled,
	})
}

// ListRuns handles GET /campaigns/{id}/runs
func (h *CampaignHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	runs, err := h.campaignService.ListRuns(r.Context(), id, limit)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, runs)
}

// ListMessages handles GET /campaigns/{id}/messages
func (h *CampaignHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))
	customerID, _ := strconv.ParseInt(query.Get("customer_id"), 10, 64)

	filter := models.MessageFilter{
		CampaignID: id,
		CustomerID: customerID,
		Status:     models.MessageStatus(query.Get("status")),
		Page:       page,
		PageSize:   pageSize,
	}

	result, err := h.campaignService.ListMessages(r.Context(), filter)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

// PreviewPersonalized handles POST /campaigns/{id}/personalized-preview
func (h *CampaignHandler) PreviewPersonalized(w http.ResponseWriter, r *http.Request) {
	id, ok := campaignID(w, r)
	if !ok {
		return
	}

	var req service.PreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	result, err := h.campaignService.PreviewPersonalized(r.Context(), id, &req)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}

func campaignID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid campaign ID")
		return 0, false
	}
	return id, true
}

// pathID extracts the numeric {id} route parameter
func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, strconv.ErrRange
	}
	return id, nil
}
