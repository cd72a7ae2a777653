package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Raymond9734/drip-campaign-engine/internal/service"
)

// CustomerHandler handles customer lookups and staff opt-outs
type CustomerHandler struct {
	customerService service.CustomerService
	optOutService   service.OptOutService
	logger          *slog.Logger
}

// NewCustomerHandler creates a new customer handler
func NewCustomerHandler(customerService service.CustomerService, optOutService service.OptOutService, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{
		customerService: customerService,
		optOutService:   optOutService,
		logger:          logger,
	}
}

// GetCustomer handles GET /customers/{id}
func (h *CustomerHandler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID")
		return
	}

	profile, err := h.customerService.GetProfile(r.Context(), id)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, profile)
}

// OptOut handles POST /customers/{id}/opt-out
func (h *CustomerHandler) OptOut(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_ID", "Invalid customer ID")
		return
	}

	var req service.OptOutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}
	req.CustomerID = id
	if req.Source == "" {
		req.Source = service.OptOutSourceStaff
	}
	if err := req.Validate(); err != nil {
		handleError(w, err, h.logger)
		return
	}

	result, err := h.optOutService.ProcessOptOut(r.Context(), req.CustomerID, req.Source, req.Reason)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondSuccess(w, result)
}
