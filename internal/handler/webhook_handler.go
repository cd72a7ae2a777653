package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/service"
)

// WebhookHandler receives provider callbacks: inbound SMS replies and
// delivery receipts
type WebhookHandler struct {
	optOutService   service.OptOutService
	dispatchService service.DispatchService
	logger          *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(optOutService service.OptOutService, dispatchService service.DispatchService, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		optOutService:   optOutService,
		dispatchService: dispatchService,
		logger:          logger,
	}
}

// InboundSMSResponse reports whether an inbound reply opted its sender out
type InboundSMSResponse struct {
	OptedOut           bool  `json:"opted_out"`
	CustomerID         int64 `json:"customer_id,omitempty"`
	RecipientsOptedOut int64 `json:"recipients_opted_out,omitempty"`
}

// DeliveryReceipt is the provider-neutral delivery callback body
type DeliveryReceipt struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// sendGridEvent is one entry of a SendGrid event webhook batch
type sendGridEvent struct {
	Event       string `json:"event"`
	SGMessageID string `json:"sg_message_id"`
}

// InboundSMS handles POST /webhooks/sms-inbound. Twilio posts a form with
// From and Body; a JSON body with from/body is accepted too.
func (h *WebhookHandler) InboundSMS(w http.ResponseWriter, r *http.Request) {
	var from, body string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			From string `json:"from"`
			Body string `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
			return
		}
		from, body = req.From, req.Body
	} else {
		if err := r.ParseForm(); err != nil {
			respondError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
			return
		}
		from, body = r.PostForm.Get("From"), r.PostForm.Get("Body")
	}

	if from == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "from is required")
		return
	}

	result, err := h.optOutService.HandleInboundSMS(r.Context(), from, body)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	response := InboundSMSResponse{}
	if result != nil {
		response.OptedOut = true
		response.CustomerID = result.CustomerID
		response.RecipientsOptedOut = result.RecipientsOptedOut
	}
	respondSuccess(w, response)
}

// Delivery handles POST /webhooks/delivery with a DeliveryReceipt body
func (h *WebhookHandler) Delivery(w http.ResponseWriter, r *http.Request) {
	var req DeliveryReceipt
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}
	if req.ExternalID == "" {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "external_id is required")
		return
	}

	if req.Status != "" && !strings.EqualFold(req.Status, "delivered") {
		respondJSON(w, http.StatusOK, map[string]bool{"recorded": false})
		return
	}

	recorded, err := h.recordDelivery(r, req.ExternalID)
	if err != nil {
		handleError(w, err, h.logger)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"recorded": recorded})
}

// TwilioStatus handles POST /webhooks/twilio-status status callbacks
func (h *WebhookHandler) TwilioStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return
	}

	if r.PostForm.Get("MessageStatus") != "delivered" {
		acknowledge(w)
		return
	}

	if _, err := h.recordDelivery(r, r.PostForm.Get("MessageSid")); err != nil {
		handleError(w, err, h.logger)
		return
	}

	acknowledge(w)
}

// SendGridEvents handles POST /webhooks/sendgrid-events batches
func (h *WebhookHandler) SendGridEvents(w http.ResponseWriter, r *http.Request) {
	var events []sendGridEvent
	if err := json.NewDecoder(r.Body).Decode(&events); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid JSON format")
		return
	}

	for _, event := range events {
		if event.Event != "delivered" || event.SGMessageID == "" {
			continue
		}

		// sg_message_id extends the X-Message-Id returned at send time
		externalID, _, _ := strings.Cut(event.SGMessageID, ".")
		if _, err := h.recordDelivery(r, externalID); err != nil {
			handleError(w, err, h.logger)
			return
		}
	}

	acknowledge(w)
}

// recordDelivery treats unknown and already-delivered ids as no-ops so
// provider retries are harmless
func (h *WebhookHandler) recordDelivery(r *http.Request, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}

	_, err := h.dispatchService.RecordDelivery(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.logger.Debug("delivery receipt ignored", slog.String("external_id", externalID))
			return false, nil
		}
		return false, err
	}

	return true, nil
}
