package handler

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code such as CAMPAIGN_NOT_ACTIVE
// alongside the human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already out
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func respondSuccess(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusOK, data)
}

func respondCreated(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusCreated, data)
}

// respondAccepted answers requests whose work runs later on the job queue,
// such as a manual campaign pass.
func respondAccepted(w http.ResponseWriter, data any) {
	respondJSON(w, http.StatusAccepted, data)
}

// acknowledge answers provider callbacks with an empty 204 so Twilio and
// SendGrid do not retry them.
func acknowledge(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
