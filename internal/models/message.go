package models

import "time"

// MessageStatus is the outcome of one dispatch attempt
type MessageStatus string

// Message status constants
const (
	MessageStatusPending MessageStatus = "PENDING"
	MessageStatusSent    MessageStatus = "SENT"
	MessageStatusFailed  MessageStatus = "FAILED"
)

// Message is the audit record of one dispatch attempt. Rows are never deleted.
type Message struct {
	ID          int64         `json:"id"`
	CampaignID  *int64        `json:"campaign_id,omitempty"`
	CustomerID  int64         `json:"customer_id"`
	Channel     Channel       `json:"channel"`
	To          string        `json:"to"`
	Subject     *string       `json:"subject,omitempty"`
	Body        string        `json:"body"`
	StepIndex   *int          `json:"step_index,omitempty"`
	RunID       *string       `json:"run_id,omitempty"`
	Status      MessageStatus `json:"status"`
	ExternalID  *string       `json:"external_id,omitempty"`
	LastError   *string       `json:"last_error,omitempty"`
	SentAt      *time.Time    `json:"sent_at,omitempty"`
	FailedAt    *time.Time    `json:"failed_at,omitempty"`
	DeliveredAt *time.Time    `json:"delivered_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// MessageFilter holds filtering options for listing messages
type MessageFilter struct {
	CampaignID int64
	CustomerID int64
	Status     MessageStatus
	Page       int
	PageSize   int
}

// IsValidMessageStatus checks if the message status is valid
func IsValidMessageStatus(status MessageStatus) bool {
	switch status {
	case MessageStatusPending, MessageStatusSent, MessageStatusFailed:
		return true
	default:
		return false
	}
}

// DispatchRequest carries everything the dispatch gateway needs for one send
type DispatchRequest struct {
	CampaignID *int64
	CustomerID int64
	Channel    Channel
	To         string
	Subject    *string
	Body       string
	StepIndex  *int
	RunID      *string
}
