package models

import "time"

// RecipientStatus is the lifecycle state of one enrollment
type RecipientStatus string

// Recipient status constants. ACTIVE is the only non-terminal state.
const (
	RecipientActive    RecipientStatus = "ACTIVE"
	RecipientCompleted RecipientStatus = "COMPLETED"
	RecipientConverted RecipientStatus = "CONVERTED"
	RecipientOptedOut  RecipientStatus = "OPTED_OUT"
)

// Recipient ties one customer to one campaign's progress
type Recipient struct {
	ID              int64           `json:"id"`
	CampaignID      int64           `json:"campaign_id"`
	CustomerID      int64           `json:"customer_id"`
	EnrolledAt      time.Time       `json:"enrolled_at"`
	CurrentStep     int             `json:"current_step"`
	LastMessageAt   *time.Time      `json:"last_message_at,omitempty"`
	Status          RecipientStatus `json:"status"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	ConvertedAt     *time.Time      `json:"converted_at,omitempty"`
	ConversionValue *float64        `json:"conversion_value,omitempty"`
	OptedOutAt      *time.Time      `json:"opted_out_at,omitempty"`
}

// Terminal reports whether the recipient reached a final state
func (r *Recipient) Terminal() bool {
	return r.Status != RecipientActive
}

// EndedAt returns when the recipient reached its terminal state
func (r *Recipient) EndedAt() *time.Time {
	switch r.Status {
	case RecipientCompleted:
		return r.CompletedAt
	case RecipientConverted:
		return r.ConvertedAt
	case RecipientOptedOut:
		return r.OptedOutAt
	default:
		return nil
	}
}

// DueAt returns when the given step becomes sendable: delayDays after the
// later of enrollment and the previous send.
func (r *Recipient) DueAt(step DripStep) time.Time {
	base := r.EnrolledAt
	if r.LastMessageAt != nil && r.LastMessageAt.After(base) {
		base = *r.LastMessageAt
	}
	return base.Add(time.Duration(step.DelayDays) * 24 * time.Hour)
}

// IsEligible reports whether the step may be sent at now
func (r *Recipient) IsEligible(step DripStep, now time.Time) bool {
	return r.Status == RecipientActive && !now.Before(r.DueAt(step))
}

// CanEnroll applies the re-enrollment policy to every existing row of a
// (campaign, customer) pair. A fresh row is admitted only when each prior row
// is COMPLETED or CONVERTED and its cooldown has fully elapsed. OPTED_OUT
// blocks forever and a non-positive cooldown means enroll once.
func CanEnroll(history []*Recipient, cooldownDays int, now time.Time) bool {
	for _, r := range history {
		if !r.admitsReenrollment(cooldownDays, now) {
			return false
		}
	}
	return true
}

func (r *Recipient) admitsReenrollment(cooldownDays int, now time.Time) bool {
	if cooldownDays <= 0 {
		return false
	}
	if r.Status != RecipientCompleted && r.Status != RecipientConverted {
		return false
	}
	ended := r.EndedAt()
	if ended == nil {
		return false
	}
	return !now.Before(ended.Add(time.Duration(cooldownDays) * 24 * time.Hour))
}
