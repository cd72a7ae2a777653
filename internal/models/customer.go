package models

import "time"

// Customer represents a customer in the store
type Customer struct {
	ID           int64      `json:"id"`
	FirstName    string     `json:"first_name"`
	LastName     string     `json:"last_name"`
	Email        *string    `json:"email,omitempty"`
	Phone        *string    `json:"phone,omitempty"`
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty"`
	City         string     `json:"city"`
	SMSConsent   bool       `json:"sms_consent"`
	EmailConsent bool       `json:"email_consent"`
	OptedOut     bool       `json:"opted_out"`
	OptOutReason *string    `json:"opt_out_reason,omitempty"`
	OptOutSource *string    `json:"opt_out_source,omitempty"`
	OptedOutAt   *time.Time `json:"opted_out_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// FullName joins first and last name
func (c *Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// PhoneNumber returns the phone or an empty string
func (c *Customer) PhoneNumber() string {
	if c.Phone == nil {
		return ""
	}
	return *c.Phone
}

// EmailAddress returns the email or an empty string
func (c *Customer) EmailAddress() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}

// CustomerFacts is the derived per-customer projection that segment fields
// and template variables are computed from. Nil pointers mean "no such fact".
type CustomerFacts struct {
	Customer

	LastOrderAt        *time.Time `json:"last_order_at,omitempty"`
	LastOrderBrand     *string    `json:"last_order_brand,omitempty"`
	LastOrderModel     *string    `json:"last_order_model,omitempty"`
	OrderCount         int64      `json:"order_count"`
	OrderValue         float64    `json:"order_value"`
	LastExamAt         *time.Time `json:"last_exam_at,omitempty"`
	InsuranceProvider  *string    `json:"insurance_provider,omitempty"`
	InsuranceRenewalAt *time.Time `json:"insurance_renewal_at,omitempty"`
	RxExpiresAt        *time.Time `json:"rx_expires_at,omitempty"`
	ReferralCode       *string    `json:"referral_code,omitempty"`
	ReferralCount      int64      `json:"referral_count"`
	LastContactedAt    *time.Time `json:"last_contacted_at,omitempty"`
}

// CustomerSummary is the preview row returned by a segment sample
type CustomerSummary struct {
	ID        int64   `json:"id"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

// Order status constants
const (
	OrderStatusDraft     = "draft"
	OrderStatusCancelled = "cancelled"
	OrderStatusCompleted = "completed"
)

// Order is the part of an order the engine reads for conversion detection
type Order struct {
	ID         int64     `json:"id"`
	CustomerID int64     `json:"customer_id"`
	Status     string    `json:"status"`
	Total      float64   `json:"total"`
	CreatedAt  time.Time `json:"created_at"`
}

// Qualifies reports whether the order counts as a conversion
func (o *Order) Qualifies() bool {
	return o.Status != OrderStatusDraft && o.Status != OrderStatusCancelled
}
