package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CampaignStatus is the authoring lifecycle of a campaign
type CampaignStatus string

// Campaign status constants
const (
	CampaignStatusDraft    CampaignStatus = "DRAFT"
	CampaignStatusActive   CampaignStatus = "ACTIVE"
	CampaignStatusPaused   CampaignStatus = "PAUSED"
	CampaignStatusArchived CampaignStatus = "ARCHIVED"
)

// EnrollmentMode controls how recipients join a campaign
type EnrollmentMode string

// Enrollment mode constants
const (
	EnrollmentAuto   EnrollmentMode = "auto"
	EnrollmentManual EnrollmentMode = "manual"
)

// CampaignType selects the default segment and drip sequence of a campaign
type CampaignType string

// Campaign represents a drip campaign
type Campaign struct {
	ID               int64              `json:"id"`
	Name             string             `json:"name"`
	Type             CampaignType       `json:"type"`
	Status           CampaignStatus     `json:"status"`
	EnrollmentMode   EnrollmentMode     `json:"enrollment_mode"`
	StopOnConversion bool               `json:"stop_on_conversion"`
	CooldownDays     int                `json:"cooldown_days"`
	Segment          *SegmentDefinition `json:"segment,omitempty"`
	Steps            StepList           `json:"steps,omitempty"`
	Totals           CampaignTotals     `json:"totals"`
	ActivatedAt      *time.Time         `json:"activated_at,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// CampaignTotals holds the running counters of a campaign.
// It doubles as a delta when passed to CampaignRepository.AddTotals.
type CampaignTotals struct {
	Sent              int64   `json:"sent"`
	Delivered         int64   `json:"delivered"`
	Converted         int64   `json:"converted"`
	RevenueAttributed float64 `json:"revenue_attributed"`
}

// IsZero reports whether no counter would change
func (t CampaignTotals) IsZero() bool {
	return t.Sent == 0 && t.Delivered == 0 && t.Converted == 0 && t.RevenueAttributed == 0
}

// Validate performs validation on campaign data
func (c *Campaign) Validate() error {
	if c.Name == "" {
		return ErrInvalidInput("name is required")
	}
	if c.Type == "" {
		return ErrInvalidInput("type is required")
	}
	if c.Status != "" && !IsValidCampaignStatus(c.Status) {
		return ErrInvalidInput(fmt.Sprintf("invalid status: %s", c.Status))
	}
	if c.EnrollmentMode != "" && c.EnrollmentMode != EnrollmentAuto && c.EnrollmentMode != EnrollmentManual {
		return ErrInvalidInput(fmt.Sprintf("invalid enrollment_mode: %s (must be 'auto' or 'manual')", c.EnrollmentMode))
	}
	if c.CooldownDays < 0 {
		return ErrInvalidInput("cooldown_days cannot be negative")
	}
	return nil
}

// IsValidCampaignStatus checks if the campaign status is valid
func IsValidCampaignStatus(status CampaignStatus) bool {
	switch status {
	case CampaignStatusDraft, CampaignStatusActive, CampaignStatusPaused, CampaignStatusArchived:
		return true
	default:
		return false
	}
}

// CanActivate checks if a campaign may move to ACTIVE
func (c *Campaign) CanActivate() bool {
	return c.Status == CampaignStatusDraft || c.Status == CampaignStatusPaused
}

// Value implements driver.Valuer so a step override is stored as JSONB
func (l StepList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for a JSONB step override
func (l *StepList) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil || data == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(data, l)
}

// Value implements driver.Valuer so a segment override is stored as JSONB
func (d *SegmentDefinition) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Scan implements sql.Scanner for a JSONB segment override
func (d *SegmentDefinition) Scan(src any) error {
	data, err := jsonBytes(src)
	if err != nil || data == nil {
		return err
	}
	return json.Unmarshal(data, d)
}

func jsonBytes(src any) ([]byte, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported JSON column type %T", src)
	}
}
