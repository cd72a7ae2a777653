package models

import "time"

// Job trigger sources
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerActivate = "activate"
)

// CampaignJob asks a worker to run one pass over a campaign. A zero
// CampaignID means every ACTIVE campaign.
type CampaignJob struct {
	CampaignID  int64     `json:"campaign_id"`
	Trigger     string    `json:"trigger"`
	RequestedAt time.Time `json:"requested_at"`
}
