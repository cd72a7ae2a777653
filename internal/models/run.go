package models

import (
	"fmt"
	"time"
)

// CampaignRun is the append-only summary of one pass over one campaign
type CampaignRun struct {
	ID                 int64     `json:"id"`
	RunID              string    `json:"run_id"`
	CampaignID         int64     `json:"campaign_id"`
	RecipientsFound    int       `json:"recipients_found"`
	RecipientsEnrolled int       `json:"recipients_enrolled"`
	MessagesQueued     int       `json:"messages_queued"`
	MessagesSent       int       `json:"messages_sent"`
	MessagesFailed     int       `json:"messages_failed"`
	Skipped            int       `json:"skipped"`
	Completed          int       `json:"completed"`
	Converted          int       `json:"converted"`
	DurationMs         int64     `json:"duration_ms"`
	Error              *string   `json:"error,omitempty"`
	StartedAt          time.Time `json:"started_at"`
	FinishedAt         time.Time `json:"finished_at"`
}

// Summary renders a human-readable line for operational notifications
func (r *CampaignRun) Summary(campaignName string) string {
	if r.Error != nil {
		return fmt.Sprintf("Campaign %q (#%d) pass failed after %dms: %s (enrolled %d, sent %d, failed %d)",
			campaignName, r.CampaignID, r.DurationMs, *r.Error, r.RecipientsEnrolled, r.MessagesSent, r.MessagesFailed)
	}
	return fmt.Sprintf("Campaign %q (#%d) pass complete in %dms: found %d, enrolled %d, queued %d, sent %d, failed %d, completed %d, converted %d",
		campaignName, r.CampaignID, r.DurationMs, r.RecipientsFound, r.RecipientsEnrolled,
		r.MessagesQueued, r.MessagesSent, r.MessagesFailed, r.Completed, r.Converted)
}
