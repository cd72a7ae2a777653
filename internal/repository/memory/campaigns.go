package memory

import (
	"context"
	"fmt"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

type campaignRepo struct{ s *Store }

func (r *campaignRepo) Create(_ context.Context, campaign *models.Campaign) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextCampaignID++
	campaign.ID = r.s.nextCampaignID
	campaign.CreatedAt = r.s.now()
	campaign.UpdatedAt = campaign.CreatedAt
	cp := *campaign
	r.s.campaigns[cp.ID] = &cp
	return nil
}

func (r *campaignRepo) GetByID(_ context.Context, id int64) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	cp := *c
	return &cp, nil
}

func (r *campaignRepo) ListByStatus(_ context.Context, status models.CampaignStatus) ([]*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*models.Campaign{}
	for id := int64(1); id <= r.s.nextCampaignID; id++ {
		c, ok := r.s.campaigns[id]
		if ok && c.Status == status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *campaignRepo) UpdateStatus(_ context.Context, id int64, status models.CampaignStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	now := r.s.now()
	c.Status = status
	c.UpdatedAt = now
	if status == models.CampaignStatusActive && c.ActivatedAt == nil {
		c.ActivatedAt = &now
	}
	return nil
}

func (r *campaignRepo) AddTotals(_ context.Context, id int64, delta models.CampaignTotals) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.campaigns[id]
	if !ok {
		return models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	c.Totals.Sent += delta.Sent
	c.Totals.Delivered += delta.Delivered
	c.Totals.Converted += delta.Converted
	c.Totals.RevenueAttributed += delta.RevenueAttributed
	return nil
}
