package memory

import (
	"context"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

type runRepo struct{ s *Store }

func (r *runRepo) Create(_ context.Context, run *models.CampaignRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextRunID++
	run.ID = r.s.nextRunID
	cp := *run
	r.s.runs = append(r.s.runs, &cp)
	return nil
}

func (r *runRepo) ListByCampaign(_ context.Context, campaignID int64, limit int) ([]*models.CampaignRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*models.CampaignRun{}
	for i := len(r.s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.runs[i].CampaignID == campaignID {
			cp := *r.s.runs[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}
