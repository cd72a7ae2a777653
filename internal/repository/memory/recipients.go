package memory

import (
	"context"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

type recipientRepo struct{ s *Store }

func (r *recipientRepo) EnrollIfAbsent(_ context.Context, campaignID int64, customerIDs []int64, cooldownDays int, at time.Time) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	enrolled := 0
	for _, customerID := range customerIDs {
		var history []*models.Recipient
		for _, rec := range r.s.recipients {
			if rec.CampaignID == campaignID && rec.CustomerID == customerID {
				history = append(history, rec)
			}
		}
		if !models.CanEnroll(history, cooldownDays, at) {
			continue
		}
		r.s.nextRecipientID++
		r.s.recipients = append(r.s.recipients, &models.Recipient{
			ID:          r.s.nextRecipientID,
			CampaignID:  campaignID,
			CustomerID:  customerID,
			EnrolledAt:  at,
			CurrentStep: 0,
			Status:      models.RecipientActive,
		})
		enrolled++
	}
	return enrolled, nil
}

func (r *recipientRepo) ListActive(_ context.Context, campaignID int64) ([]*models.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*models.Recipient{}
	for _, rec := range r.s.recipients {
		if rec.CampaignID == campaignID && rec.Status == models.RecipientActive {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *recipientRepo) ListByCustomer(_ context.Context, customerID int64) ([]*models.Recipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := []*models.Recipient{}
	for _, rec := range r.s.recipients {
		if rec.CustomerID == customerID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *recipientRepo) find(id int64) *models.Recipient {
	for _, rec := range r.s.recipients {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func (r *recipientRepo) Advance(_ context.Context, id int64, fromStep, toStep int, at time.Time, complete bool) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec := r.find(id)
	if rec == nil || rec.Status != models.RecipientActive || rec.CurrentStep != fromStep {
		return false, nil
	}
	rec.CurrentStep = toStep
	rec.LastMessageAt = &at
	if complete {
		rec.Status = models.RecipientCompleted
		rec.CompletedAt = &at
	}
	return true, nil
}

func (r *recipientRepo) MarkConverted(_ context.Context, id int64, value float64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec := r.find(id)
	if rec == nil || rec.Status != models.RecipientActive {
		return false, nil
	}
	rec.Status = models.RecipientConverted
	rec.ConvertedAt = &at
	rec.ConversionValue = &value
	return true, nil
}

func (r *recipientRepo) Complete(_ context.Context, id int64, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	rec := r.find(id)
	if rec == nil || rec.Status != models.RecipientActive {
		return false, nil
	}
	rec.Status = models.RecipientCompleted
	rec.CompletedAt = &at
	return true, nil
}
