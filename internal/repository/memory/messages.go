package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

type messageRepo struct{ s *Store }

func (r *messageRepo) Create(_ context.Context, message *models.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextMessageID++
	message.ID = r.s.nextMessageID
	message.CreatedAt = r.s.now()
	cp := *message
	r.s.messages = append(r.s.messages, &cp)
	return nil
}

func (r *messageRepo) find(id int64) (*models.Message, error) {
	for _, m := range r.s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("message with ID %d not found", id))
}

func (r *messageRepo) GetByID(_ context.Context, id int64) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, err := r.find(id)
	if err != nil {
		return nil, err
	}
	cp := *m
	return &cp, nil
}

func (r *messageRepo) List(_ context.Context, filter models.MessageFilter) ([]*models.Message, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	models.NormalizePage(&filter.Page, &filter.PageSize)

	matched := []*models.Message{}
	for _, m := range r.s.messages {
		if filter.CampaignID > 0 && (m.CampaignID == nil || *m.CampaignID != filter.CampaignID) {
			continue
		}
		if filter.CustomerID > 0 && m.CustomerID != filter.CustomerID {
			continue
		}
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		cp := *m
		matched = append(matched, &cp)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID > matched[j].ID })

	total := int64(len(matched))
	offset := models.PageOffset(filter.Page, filter.PageSize)
	if offset >= len(matched) {
		return []*models.Message{}, total, nil
	}
	end := offset + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *messageRepo) MarkSent(_ context.Context, id int64, externalID *string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, err := r.find(id)
	if err != nil {
		return err
	}
	m.Status = models.MessageStatusSent
	m.ExternalID = externalID
	m.SentAt = &at
	m.LastError = nil
	return nil
}

func (r *messageRepo) MarkFailed(_ context.Context, id int64, lastError string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, err := r.find(id)
	if err != nil {
		return err
	}
	m.Status = models.MessageStatusFailed
	m.LastError = &lastError
	m.FailedAt = &at
	return nil
}

func (r *messageRepo) MarkDelivered(_ context.Context, externalID string, at time.Time) (*models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, m := range r.s.messages {
		if m.ExternalID != nil && *m.ExternalID == externalID && m.DeliveredAt == nil {
			m.DeliveredAt = &at
			cp := *m
			return &cp, nil
		}
	}
	return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("undelivered message with external ID %s not found", externalID))
}
