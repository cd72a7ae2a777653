package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/segment"
)

type customerRepo struct{ s *Store }

func (r *customerRepo) GetByID(_ context.Context, id int64) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.customers[id]
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", id))
	}
	c := f.Customer
	return &c, nil
}

func (r *customerRepo) GetByPhone(_ context.Context, phone string) (*models.Customer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, id := range r.s.sortedCustomerIDsLocked() {
		f := r.s.customers[id]
		if f.PhoneNumber() == phone {
			c := f.Customer
			return &c, nil
		}
	}
	return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with phone %s not found", phone))
}

func (r *customerRepo) GetFacts(_ context.Context, id int64) (*models.CustomerFacts, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.factsLocked(id)
	if !ok {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", id))
	}
	return f, nil
}

func (r *customerRepo) matching(spec *segment.QuerySpec) []*models.CustomerFacts {
	out := []*models.CustomerFacts{}
	for _, id := range r.s.sortedCustomerIDsLocked() {
		f, _ := r.s.factsLocked(id)
		if spec.Match(f) {
			out = append(out, f)
		}
	}
	return out
}

func (r *customerRepo) FindMatching(_ context.Context, spec *segment.QuerySpec) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := []int64{}
	for _, f := range r.matching(spec) {
		ids = append(ids, f.ID)
	}
	return ids, nil
}

func (r *customerRepo) CountMatching(_ context.Context, spec *segment.QuerySpec) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return int64(len(r.matching(spec))), nil
}

func (r *customerRepo) SampleMatching(_ context.Context, spec *segment.QuerySpec, limit int) ([]models.CustomerSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	sample := []models.CustomerSummary{}
	for _, f := range r.matching(spec) {
		if len(sample) >= limit {
			break
		}
		sample = append(sample, models.CustomerSummary{
			ID:        f.ID,
			FirstName: f.FirstName,
			LastName:  f.LastName,
			Email:     f.Email,
			Phone:     f.Phone,
		})
	}
	return sample, nil
}

func (r *customerRepo) FirstQualifyingOrder(_ context.Context, customerID int64, since time.Time) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var first *models.Order
	for _, o := range r.s.orders {
		if o.CustomerID != customerID || !o.Qualifies() || o.CreatedAt.Before(since) {
			continue
		}
		if first == nil || o.CreatedAt.Before(first.CreatedAt) {
			first = o
		}
	}
	if first == nil {
		return nil, nil
	}
	cp := *first
	return &cp, nil
}

func (r *customerRepo) OptOut(_ context.Context, customerID int64, source, reason string, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	f, ok := r.s.customers[customerID]
	if !ok {
		return 0, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", customerID))
	}
	f.OptedOut = true
	if f.OptOutSource == nil {
		f.OptOutSource = &source
	}
	if f.OptOutReason == nil && reason != "" {
		f.OptOutReason = &reason
	}
	if f.OptedOutAt == nil {
		f.OptedOutAt = &at
	}

	var transitioned int64
	for _, rec := range r.s.recipients {
		if rec.CustomerID == customerID && rec.Status == models.RecipientActive {
			rec.Status = models.RecipientOptedOut
			stamp := at
			rec.OptedOutAt = &stamp
			transitioned++
		}
	}
	return transitioned, nil
}
