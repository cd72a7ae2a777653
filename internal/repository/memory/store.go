// Package memory implements the repository interfaces over process memory.
// Segment predicates are evaluated with segment.QuerySpec.Match, so a Store
// answers the same questions as the PostgreSQL repositories without a database.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
)

// Store holds every table behind one mutex
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	campaigns  map[int64]*models.Campaign
	customers  map[int64]*models.CustomerFacts
	orders     []*models.Order
	recipients []*models.Recipient
	messages   []*models.Message
	runs       []*models.CampaignRun

	nextCampaignID  int64
	nextCustomerID  int64
	nextOrderID     int64
	nextRecipientID int64
	nextMessageID   int64
	nextRunID       int64
}

// New creates an empty store
func New() *Store {
	return &Store{
		now:       time.Now,
		campaigns: make(map[int64]*models.Campaign),
		customers: make(map[int64]*models.CustomerFacts),
	}
}

// SetClock overrides the clock used for generated timestamps
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Campaigns returns the campaign repository view of the store
func (s *Store) Campaigns() repository.CampaignRepository { return &campaignRepo{s} }

// Customers returns the customer repository view of the store
func (s *Store) Customers() repository.CustomerRepository { return &customerRepo{s} }

// Recipients returns the recipient repository view of the store
func (s *Store) Recipients() repository.RecipientRepository { return &recipientRepo{s} }

// Messages returns the message repository view of the store
func (s *Store) Messages() repository.MessageRepository { return &messageRepo{s} }

// Runs returns the run repository view of the store
func (s *Store) Runs() repository.RunRepository { return &runRepo{s} }

// AddCustomer seeds a customer with its derived facts and returns its ID
func (s *Store) AddCustomer(facts models.CustomerFacts) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if facts.ID == 0 {
		s.nextCustomerID++
		facts.ID = s.nextCustomerID
	} else if facts.ID > s.nextCustomerID {
		s.nextCustomerID = facts.ID
	}
	if facts.CreatedAt.IsZero() {
		facts.CreatedAt = s.now()
	}
	s.customers[facts.ID] = &facts
	return facts.ID
}

// AddOrder seeds an order and returns its ID
func (s *Store) AddOrder(order models.Order) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextOrderID++
	order.ID = s.nextOrderID
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now()
	}
	s.orders = append(s.orders, &order)
	return order.ID
}

// RecipientsOf returns copies of every recipient row of a campaign
func (s *Store) RecipientsOf(campaignID int64) []models.Recipient {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Recipient{}
	for _, r := range s.recipients {
		if r.CampaignID == campaignID {
			out = append(out, *r)
		}
	}
	return out
}

// MessagesTo returns copies of every message addressed to a customer
func (s *Store) MessagesTo(customerID int64) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []models.Message{}
	for _, m := range s.messages {
		if m.CustomerID == customerID {
			out = append(out, *m)
		}
	}
	return out
}

// factsLocked returns a copy of a customer's facts with last_contacted_at
// derived from the SENT messages in the store
func (s *Store) factsLocked(id int64) (*models.CustomerFacts, bool) {
	f, ok := s.customers[id]
	if !ok {
		return nil, false
	}
	cp := *f
	for _, m := range s.messages {
		if m.CustomerID != id || m.Status != models.MessageStatusSent || m.SentAt == nil {
			continue
		}
		if cp.LastContactedAt == nil || m.SentAt.After(*cp.LastContactedAt) {
			sent := *m.SentAt
			cp.LastContactedAt = &sent
		}
	}
	return &cp, true
}

func (s *Store) sortedCustomerIDsLocked() []int64 {
	ids := make([]int64, 0, len(s.customers))
	for id := range s.customers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
