package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
)

// CustomerProfile is the derived view of one customer and their enrollments
type CustomerProfile struct {
	Facts       *models.CustomerFacts `json:"facts"`
	Enrollments []*models.Recipient   `json:"enrollments"`
	CanSMS      bool                  `json:"can_sms"`
	CanEmail    bool                  `json:"can_email"`
}

// CustomerService exposes the read side of the customer store. Customers
// themselves are owned by the point-of-sale system.
type CustomerService interface {
	GetByID(ctx context.Context, id int64) (*models.Customer, error)
	GetProfile(ctx context.Context, id int64) (*CustomerProfile, error)
}

type customerService struct {
	customerRepo  repository.CustomerRepository
	recipientRepo repository.RecipientRepository
	logger        *slog.Logger
}

// NewCustomerService creates a new customer service
func NewCustomerService(
	customerRepo repository.CustomerRepository,
	recipientRepo repository.RecipientRepository,
	logger *slog.Logger,
) CustomerService {
	return &customerService{
		customerRepo:  customerRepo,
		recipientRepo: recipientRepo,
		logger:        logger,
	}
}

// GetByID retrieves a customer by ID
func (s *customerService) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	return s.customerRepo.GetByID(ctx, id)
}

// GetProfile retrieves a customer's derived facts and enrollment history
func (s *customerService) GetProfile(ctx context.Context, id int64) (*CustomerProfile, error) {
	facts, err := s.customerRepo.GetFacts(ctx, id)
	if err != nil {
		return nil, err
	}

	enrollments, err := s.recipientRepo.ListByCustomer(ctx, id)
	if err != nil {
		s.logger.Error("failed to load enrollments",
			slog.Int64("customer_id", id),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to load enrollments: %w", err)
	}

	return &CustomerProfile{
		Facts:       facts,
		Enrollments: enrollments,
		CanSMS:      CanContact(&facts.Customer, models.ChannelSMS),
		CanEmail:    CanContact(&facts.Customer, models.ChannelEmail),
	}, nil
}
