package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
	"github.com/Raymond9734/drip-campaign-engine/internal/transport"
)

// Opt-out sources
const (
	OptOutSourceSMSStop          = "sms_stop"
	OptOutSourceEmailUnsubscribe = "email_unsubscribe"
	OptOutSourceStaff            = "staff"
	OptOutSourceImport           = "import"
)

var stopKeywords = map[string]bool{
	"STOP":        true,
	"STOPALL":     true,
	"UNSUBSCRIBE": true,
	"CANCEL":      true,
	"END":         true,
	"QUIT":        true,
}

// CanContact reports whether a customer may receive marketing on channel:
// never when opted out; SMS needs consent and a phone, EMAIL consent and an address.
func CanContact(c *models.Customer, channel models.Channel) bool {
	if c == nil || c.OptedOut {
		return false
	}
	switch channel {
	case models.ChannelSMS:
		return c.SMSConsent && strings.TrimSpace(c.PhoneNumber()) != ""
	case models.ChannelEmail:
		return c.EmailConsent && strings.TrimSpace(c.EmailAddress()) != ""
	default:
		return false
	}
}

// IsValidOptOutSource checks if the opt-out source is valid
func IsValidOptOutSource(source string) bool {
	switch source {
	case OptOutSourceSMSStop, OptOutSourceEmailUnsubscribe, OptOutSourceStaff, OptOutSourceImport:
		return true
	default:
		return false
	}
}

// OptOutResult describes the effect of one opt-out
type OptOutResult struct {
	CustomerID         int64 `json:"customer_id"`
	RecipientsOptedOut int64 `json:"recipients_opted_out"`
}

// OptOutService marks customers globally uncontactable
type OptOutService interface {
	CanContact(customer *models.Customer, channel models.Channel) bool
	ProcessOptOut(ctx context.Context, customerID int64, source, reason string) (*OptOutResult, error)
	HandleInboundSMS(ctx context.Context, from, body string) (*OptOutResult, error)
}

type optOutService struct {
	customerRepo repository.CustomerRepository
	region       string
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewOptOutService creates a new opt-out service. region is the default
// region used to normalize inbound phone numbers.
func NewOptOutService(
	customerRepo repository.CustomerRepository,
	region string,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) OptOutService {
	o := buildOptions(opts)
	return &optOutService{
		customerRepo: customerRepo,
		region:       region,
		metrics:      m,
		logger:       logger,
		now:          o.now,
	}
}

func (s *optOutService) CanContact(customer *models.Customer, channel models.Channel) bool {
	return CanContact(customer, channel)
}

// ProcessOptOut sets the customer's opt-out flag and, in the same
// transaction, moves every ACTIVE enrollment of the customer to OPTED_OUT
func (s *optOutService) ProcessOptOut(ctx context.Context, customerID int64, source, reason string) (*OptOutResult, error) {
	if !IsValidOptOutSource(source) {
		return nil, models.ErrInvalidInput(fmt.Sprintf("invalid opt-out source: %s", source))
	}

	transitioned, err := s.customerRepo.OptOut(ctx, customerID, source, reason, s.now())
	if err != nil {
		return nil, err
	}

	s.metrics.RecordOptOut(source)
	s.logger.Info("customer opted out",
		slog.Int64("customer_id", customerID),
		slog.String("source", source),
		slog.Int64("recipients_opted_out", transitioned),
	)

	return &OptOutResult{CustomerID: customerID, RecipientsOptedOut: transitioned}, nil
}

// HandleInboundSMS opts out the sender when the message is a stop keyword.
// It returns nil with no error when the message is not a stop request or the
// sender is not a known customer.
func (s *optOutService) HandleInboundSMS(ctx context.Context, from, body string) (*OptOutResult, error) {
	// The whole reply must be the keyword; "Cancel my appointment" is not a stop
	keyword := strings.ToUpper(strings.Trim(strings.TrimSpace(body), ".!"))
	if !stopKeywords[keyword] {
		return nil, nil
	}

	phone, err := transport.NormalizePhone(from, s.region)
	if err != nil {
		return nil, models.ErrInvalidInput(fmt.Sprintf("invalid sender number: %s", from))
	}

	customer, err := s.customerRepo.GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("stop keyword from unknown number", slog.String("from", phone))
			return nil, nil
		}
		return nil, err
	}

	return s.ProcessOptOut(ctx, customer.ID, OptOutSourceSMSStop, "replied "+keyword)
}
