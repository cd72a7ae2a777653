package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
	"github.com/Raymond9734/drip-campaign-engine/internal/transport"
)

// DispatchService records and sends one outbound message
type DispatchService interface {
	// Dispatch writes a PENDING message, calls the transport and records the
	// outcome. Transport failures are recorded on the returned message, never
	// returned; an error means the audit log itself could not be written.
	Dispatch(ctx context.Context, req models.DispatchRequest) (*models.Message, error)

	// RecordDelivery stamps a provider delivery receipt
	RecordDelivery(ctx context.Context, externalID string) (*models.Message, error)
}

type dispatchService struct {
	messageRepo  repository.MessageRepository
	campaignRepo repository.CampaignRepository
	transport    transport.Transport
	timeout      time.Duration
	metrics      *metrics.Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// NewDispatchService creates a new dispatch service. timeout bounds each
// transport call.
func NewDispatchService(
	messageRepo repository.MessageRepository,
	campaignRepo repository.CampaignRepository,
	t transport.Transport,
	timeout time.Duration,
	m *metrics.Metrics,
	logger *slog.Logger,
	opts ...Option,
) DispatchService {
	o := buildOptions(opts)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &dispatchService{
		messageRepo:  messageRepo,
		campaignRepo: campaignRepo,
		transport:    t,
		timeout:      timeout,
		metrics:      m,
		logger:       logger,
		now:          o.now,
	}
}

func (s *dispatchService) Dispatch(ctx context.Context, req models.DispatchRequest) (*models.Message, error) {
	if !models.IsValidChannel(req.Channel) {
		return nil, models.ErrInvalidInput(fmt.Sprintf("invalid channel: %s", req.Channel))
	}

	message := &models.Message{
		CampaignID: req.CampaignID,
		CustomerID: req.CustomerID,
		Channel:    req.Channel,
		To:         req.To,
		Subject:    req.Subject,
		Body:       req.Body,
		StepIndex:  req.StepIndex,
		RunID:      req.RunID,
		Status:     models.MessageStatusPending,
	}

	if err := s.messageRepo.Create(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to record pending message: %w", err)
	}

	subject := ""
	if req.Subject != nil {
		subject = *req.Subject
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
	externalID, sendErr := s.transport.Send(sendCtx, transport.Message{
		Channel: req.Channel,
		To:      req.To,
		Subject: subject,
		Body:    req.Body,
	})
	cancel()

	at := s.now()
	if sendErr != nil {
		s.logger.Warn("message send failed",
			slog.Int64("message_id", message.ID),
			slog.Int64("customer_id", req.CustomerID),
			slog.String("channel", string(req.Channel)),
			slog.String("error", sendErr.Error()),
		)
		s.metrics.RecordMessage(string(req.Channel), string(models.MessageStatusFailed))

		errText := sendErr.Error()
		if err := s.messageRepo.MarkFailed(ctx, message.ID, errText, at); err != nil {
			return nil, fmt.Errorf("failed to record message failure: %w", err)
		}
		message.Status = models.MessageStatusFailed
		message.LastError = &errText
		message.FailedAt = &at
		return message, nil
	}

	var extID *string
	if externalID != "" {
		extID = &externalID
	}
	if err := s.messageRepo.MarkSent(ctx, message.ID, extID, at); err != nil {
		return nil, fmt.Errorf("failed to record message sent: %w", err)
	}
	s.metrics.RecordMessage(string(req.Channel), string(models.MessageStatusSent))

	s.logger.Debug("message sent",
		slog.Int64("message_id", message.ID),
		slog.Int64("customer_id", req.CustomerID),
		slog.String("channel", string(req.Channel)),
	)

	message.Status = models.MessageStatusSent
	message.ExternalID = extID
	message.SentAt = &at
	return message, nil
}

// RecordDelivery marks the message delivered and bumps its campaign's
// delivered total
func (s *dispatchService) RecordDelivery(ctx context.Context, externalID string) (*models.Message, error) {
	if externalID == "" {
		return nil, models.ErrInvalidInput("external id is required")
	}

	message, err := s.messageRepo.MarkDelivered(ctx, externalID, s.now())
	if err != nil {
		return nil, err
	}
	s.metrics.RecordDelivery()

	if message.CampaignID != nil {
		if err := s.campaignRepo.AddTotals(ctx, *message.CampaignID, models.CampaignTotals{Delivered: 1}); err != nil {
			s.logger.Error("failed to update delivered total",
				slog.Int64("campaign_id", *message.CampaignID),
				slog.String("error", err.Error()),
			)
		}
	}

	return message, nil
}
