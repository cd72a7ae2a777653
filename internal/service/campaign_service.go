package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/catalog"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/queue"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
)

// CampaignService handles campaign authoring and reporting
type CampaignService interface {
	Create(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error)
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	List(ctx context.Context, status models.CampaignStatus) (*CampaignListResult, error)
	Archive(ctx context.Context, id int64) (*models.Campaign, error)
	PreviewPersonalized(ctx context.Context, campaignID int64, req *PreviewRequest) (*PreviewResult, error)
	ListRuns(ctx context.Context, campaignID int64, limit int) ([]*models.CampaignRun, error)
	ListMessages(ctx context.Context, filter models.MessageFilter) (*MessageListResult, error)

	// RequestPass queues a processing pass for a worker to pick up
	RequestPass(ctx context.Context, campaignID int64) (*RunPassResult, error)
}

type campaignService struct {
	campaignRepo repository.CampaignRepository
	customerRepo repository.CustomerRepository
	messageRepo  repository.MessageRepository
	runRepo      repository.RunRepository
	templateSvc  TemplateService
	segmentSvc   SegmentService
	queueClient  queue.Client
	logger       *slog.Logger
	now          func() time.Time
}

// NewCampaignService creates a new campaign service
func NewCampaignService(
	campaignRepo repository.CampaignRepository,
	customerRepo repository.CustomerRepository,
	messageRepo repository.MessageRepository,
	runRepo repository.RunRepository,
	templateSvc TemplateService,
	segmentSvc SegmentService,
	queueClient queue.Client,
	logger *slog.Logger,
	opts ...Option,
) CampaignService {
	o := buildOptions(opts)
	return &campaignService{
		campaignRepo: campaignRepo,
		customerRepo: customerRepo,
		messageRepo:  messageRepo,
		runRepo:      runRepo,
		templateSvc:  templateSvc,
		segmentSvc:   segmentSvc,
		queueClient:  queueClient,
		logger:       logger,
		now:          o.now,
	}
}

// Create creates a new DRAFT campaign
func (s *campaignService) Create(ctx context.Context, req *CreateCampaignRequest) (*models.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	campaignType := models.CampaignType(req.Type)
	entry := catalog.Lookup(campaignType)
	if !catalog.Known(campaignType) && len(req.Steps) == 0 {
		s.logger.Warn("unknown campaign type without steps; using generic content",
			slog.String("type", req.Type),
		)
	}

	for _, step := range req.Steps {
		if err := s.templateSvc.ValidateTemplate(step.TemplateBody); err != nil {
			return nil, err
		}
		if step.Channel == models.ChannelEmail {
			if err := s.templateSvc.ValidateTemplate(step.TemplateSubject); err != nil {
				return nil, err
			}
		}
	}

	if req.Segment != nil {
		if _, err := s.segmentSvc.Compile(req.Segment, s.now()); err != nil {
			return nil, err
		}
	}

	campaign := &models.Campaign{
		Name:             req.Name,
		Type:             campaignType,
		EnrollmentMode:   models.EnrollmentMode(req.EnrollmentMode),
		StopOnConversion: entry.StopOnConversion,
		CooldownDays:     entry.CooldownDays,
		Segment:          req.Segment,
	}
	if req.StopOnConversion != nil {
		campaign.StopOnConversion = *req.StopOnConversion
	}
	if req.CooldownDays != nil {
		campaign.CooldownDays = *req.CooldownDays
	}
	if len(req.Steps) > 0 {
		campaign.Steps = req.Steps.Normalize()
	}
	catalog.ApplyDefaults(campaign)

	if err := campaign.Validate(); err != nil {
		return nil, err
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		s.logger.Error("failed to create campaign",
			slog.String("error", err.Error()),
			slog.String("name", req.Name),
		)
		return nil, fmt.Errorf("failed to create campaign: %w", err)
	}

	s.logger.Info("campaign created",
		slog.Int64("campaign_id", campaign.ID),
		slog.String("name", campaign.Name),
		slog.String("type", string(campaign.Type)),
	)

	return campaign, nil
}

// GetByID retrieves a campaign with its running totals
func (s *campaignService) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	return s.campaignRepo.GetByID(ctx, id)
}

// List retrieves campaigns in one status, ACTIVE by default
func (s *campaignService) List(ctx context.Context, status models.CampaignStatus) (*CampaignListResult, error) {
	if status == "" {
		status = models.CampaignStatusActive
	}
	if !models.IsValidCampaignStatus(status) {
		return nil, models.ErrInvalidInput(fmt.Sprintf("invalid status: %s", status))
	}

	campaigns, err := s.campaignRepo.ListByStatus(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}

	return &CampaignListResult{Data: campaigns, Status: status}, nil
}

// Archive retires a campaign for good
func (s *campaignService) Archive(ctx context.Context, id int64) (*models.Campaign, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == models.CampaignStatusArchived {
		return campaign, nil
	}

	if err := s.campaignRepo.UpdateStatus(ctx, id, models.CampaignStatusArchived); err != nil {
		return nil, err
	}

	s.logger.Info("campaign archived", slog.Int64("campaign_id", id))

	return s.campaignRepo.GetByID(ctx, id)
}

// PreviewPersonalized renders one step of a campaign for one customer
func (s *campaignService) PreviewPersonalized(ctx context.Context, campaignID int64, req *PreviewRequest) (*PreviewResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	step, ok := catalog.StepsFor(campaign).At(req.StepIndex)
	if !ok {
		return nil, models.ErrInvalidInput(fmt.Sprintf("campaign has no step %d", req.StepIndex))
	}

	customer, err := s.customerRepo.GetByID(ctx, req.CustomerID)
	if err != nil {
		return nil, err
	}

	templateToUse := step.TemplateBody
	if req.OverrideTemplate != nil && *req.OverrideTemplate != "" {
		templateToUse = *req.OverrideTemplate
		if err := s.templateSvc.ValidateTemplate(templateToUse); err != nil {
			return nil, err
		}
	}

	vars, err := s.templateSvc.Resolve(ctx, customer.ID)
	if err != nil {
		return nil, err
	}

	result := &PreviewResult{
		Channel:         step.Channel,
		RenderedMessage: s.templateSvc.Render(templateToUse, vars),
		UsedTemplate:    templateToUse,
		Customer: &CustomerPreview{
			ID:        customer.ID,
			FirstName: customer.FirstName,
			LastName:  customer.LastName,
			Phone:     customer.Phone,
			Email:     customer.Email,
		},
	}
	if step.Channel == models.ChannelEmail {
		subject := s.templateSvc.Render(step.TemplateSubject, vars)
		result.Subject = &subject
	}

	return result, nil
}

// ListRuns returns the most recent pass summaries of a campaign
func (s *campaignService) ListRuns(ctx context.Context, campaignID int64, limit int) ([]*models.CampaignRun, error) {
	if _, err := s.campaignRepo.GetByID(ctx, campaignID); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	return s.runRepo.ListByCampaign(ctx, campaignID, limit)
}

// ListMessages retrieves the dispatch audit log with pagination
func (s *campaignService) ListMessages(ctx context.Context, filter models.MessageFilter) (*MessageListResult, error) {
	if filter.Status != "" && !models.IsValidMessageStatus(filter.Status) {
		return nil, models.ErrInvalidInput(fmt.Sprintf("invalid status: %s", filter.Status))
	}

	models.NormalizePage(&filter.Page, &filter.PageSize)

	messages, totalCount, err := s.messageRepo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	return &MessageListResult{
		Data:       messages,
		Pagination: models.NewPaginationResult(filter.Page, filter.PageSize, totalCount),
	}, nil
}

// RequestPass queues a manual pass over an ACTIVE campaign
func (s *campaignService) RequestPass(ctx context.Context, campaignID int64) (*RunPassResult, error) {
	campaign, err := s.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, models.ErrConflictWithMsg(
			fmt.Sprintf("campaign with status '%s' cannot be processed", campaign.Status),
		)
	}

	job := &models.CampaignJob{
		CampaignID:  campaign.ID,
		Trigger:     models.TriggerManual,
		RequestedAt: s.now(),
	}
	if err := s.queueClient.Publish(ctx, job); err != nil {
		s.logger.Error("failed to queue campaign pass",
			slog.Int64("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to queue campaign pass: %w", err)
	}

	s.logger.Info("campaign pass queued",
		slog.Int64("campaign_id", campaign.ID),
		slog.String("trigger", job.Trigger),
	)

	return &RunPassResult{CampaignID: campaign.ID, Status: "queued"}, nil
}
