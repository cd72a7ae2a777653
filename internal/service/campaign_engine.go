package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Raymond9734/drip-campaign-engine/internal/catalog"
	"github.com/Raymond9734/drip-campaign-engine/internal/metrics"
	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/notify"
	"github.com/Raymond9734/drip-campaign-engine/internal/queue"
	"github.com/Raymond9734/drip-campaign-engine/internal/repository"
)

// CampaignEngine drives processing passes over drip campaigns
type CampaignEngine interface {
	// ProcessCampaign runs one pass over one ACTIVE campaign: enroll new
	// segment matches, dispatch due steps, detect conversions, then persist
	// the run summary and campaign totals
	ProcessCampaign(ctx context.Context, campaignID int64) (*models.CampaignRun, error)

	// ProcessAllCampaigns runs an independent pass over every ACTIVE
	// campaign. One campaign's failure never aborts the others.
	ProcessAllCampaigns(ctx context.Context) ([]*models.CampaignRun, error)

	ActivateCampaign(ctx context.Context, campaignID int64) (*models.Campaign, error)
	PauseCampaign(ctx context.Context, campaignID int64) (*models.Campaign, error)
	EnrollManual(ctx context.Context, campaignID int64, customerIDs []int64) (int, error)
}

// EngineConfig holds tunables for the campaign engine
type EngineConfig struct {
	// LockTTL bounds how long one pass may hold its campaign lock
	LockTTL time.Duration
	// NotifyTimeout bounds each notification sink call
	NotifyTimeout time.Duration
}

type campaignEngine struct {
	campaignRepo  repository.CampaignRepository
	customerRepo  repository.CustomerRepository
	recipientRepo repository.RecipientRepository
	runRepo       repository.RunRepository
	segmentSvc    SegmentService
	templateSvc   TemplateService
	dispatchSvc   DispatchService
	locker        queue.Locker
	sink          notify.Sink
	metrics       *metrics.Metrics
	logger        *slog.Logger
	cfg           EngineConfig
	now           func() time.Time
}

// NewCampaignEngine creates a new campaign engine
func NewCampaignEngine(
	campaignRepo repository.CampaignRepository,
	customerRepo repository.CustomerRepository,
	recipientRepo repository.RecipientRepository,
	runRepo repository.RunRepository,
	segmentSvc SegmentService,
	templateSvc TemplateService,
	dispatchSvc DispatchService,
	locker queue.Locker,
	sink notify.Sink,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg EngineConfig,
	opts ...Option,
) CampaignEngine {
	o := buildOptions(opts)
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = 5 * time.Second
	}

	return &campaignEngine{
		campaignRepo:  campaignRepo,
		customerRepo:  customerRepo,
		recipientRepo: recipientRepo,
		runRepo:       runRepo,
		segmentSvc:    segmentSvc,
		templateSvc:   templateSvc,
		dispatchSvc:   dispatchSvc,
		locker:        locker,
		sink:          sink,
		metrics:       m,
		logger:        logger,
		cfg:           cfg,
		now:           o.now,
	}
}

func lockName(campaignID int64) string {
	return fmt.Sprintf("campaign:%d", campaignID)
}

// ProcessCampaign runs one pass over one campaign
func (e *campaignEngine) ProcessCampaign(ctx context.Context, campaignID int64) (*models.CampaignRun, error) {
	campaign, err := e.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusActive {
		return nil, &models.AppError{
			Code:    "CONFLICT",
			Message: fmt.Sprintf("campaign %d is %s", campaign.ID, campaign.Status),
			Err:     models.ErrCampaignNotActive,
		}
	}

	release, err := e.locker.Acquire(ctx, lockName(campaign.ID), e.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, queue.ErrLockHeld) {
			e.metrics.RecordPass("skipped", 0)
			return nil, &models.AppError{
				Code:    "CONFLICT",
				Message: fmt.Sprintf("campaign %d already has a pass in progress", campaign.ID),
				Err:     models.ErrPassInProgress,
			}
		}
		return nil, fmt.Errorf("failed to lock campaign: %w", err)
	}
	defer release()

	wallStart := time.Now()
	run := &models.CampaignRun{
		RunID:      uuid.NewString(),
		CampaignID: campaign.ID,
		StartedAt:  e.now(),
	}
	totals := models.CampaignTotals{}

	e.logger.Info("campaign pass started",
		slog.Int64("campaign_id", campaign.ID),
		slog.String("run_id", run.RunID),
		slog.String("type", string(campaign.Type)),
	)

	passErr := e.runPass(ctx, campaign, run, &totals)

	run.FinishedAt = e.now()
	run.DurationMs = time.Since(wallStart).Milliseconds()
	outcome := "ok"
	if passErr != nil {
		outcome = "error"
		msg := passErr.Error()
		run.Error = &msg
	}

	// Progress is committed per recipient, so the summary is written even
	// when the caller's context is already done.
	persistCtx := context.WithoutCancel(ctx)
	if err := e.runRepo.Create(persistCtx, run); err != nil {
		e.logger.Error("failed to persist campaign run",
			slog.Int64("campaign_id", campaign.ID),
			slog.String("run_id", run.RunID),
			slog.String("error", err.Error()),
		)
	}
	if err := e.campaignRepo.AddTotals(persistCtx, campaign.ID, totals); err != nil {
		e.logger.Error("failed to update campaign totals",
			slog.Int64("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}

	e.metrics.RecordPass(outcome, time.Since(wallStart))
	e.notify(persistCtx, campaign, run)

	logAttrs := []any{
		slog.Int64("campaign_id", campaign.ID),
		slog.String("run_id", run.RunID),
		slog.Int("found", run.RecipientsFound),
		slog.Int("enrolled", run.RecipientsEnrolled),
		slog.Int("sent", run.MessagesSent),
		slog.Int("failed", run.MessagesFailed),
		slog.Int("skipped", run.Skipped),
		slog.Int("completed", run.Completed),
		slog.Int("converted", run.Converted),
		slog.Int64("duration_ms", run.DurationMs),
	}
	if passErr != nil {
		e.logger.Error("campaign pass failed", append(logAttrs, slog.String("error", passErr.Error()))...)
		return run, fmt.Errorf("campaign %d pass failed: %w", campaign.ID, passErr)
	}
	e.logger.Info("campaign pass finished", logAttrs...)

	return run, nil
}

func (e *campaignEngine) runPass(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun, totals *models.CampaignTotals) error {
	steps := catalog.StepsFor(campaign)
	if err := models.ValidateSteps(steps); err != nil {
		return err
	}
	now := e.now()

	if campaign.EnrollmentMode != models.EnrollmentManual {
		if err := e.enrollMatches(ctx, campaign, run, now); err != nil {
			return err
		}
	}

	if err := e.advanceRecipients(ctx, campaign, steps, run, totals, now); err != nil {
		return err
	}

	if campaign.StopOnConversion {
		if err := e.detectConversions(ctx, campaign, run, totals, now); err != nil {
			return err
		}
	}

	return nil
}

// enrollMatches executes the campaign segment and enrolls new matches. A
// segment that cannot be compiled or executed enrolls nobody.
func (e *campaignEngine) enrollMatches(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun, now time.Time) error {
	ids, err := e.segmentSvc.Execute(ctx, catalog.SegmentFor(campaign), now)
	if err != nil {
		e.logger.Warn("segment failed; enrolling no one this pass",
			slog.Int64("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
		ids = nil
	}
	run.RecipientsFound = len(ids)

	enrolled, err := e.recipientRepo.EnrollIfAbsent(ctx, campaign.ID, ids, campaign.CooldownDays, now)
	if err != nil {
		return fmt.Errorf("enrollment failed: %w", err)
	}
	run.RecipientsEnrolled = enrolled
	e.metrics.RecordEnrolled(enrolled)

	return nil
}

func (e *campaignEngine) advanceRecipients(
	ctx context.Context,
	campaign *models.Campaign,
	steps models.StepList,
	run *models.CampaignRun,
	totals *models.CampaignTotals,
	now time.Time,
) error {
	recipients, err := e.recipientRepo.ListActive(ctx, campaign.ID)
	if err != nil {
		return err
	}

	for _, recipient := range recipients {
		step, ok := steps.At(recipient.CurrentStep)
		if !ok {
			// The step list shrank under an enrolled recipient
			done, err := e.recipientRepo.Complete(ctx, recipient.ID, now)
			if err != nil {
				return err
			}
			if done {
				run.Completed++
			}
			continue
		}

		if !recipient.IsEligible(step, now) {
			run.Skipped++
			continue
		}

		if campaign.StopOnConversion {
			converted, err := e.convertIfOrdered(ctx, recipient, run, totals, now)
			if err != nil {
				return err
			}
			if converted {
				continue
			}
		}

		sent, err := e.sendStep(ctx, campaign, recipient, step, run)
		if err != nil {
			return err
		}
		if !sent {
			continue
		}
		totals.Sent++

		next := recipient.CurrentStep + 1
		complete := next >= len(steps)
		advanced, err := e.recipientRepo.Advance(ctx, recipient.ID, recipient.CurrentStep, next, now, complete)
		if err != nil {
			return err
		}
		if !advanced {
			e.logger.Info("recipient left ACTIVE during dispatch; keeping its terminal state",
				slog.Int64("recipient_id", recipient.ID),
				slog.Int64("customer_id", recipient.CustomerID),
			)
			continue
		}
		if complete {
			run.Completed++
		}
	}

	return nil
}

// sendStep renders and dispatches one step. It reports false when the
// customer is missing, could not be contacted or the transport failed; the
// recipient stays on its step in each case.
func (e *campaignEngine) sendStep(
	ctx context.Context,
	campaign *models.Campaign,
	recipient *models.Recipient,
	step models.DripStep,
	run *models.CampaignRun,
) (bool, error) {
	customer, err := e.customerRepo.GetByID(ctx, recipient.CustomerID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			run.Skipped++
			e.logger.Warn("enrolled customer no longer exists; skipping",
				slog.Int64("recipient_id", recipient.ID),
				slog.Int64("customer_id", recipient.CustomerID),
			)
			return false, nil
		}
		return false, err
	}

	if !CanContact(customer, step.Channel) {
		run.Skipped++
		e.logger.Debug("customer not contactable on channel",
			slog.Int64("customer_id", customer.ID),
			slog.String("channel", string(step.Channel)),
		)
		return false, nil
	}

	vars, err := e.templateSvc.Resolve(ctx, customer.ID)
	if err != nil {
		return false, err
	}

	req := models.DispatchRequest{
		CampaignID: &campaign.ID,
		CustomerID: customer.ID,
		Channel:    step.Channel,
		Body:       e.templateSvc.Render(step.TemplateBody, vars),
		StepIndex:  &step.StepIndex,
		RunID:      &run.RunID,
	}
	if step.Channel == models.ChannelSMS {
		req.To = customer.PhoneNumber()
	} else {
		req.To = customer.EmailAddress()
		subject := e.templateSvc.Render(step.TemplateSubject, vars)
		req.Subject = &subject
	}

	run.MessagesQueued++
	message, err := e.dispatchSvc.Dispatch(ctx, req)
	if err != nil {
		return false, err
	}
	if message.Status != models.MessageStatusSent {
		run.MessagesFailed++
		return false, nil
	}

	run.MessagesSent++
	return true, nil
}

// detectConversions converts every ACTIVE recipient with a qualifying order
// placed at or after enrollment
func (e *campaignEngine) detectConversions(
	ctx context.Context,
	campaign *models.Campaign,
	run *models.CampaignRun,
	totals *models.CampaignTotals,
	now time.Time,
) error {
	recipients, err := e.recipientRepo.ListActive(ctx, campaign.ID)
	if err != nil {
		return err
	}

	for _, recipient := range recipients {
		if _, err := e.convertIfOrdered(ctx, recipient, run, totals, now); err != nil {
			return err
		}
	}
	return nil
}

func (e *campaignEngine) convertIfOrdered(
	ctx context.Context,
	recipient *models.Recipient,
	run *models.CampaignRun,
	totals *models.CampaignTotals,
	now time.Time,
) (bool, error) {
	order, err := e.customerRepo.FirstQualifyingOrder(ctx, recipient.CustomerID, recipient.EnrolledAt)
	if err != nil {
		return false, err
	}
	if order == nil {
		return false, nil
	}

	converted, err := e.recipientRepo.MarkConverted(ctx, recipient.ID, order.Total, now)
	if err != nil {
		return false, err
	}
	if !converted {
		return false, nil
	}

	run.Converted++
	totals.Converted++
	totals.RevenueAttributed += order.Total
	e.metrics.RecordConversion(order.Total)

	e.logger.Info("recipient converted",
		slog.Int64("recipient_id", recipient.ID),
		slog.Int64("customer_id", recipient.CustomerID),
		slog.Int64("order_id", order.ID),
		slog.Float64("value", order.Total),
	)
	return true, nil
}

func (e *campaignEngine) notify(ctx context.Context, campaign *models.Campaign, run *models.CampaignRun) {
	if e.sink == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.NotifyTimeout)
	defer cancel()

	summary := notify.Summary{
		CampaignName: campaign.Name,
		Run:          run,
		Text:         run.Summary(campaign.Name),
	}
	if err := e.sink.Notify(ctx, summary); err != nil {
		e.logger.Warn("failed to deliver pass summary",
			slog.Int64("campaign_id", campaign.ID),
			slog.String("error", err.Error()),
		)
	}
}

// ProcessAllCampaigns runs a pass over every ACTIVE campaign in turn
func (e *campaignEngine) ProcessAllCampaigns(ctx context.Context) ([]*models.CampaignRun, error) {
	campaigns, err := e.campaignRepo.ListByStatus(ctx, models.CampaignStatusActive)
	if err != nil {
		return nil, err
	}

	runs := make([]*models.CampaignRun, 0, len(campaigns))
	failed := 0
	for _, campaign := range campaigns {
		if err := ctx.Err(); err != nil {
			return runs, err
		}

		run, err := e.ProcessCampaign(ctx, campaign.ID)
		if run != nil {
			runs = append(runs, run)
		}
		if err != nil {
			if errors.Is(err, models.ErrPassInProgress) || errors.Is(err, models.ErrCampaignNotActive) {
				e.logger.Info("campaign skipped",
					slog.Int64("campaign_id", campaign.ID),
					slog.String("reason", err.Error()),
				)
				continue
			}
			failed++
			e.logger.Error("campaign pass failed; continuing with remaining campaigns",
				slog.Int64("campaign_id", campaign.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.Info("all campaigns processed",
		slog.Int("campaigns", len(campaigns)),
		slog.Int("runs", len(runs)),
		slog.Int("failed", failed),
	)

	return runs, nil
}

// ActivateCampaign validates the campaign's effective steps and segment and
// marks it ACTIVE. Configuration errors surface here rather than mid-pass.
func (e *campaignEngine) ActivateCampaign(ctx context.Context, campaignID int64) (*models.Campaign, error) {
	campaign, err := e.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Status == models.CampaignStatusActive {
		return campaign, nil
	}
	if !campaign.CanActivate() {
		return nil, models.ErrConflictWithMsg(
			fmt.Sprintf("campaign with status '%s' cannot be activated", campaign.Status),
		)
	}

	steps := catalog.StepsFor(campaign)
	if err := models.ValidateSteps(steps); err != nil {
		return nil, err
	}
	for _, step := range steps {
		if err := e.templateSvc.ValidateTemplate(step.TemplateBody); err != nil {
			return nil, fmt.Errorf("step %d body: %w", step.StepIndex, err)
		}
		if step.Channel == models.ChannelEmail {
			if err := e.templateSvc.ValidateTemplate(step.TemplateSubject); err != nil {
				return nil, fmt.Errorf("step %d subject: %w", step.StepIndex, err)
			}
		}
	}

	if campaign.EnrollmentMode != models.EnrollmentManual {
		if _, err := e.segmentSvc.Compile(catalog.SegmentFor(campaign), e.now()); err != nil {
			return nil, err
		}
	}

	if err := e.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusActive); err != nil {
		return nil, err
	}

	e.logger.Info("campaign activated",
		slog.Int64("campaign_id", campaign.ID),
		slog.String("type", string(campaign.Type)),
		slog.Int("steps", len(steps)),
	)

	return e.campaignRepo.GetByID(ctx, campaign.ID)
}

// PauseCampaign stops future passes; enrolled recipients keep their state
func (e *campaignEngine) PauseCampaign(ctx context.Context, campaignID int64) (*models.Campaign, error) {
	campaign, err := e.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	if campaign.Status == models.CampaignStatusPaused {
		return campaign, nil
	}
	if campaign.Status != models.CampaignStatusActive {
		return nil, models.ErrConflictWithMsg(
			fmt.Sprintf("campaign with status '%s' cannot be paused", campaign.Status),
		)
	}

	if err := e.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusPaused); err != nil {
		return nil, err
	}

	e.logger.Info("campaign paused", slog.Int64("campaign_id", campaign.ID))

	return e.campaignRepo.GetByID(ctx, campaign.ID)
}

// EnrollManual enrolls explicit customers into a manual-mode campaign
func (e *campaignEngine) EnrollManual(ctx context.Context, campaignID int64, customerIDs []int64) (int, error) {
	if len(customerIDs) == 0 {
		return 0, models.ErrInvalidInput("customer_ids cannot be empty")
	}

	campaign, err := e.campaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return 0, err
	}

	if campaign.EnrollmentMode != models.EnrollmentManual {
		return 0, models.ErrConflictWithMsg("campaign enrolls automatically from its segment")
	}
	if campaign.Status == models.CampaignStatusArchived {
		return 0, models.ErrConflictWithMsg("archived campaigns cannot enroll recipients")
	}

	for _, id := range customerIDs {
		if _, err := e.customerRepo.GetByID(ctx, id); err != nil {
			return 0, err
		}
	}

	enrolled, err := e.recipientRepo.EnrollIfAbsent(ctx, campaign.ID, customerIDs, campaign.CooldownDays, e.now())
	if err != nil {
		return 0, err
	}
	e.metrics.RecordEnrolled(enrolled)

	e.logger.Info("customers enrolled manually",
		slog.Int64("campaign_id", campaign.ID),
		slog.Int("requested", len(customerIDs)),
		slog.Int("enrolled", enrolled),
	)

	return enrolled, nil
}
