package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/service"
)

// PassProcessor turns campaign jobs from the queue into engine passes
type PassProcessor struct {
	engine service.CampaignEngine
	logger *slog.Logger
}

// NewPassProcessor creates a new pass processor
func NewPassProcessor(engine service.CampaignEngine, logger *slog.Logger) *PassProcessor {
	return &PassProcessor{
		engine: engine,
		logger: logger,
	}
}

// Process handles a single campaign job. A job for a campaign that is no
// longer ACTIVE, or that another worker is already processing, is dropped.
func (p *PassProcessor) Process(ctx context.Context, job *models.CampaignJob) error {
	if job.CampaignID == 0 {
		return p.processAll(ctx, job)
	}

	p.logger.Info("processing campaign job",
		slog.Int64("campaign_id", job.CampaignID),
		slog.String("trigger", job.Trigger),
	)

	run, err := p.engine.ProcessCampaign(ctx, job.CampaignID)
	if err != nil {
		if errors.Is(err, models.ErrPassInProgress) || errors.Is(err, models.ErrCampaignNotActive) || errors.Is(err, models.ErrNotFound) {
			p.logger.Warn("campaign job dropped",
				slog.Int64("campaign_id", job.CampaignID),
				slog.String("reason", err.Error()),
			)
			return nil
		}
		return fmt.Errorf("failed to process campaign %d: %w", job.CampaignID, err)
	}

	p.logger.Info("campaign job done",
		slog.Int64("campaign_id", job.CampaignID),
		slog.String("run_id", run.RunID),
		slog.Int("sent", run.MessagesSent),
	)

	return nil
}

func (p *PassProcessor) processAll(ctx context.Context, job *models.CampaignJob) error {
	p.logger.Info("processing all campaigns", slog.String("trigger", job.Trigger))

	runs, err := p.engine.ProcessAllCampaigns(ctx)
	if err != nil {
		return fmt.Errorf("failed to process campaigns: %w", err)
	}

	sent := 0
	for _, run := range runs {
		sent += run.MessagesSent
	}

	p.logger.Info("all campaigns job done",
		slog.Int("runs", len(runs)),
		slog.Int("sent", sent),
	)

	return nil
}
