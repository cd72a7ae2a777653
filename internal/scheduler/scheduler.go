// Package scheduler enqueues periodic processing passes over every ACTIVE
// campaign.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// Publisher accepts campaign jobs; queue.Client satisfies it
type Publisher interface {
	Publish(ctx context.Context, job *models.CampaignJob) error
}

// Scheduler manages the cron entry that triggers campaign passes
type Scheduler struct {
	cron      *cron.Cron
	publisher Publisher
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// New creates a scheduler. spec is a standard five-field cron expression.
func New(spec string, publisher Publisher, logger *slog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		publisher: publisher,
		logger:    logger,
		timeout:   30 * time.Second,
		now:       time.Now,
	}

	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if err := s.Trigger(ctx); err != nil {
			s.logger.Error("scheduled trigger failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	return s, nil
}

// Trigger enqueues one pass over every ACTIVE campaign
func (s *Scheduler) Trigger(ctx context.Context) error {
	job := &models.CampaignJob{
		Trigger:     models.TriggerSchedule,
		RequestedAt: s.now(),
	}
	if err := s.publisher.Publish(ctx, job); err != nil {
		return fmt.Errorf("failed to enqueue scheduled pass: %w", err)
	}

	s.logger.Info("scheduled pass enqueued")
	return nil
}

// Start runs the cron loop in its own goroutine
func (s *Scheduler) Start() {
	s.logger.Info("scheduler started", slog.Int("entries", len(s.cron.Entries())))
	s.cron.Start()
}

// Stop halts the cron loop and waits for a running trigger to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Next returns the next scheduled trigger time
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}
