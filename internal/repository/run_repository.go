package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// RunRepository defines the interface for the append-only campaign run log
type RunRepository interface {
	Create(ctx context.Context, run *models.CampaignRun) error
	ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]*models.CampaignRun, error)
}

// runRepository implements RunRepository using PostgreSQL
type runRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *sql.DB) RunRepository {
	return &runRepository{db: db}
}

// Create appends a run summary
func (r *runRepository) Create(ctx context.Context, run *models.CampaignRun) error {
	query := `
		INSERT INTO campaign_runs (
			run_id, campaign_id, recipients_found, recipients_enrolled, messages_queued,
			messages_sent, messages_failed, skipped, completed, converted,
			duration_ms, error, started_at, finished_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id`

	err := r.db.QueryRowContext(
		ctx,
		query,
		run.RunID,
		run.CampaignID,
		run.RecipientsFound,
		run.RecipientsEnrolled,
		run.MessagesQueued,
		run.MessagesSent,
		run.MessagesFailed,
		run.Skipped,
		run.Completed,
		run.Converted,
		run.DurationMs,
		run.Error,
		run.StartedAt,
		run.FinishedAt,
	).Scan(&run.ID)

	if err != nil {
		return fmt.Errorf("failed to create campaign run: %w", err)
	}

	return nil
}

// ListByCampaign retrieves the most recent runs of a campaign, newest first
func (r *runRepository) ListByCampaign(ctx context.Context, campaignID int64, limit int) ([]*models.CampaignRun, error) {
	query := `
		SELECT id, run_id, campaign_id, recipients_found, recipients_enrolled, messages_queued,
		       messages_sent, messages_failed, skipped, completed, converted,
		       duration_ms, error, started_at, finished_at
		FROM campaign_runs
		WHERE campaign_id = $1
		ORDER BY started_at DESC, id DESC
		LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, campaignID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaign runs: %w", err)
	}
	defer rows.Close()

	runs := []*models.CampaignRun{}
	for rows.Next() {
		run := &models.CampaignRun{}
		err := rows.Scan(
			&run.ID,
			&run.RunID,
			&run.CampaignID,
			&run.RecipientsFound,
			&run.RecipientsEnrolled,
			&run.MessagesQueued,
			&run.MessagesSent,
			&run.MessagesFailed,
			&run.Skipped,
			&run.Completed,
			&run.Converted,
			&run.DurationMs,
			&run.Error,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign run: %w", err)
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaign runs: %w", err)
	}

	return runs, nil
}
