package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// CampaignRepository defines the interface for campaign data access
type CampaignRepository interface {
	Create(ctx context.Context, campaign *models.Campaign) error
	GetByID(ctx context.Context, id int64) (*models.Campaign, error)
	ListByStatus(ctx context.Context, status models.CampaignStatus) ([]*models.Campaign, error)
	UpdateStatus(ctx context.Context, id int64, status models.CampaignStatus) error
	AddTotals(ctx context.Context, id int64, delta models.CampaignTotals) error
}

// campaignRepository implements CampaignRepository using PostgreSQL
type campaignRepository struct {
	db *sql.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *sql.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

const campaignColumns = `
	id, name, type, status, enrollment_mode, stop_on_conversion, cooldown_days,
	segment, steps, total_sent, total_delivered, total_converted, revenue_attributed,
	activated_at, created_at, updated_at`

// Create inserts a new campaign
func (r *campaignRepository) Create(ctx context.Context, campaign *models.Campaign) error {
	query := `
		INSERT INTO campaigns (name, type, status, enrollment_mode, stop_on_conversion, cooldown_days, segment, steps)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		campaign.Name,
		campaign.Type,
		campaign.Status,
		campaign.EnrollmentMode,
		campaign.StopOnConversion,
		campaign.CooldownDays,
		campaign.Segment,
		campaign.Steps,
	).Scan(&campaign.ID, &campaign.CreatedAt, &campaign.UpdatedAt)

	if err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}

	return nil
}

// GetByID retrieves a campaign by ID
func (r *campaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	query := `SELECT` + campaignColumns + `
		FROM campaigns
		WHERE id = $1`

	campaign, err := scanCampaign(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("campaign with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get campaign: %w", err)
	}

	return campaign, nil
}

// ListByStatus retrieves every campaign in the given status, oldest first
func (r *campaignRepository) ListByStatus(ctx context.Context, status models.CampaignStatus) ([]*models.Campaign, error) {
	query := `SELECT` + campaignColumns + `
		FROM campaigns
		WHERE status = $1
		ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	defer rows.Close()

	campaigns := []*models.Campaign{}
	for rows.Next() {
		campaign, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan campaign: %w", err)
		}
		campaigns = append(campaigns, campaign)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating campaigns: %w", err)
	}

	return campaigns, nil
}

// UpdateStatus updates only the status of a campaign, stamping activated_at
// the first time it becomes ACTIVE
func (r *campaignRepository) UpdateStatus(ctx context.Context, id int64, status models.CampaignStatus) error {
	query := `
		UPDATE campaigns
		SET status = $1,
		    activated_at = CASE WHEN $1 = 'ACTIVE' THEN COALESCE(activated_at, now()) ELSE activated_at END,
		    updated_at = now()
		WHERE id = $2`

	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign status: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("campaign with ID %d not found", id))
}

// AddTotals increments the running counters of a campaign
func (r *campaignRepository) AddTotals(ctx context.Context, id int64, delta models.CampaignTotals) error {
	if delta.IsZero() {
		return nil
	}

	query := `
		UPDATE campaigns
		SET total_sent = total_sent + $1,
		    total_delivered = total_delivered + $2,
		    total_converted = total_converted + $3,
		    revenue_attributed = revenue_attributed + $4,
		    updated_at = now()
		WHERE id = $5`

	result, err := r.db.ExecContext(ctx, query, delta.Sent, delta.Delivered, delta.Converted, delta.RevenueAttributed, id)
	if err != nil {
		return fmt.Errorf("failed to update campaign totals: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("campaign with ID %d not found", id))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner) (*models.Campaign, error) {
	campaign := &models.Campaign{}
	var segmentJSON []byte

	err := row.Scan(
		&campaign.ID,
		&campaign.Name,
		&campaign.Type,
		&campaign.Status,
		&campaign.EnrollmentMode,
		&campaign.StopOnConversion,
		&campaign.CooldownDays,
		&segmentJSON,
		&campaign.Steps,
		&campaign.Totals.Sent,
		&campaign.Totals.Delivered,
		&campaign.Totals.Converted,
		&campaign.Totals.RevenueAttributed,
		&campaign.ActivatedAt,
		&campaign.CreatedAt,
		&campaign.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if segmentJSON != nil {
		segment := &models.SegmentDefinition{}
		if err := segment.Scan(segmentJSON); err != nil {
			return nil, fmt.Errorf("failed to decode campaign segment: %w", err)
		}
		campaign.Segment = segment
	}

	return campaign, nil
}

// expectOneRow maps a zero-row update to a not found error
func expectOneRow(result sql.Result, notFoundMsg string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return models.ErrNotFoundWithMsg(notFoundMsg)
	}

	return nil
}
