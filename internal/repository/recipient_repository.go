package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// RecipientRepository defines the interface for campaign enrollment state.
// Every state-changing update is guarded on status = 'ACTIVE' so a concurrent
// opt-out always wins.
type RecipientRepository interface {
	EnrollIfAbsent(ctx context.Context, campaignID int64, customerIDs []int64, cooldownDays int, at time.Time) (int, error)
	ListActive(ctx context.Context, campaignID int64) ([]*models.Recipient, error)
	ListByCustomer(ctx context.Context, customerID int64) ([]*models.Recipient, error)
	Advance(ctx context.Context, id int64, fromStep, toStep int, at time.Time, complete bool) (bool, error)
	MarkConverted(ctx context.Context, id int64, value float64, at time.Time) (bool, error)
	Complete(ctx context.Context, id int64, at time.Time) (bool, error)
}

// recipientRepository implements RecipientRepository using PostgreSQL
type recipientRepository struct {
	db *sql.DB
}

// NewRecipientRepository creates a new recipient repository
func NewRecipientRepository(db *sql.DB) RecipientRepository {
	return &recipientRepository{db: db}
}

const recipientColumns = `
	id, campaign_id, customer_id, enrolled_at, current_step, last_message_at, status,
	completed_at, converted_at, conversion_value, opted_out_at`

// EnrollIfAbsent creates an ACTIVE recipient at step 0 for each customer that
// the re-enrollment policy admits and returns how many rows were created. The
// partial unique index on ACTIVE rows makes concurrent passes race-free.
func (r *recipientRepository) EnrollIfAbsent(ctx context.Context, campaignID int64, customerIDs []int64, cooldownDays int, at time.Time) (int, error) {
	if len(customerIDs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO campaign_recipients (campaign_id, customer_id, enrolled_at, current_step, status)
		SELECT $1, c.id, $3, 0, 'ACTIVE'
		FROM unnest($2::bigint[]) AS c(id)
		WHERE NOT EXISTS (
			SELECT 1 FROM campaign_recipients cr
			WHERE cr.campaign_id = $1
			  AND cr.customer_id = c.id
			  AND (
				$4::int <= 0
				OR cr.status NOT IN ('COMPLETED', 'CONVERTED')
				OR COALESCE(cr.completed_at, cr.converted_at) + make_interval(days => $4::int) > $3
			  )
		)
		ON CONFLICT DO NOTHING`

	result, err := r.db.ExecContext(ctx, query, campaignID, pq.Array(customerIDs), at, cooldownDays)
	if err != nil {
		return 0, fmt.Errorf("failed to enroll recipients: %w", err)
	}

	enrolled, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(enrolled), nil
}

// ListActive retrieves every ACTIVE recipient of a campaign
func (r *recipientRepository) ListActive(ctx context.Context, campaignID int64) ([]*models.Recipient, error) {
	query := `SELECT` + recipientColumns + `
		FROM campaign_recipients
		WHERE campaign_id = $1 AND status = 'ACTIVE'
		ORDER BY id ASC`

	return r.list(ctx, query, campaignID)
}

// ListByCustomer retrieves the enrollment history of a customer
func (r *recipientRepository) ListByCustomer(ctx context.Context, customerID int64) ([]*models.Recipient, error) {
	query := `SELECT` + recipientColumns + `
		FROM campaign_recipients
		WHERE customer_id = $1
		ORDER BY id ASC`

	return r.list(ctx, query, customerID)
}

func (r *recipientRepository) list(ctx context.Context, query string, args ...any) ([]*models.Recipient, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	recipients := []*models.Recipient{}
	for rows.Next() {
		recipient := &models.Recipient{}
		err := rows.Scan(
			&recipient.ID,
			&recipient.CampaignID,
			&recipient.CustomerID,
			&recipient.EnrolledAt,
			&recipient.CurrentStep,
			&recipient.LastMessageAt,
			&recipient.Status,
			&recipient.CompletedAt,
			&recipient.ConvertedAt,
			&recipient.ConversionValue,
			&recipient.OptedOutAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recipients: %w", err)
	}

	return recipients, nil
}

// Advance moves a recipient from fromStep to toStep after a successful send,
// completing it when complete is set. It reports false when the row was no
// longer ACTIVE at fromStep.
func (r *recipientRepository) Advance(ctx context.Context, id int64, fromStep, toStep int, at time.Time, complete bool) (bool, error) {
	query := `
		UPDATE campaign_recipients
		SET current_step = $1,
		    last_message_at = $2,
		    status = CASE WHEN $3 THEN 'COMPLETED' ELSE status END,
		    completed_at = CASE WHEN $3 THEN $2 ELSE completed_at END,
		    updated_at = now()
		WHERE id = $4 AND status = 'ACTIVE' AND current_step = $5`

	result, err := r.db.ExecContext(ctx, query, toStep, at, complete, id, fromStep)
	if err != nil {
		return false, fmt.Errorf("failed to advance recipient: %w", err)
	}

	return affectedOne(result)
}

// MarkConverted moves an ACTIVE recipient to CONVERTED
func (r *recipientRepository) MarkConverted(ctx context.Context, id int64, value float64, at time.Time) (bool, error) {
	query := `
		UPDATE campaign_recipients
		SET status = 'CONVERTED', converted_at = $1, conversion_value = $2, updated_at = now()
		WHERE id = $3 AND status = 'ACTIVE'`

	result, err := r.db.ExecContext(ctx, query, at, value, id)
	if err != nil {
		return false, fmt.Errorf("failed to convert recipient: %w", err)
	}

	return affectedOne(result)
}

// Complete moves an ACTIVE recipient with no remaining steps to COMPLETED
func (r *recipientRepository) Complete(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE campaign_recipients
		SET status = 'COMPLETED', completed_at = $1, updated_at = now()
		WHERE id = $2 AND status = 'ACTIVE'`

	result, err := r.db.ExecContext(ctx, query, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to complete recipient: %w", err)
	}

	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected == 1, nil
}
