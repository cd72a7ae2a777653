package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
)

// MessageRepository defines the interface for the message audit log
type MessageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	GetByID(ctx context.Context, id int64) (*models.Message, error)
	List(ctx context.Context, filter models.MessageFilter) ([]*models.Message, int64, error)
	MarkSent(ctx context.Context, id int64, externalID *string, at time.Time) error
	MarkFailed(ctx context.Context, id int64, lastError string, at time.Time) error
	MarkDelivered(ctx context.Context, externalID string, at time.Time) (*models.Message, error)
}

// messageRepository implements MessageRepository using PostgreSQL
type messageRepository struct {
	db *sql.DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *sql.DB) MessageRepository {
	return &messageRepository{db: db}
}

const messageColumns = `
	id, campaign_id, customer_id, channel, recipient, subject, body, step_index, run_id,
	status, external_id, last_error, sent_at, failed_at, delivered_at, created_at`

// Create inserts a message row, normally in PENDING status
func (r *messageRepository) Create(ctx context.Context, message *models.Message) error {
	query := `
		INSERT INTO messages (campaign_id, customer_id, channel, recipient, subject, body, step_index, run_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		message.CampaignID,
		message.CustomerID,
		message.Channel,
		message.To,
		message.Subject,
		message.Body,
		message.StepIndex,
		message.RunID,
		message.Status,
	).Scan(&message.ID, &message.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return nil
}

// GetByID retrieves a message by ID
func (r *messageRepository) GetByID(ctx context.Context, id int64) (*models.Message, error) {
	query := `SELECT` + messageColumns + `
		FROM messages
		WHERE id = $1`

	message := &models.Message{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(messageDest(message)...)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("message with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// List retrieves messages with pagination and filtering
func (r *messageRepository) List(ctx context.Context, filter models.MessageFilter) ([]*models.Message, int64, error) {
	// Validate and set defaults
	models.NormalizePage(&filter.Page, &filter.PageSize)

	// Build query with filters
	query := `SELECT` + messageColumns + `
		FROM messages
		WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM messages WHERE 1=1`
	args := []any{}
	argPos := 1

	if filter.CampaignID > 0 {
		query += fmt.Sprintf(" AND campaign_id = $%d", argPos)
		countQuery += fmt.Sprintf(" AND campaign_id = $%d", argPos)
		args = append(args, filter.CampaignID)
		argPos++
	}

	if filter.CustomerID > 0 {
		query += fmt.Sprintf(" AND customer_id = $%d", argPos)
		countQuery += fmt.Sprintf(" AND customer_id = $%d", argPos)
		args = append(args, filter.CustomerID)
		argPos++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argPos)
		countQuery += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, filter.Status)
		argPos++
	}

	// Get total count
	var totalCount int64
	err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	// Add pagination
	offset := models.PageOffset(filter.Page, filter.PageSize)
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, filter.PageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		message := &models.Message{}
		if err := rows.Scan(messageDest(message)...); err != nil {
			return nil, 0, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}

	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, totalCount, nil
}

// MarkSent records a successful hand-off to the provider
func (r *messageRepository) MarkSent(ctx context.Context, id int64, externalID *string, at time.Time) error {
	query := `
		UPDATE messages
		SET status = 'SENT', external_id = $1, sent_at = $2, last_error = NULL
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, externalID, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("message with ID %d not found", id))
}

// MarkFailed records a provider rejection or transport error
func (r *messageRepository) MarkFailed(ctx context.Context, id int64, lastError string, at time.Time) error {
	query := `
		UPDATE messages
		SET status = 'FAILED', last_error = $1, failed_at = $2
		WHERE id = $3`

	result, err := r.db.ExecContext(ctx, query, lastError, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}

	return expectOneRow(result, fmt.Sprintf("message with ID %d not found", id))
}

// MarkDelivered stamps delivered_at on the message with the given provider
// id. A second receipt for the same message reports not found.
func (r *messageRepository) MarkDelivered(ctx context.Context, externalID string, at time.Time) (*models.Message, error) {
	query := `
		UPDATE messages
		SET delivered_at = $1
		WHERE external_id = $2 AND delivered_at IS NULL
		RETURNING` + messageColumns

	message := &models.Message{}
	err := r.db.QueryRowContext(ctx, query, at, externalID).Scan(messageDest(message)...)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("undelivered message with external ID %s not found", externalID))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to mark message delivered: %w", err)
	}

	return message, nil
}

func messageDest(m *models.Message) []any {
	return []any{
		&m.ID,
		&m.CampaignID,
		&m.CustomerID,
		&m.Channel,
		&m.To,
		&m.Subject,
		&m.Body,
		&m.StepIndex,
		&m.RunID,
		&m.Status,
		&m.ExternalID,
		&m.LastError,
		&m.SentAt,
		&m.FailedAt,
		&m.DeliveredAt,
		&m.CreatedAt,
	}
}
