package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Raymond9734/drip-campaign-engine/internal/models"
	"github.com/Raymond9734/drip-campaign-engine/internal/segment"
)

// CustomerRepository defines the interface for customer data access. The
// customer, order, exam, prescription, insurance and referral tables belong to
// the store; the engine only reads them, except for the opt-out flags.
type CustomerRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Customer, error)
	GetByPhone(ctx context.Context, phone string) (*models.Customer, error)
	GetFacts(ctx context.Context, id int64) (*models.CustomerFacts, error)
	FindMatching(ctx context.Context, spec *segment.QuerySpec) ([]int64, error)
	CountMatching(ctx context.Context, spec *segment.QuerySpec) (int64, error)
	SampleMatching(ctx context.Context, spec *segment.QuerySpec, limit int) ([]models.CustomerSummary, error)
	FirstQualifyingOrder(ctx context.Context, customerID int64, since time.Time) (*models.Order, error)
	OptOut(ctx context.Context, customerID int64, source, reason string, at time.Time) (int64, error)
}

// customerRepository implements CustomerRepository using PostgreSQL
type customerRepository struct {
	db *sql.DB
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *sql.DB) CustomerRepository {
	return &customerRepository{db: db}
}

// customerFactsCTE projects one row per customer with every column the
// segment field catalog and the template variables read.
const customerFactsCTE = `
	WITH f AS (
		SELECT
			c.id, c.first_name, c.last_name, c.email, c.phone, c.date_of_birth, c.city,
			c.sms_consent, c.email_consent, c.marketing_opt_out, c.opt_out_reason,
			c.opt_out_source, c.opted_out_at, c.created_at,
			lo.completed_at AS last_order_at,
			lo.frame_brand AS last_order_brand,
			lo.frame_model AS last_order_model,
			COALESCE(os.order_count, 0) AS order_count,
			COALESCE(os.order_value, 0) AS order_value,
			(SELECT MAX(e.exam_date) FROM exams e WHERE e.customer_id = c.id) AS last_exam_at,
			ip.provider AS insurance_provider,
			ip.renewal_date AS insurance_renewal_at,
			(SELECT p.expires_at FROM prescriptions p
			  WHERE p.customer_id = c.id AND p.status = 'active'
			  ORDER BY p.issued_at DESC LIMIT 1) AS rx_expires_at,
			(SELECT rf.code FROM referrals rf
			  WHERE rf.referrer_customer_id = c.id
			  ORDER BY rf.created_at DESC LIMIT 1) AS referral_code,
			(SELECT COUNT(*) FROM referrals rf WHERE rf.referrer_customer_id = c.id) AS referral_count,
			(SELECT MAX(m.sent_at) FROM messages m
			  WHERE m.customer_id = c.id AND m.status = 'SENT') AS last_contacted_at
		FROM customers c
		LEFT JOIN LATERAL (
			SELECT o.completed_at, o.frame_brand, o.frame_model
			FROM orders o
			WHERE o.customer_id = c.id AND o.status = 'completed'
			ORDER BY o.completed_at DESC NULLS LAST
			LIMIT 1
		) lo ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS order_count, SUM(o.total) AS order_value
			FROM orders o
			WHERE o.customer_id = c.id AND o.status = 'completed'
		) os ON TRUE
		LEFT JOIN LATERAL (
			SELECT i.provider, i.renewal_date
			FROM insurance_policies i
			WHERE i.customer_id = c.id AND i.status = 'active'
			ORDER BY i.effective_date DESC
			LIMIT 1
		) ip ON TRUE
	)`

const customerColumns = `
	id, first_name, last_name, email, phone, date_of_birth, city,
	sms_consent, email_consent, marketing_opt_out, opt_out_reason,
	opt_out_source, opted_out_at, created_at`

// GetByID retrieves a customer by ID
func (r *customerRepository) GetByID(ctx context.Context, id int64) (*models.Customer, error) {
	query := `SELECT` + customerColumns + `
		FROM customers
		WHERE id = $1`

	customer := &models.Customer{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(customerDest(customer)...)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	return customer, nil
}

// GetByPhone retrieves a customer by E.164 phone number
func (r *customerRepository) GetByPhone(ctx context.Context, phone string) (*models.Customer, error) {
	query := `SELECT` + customerColumns + `
		FROM customers
		WHERE phone = $1
		ORDER BY id ASC
		LIMIT 1`

	customer := &models.Customer{}
	err := r.db.QueryRowContext(ctx, query, phone).Scan(customerDest(customer)...)

	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with phone %s not found", phone))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer by phone: %w", err)
	}

	return customer, nil
}

// GetFacts retrieves the derived fact row for one customer
func (r *customerRepository) GetFacts(ctx context.Context, id int64) (*models.CustomerFacts, error) {
	query := customerFactsCTE + `
		SELECT` + customerColumns + `,
			last_order_at, last_order_brand, last_order_model, order_count, order_value,
			last_exam_at, insurance_provider, insurance_renewal_at, rx_expires_at,
			referral_code, referral_count, last_contacted_at
		FROM f
		WHERE f.id = $1`

	facts := &models.CustomerFacts{}
	dest := append(customerDest(&facts.Customer),
		&facts.LastOrderAt,
		&facts.LastOrderBrand,
		&facts.LastOrderModel,
		&facts.OrderCount,
		&facts.OrderValue,
		&facts.LastExamAt,
		&facts.InsuranceProvider,
		&facts.InsuranceRenewalAt,
		&facts.RxExpiresAt,
		&facts.ReferralCode,
		&facts.ReferralCount,
		&facts.LastContactedAt,
	)

	err := r.db.QueryRowContext(ctx, query, id).Scan(dest...)
	if err == sql.ErrNoRows {
		return nil, models.ErrNotFoundWithMsg(fmt.Sprintf("customer with ID %d not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer facts: %w", err)
	}

	return facts, nil
}

// FindMatching returns the ids of every customer satisfying the compiled segment
func (r *customerRepository) FindMatching(ctx context.Context, spec *segment.QuerySpec) ([]int64, error) {
	where, args := spec.SQL(0)
	query := customerFactsCTE + `
		SELECT f.id
		FROM f
		WHERE ` + where + `
		ORDER BY f.id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query segment: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan customer id: %w", err)
		}
		ids = append(ids, id)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segment: %w", err)
	}

	return ids, nil
}

// CountMatching returns the audience size of the compiled segment
func (r *customerRepository) CountMatching(ctx context.Context, spec *segment.QuerySpec) (int64, error) {
	where, args := spec.SQL(0)
	query := customerFactsCTE + `
		SELECT COUNT(*)
		FROM f
		WHERE ` + where

	var count int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count segment: %w", err)
	}

	return count, nil
}

// SampleMatching returns up to limit matching customers for previews
func (r *customerRepository) SampleMatching(ctx context.Context, spec *segment.QuerySpec, limit int) ([]models.CustomerSummary, error) {
	where, args := spec.SQL(0)
	query := customerFactsCTE + fmt.Sprintf(`
		SELECT f.id, f.first_name, f.last_name, f.email, f.phone
		FROM f
		WHERE %s
		ORDER BY f.id ASC
		LIMIT $%d`, where, len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sample segment: %w", err)
	}
	defer rows.Close()

	sample := []models.CustomerSummary{}
	for rows.Next() {
		var s models.CustomerSummary
		if err := rows.Scan(&s.ID, &s.FirstName, &s.LastName, &s.Email, &s.Phone); err != nil {
			return nil, fmt.Errorf("failed to scan customer summary: %w", err)
		}
		sample = append(sample, s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sample: %w", err)
	}

	return sample, nil
}

// FirstQualifyingOrder returns the earliest non-draft, non-cancelled order
// created at or after since, or nil when there is none
func (r *customerRepository) FirstQualifyingOrder(ctx context.Context, customerID int64, since time.Time) (*models.Order, error) {
	query := `
		SELECT id, customer_id, status, total, created_at
		FROM orders
		WHERE customer_id = $1
		  AND created_at >= $2
		  AND status NOT IN ('draft', 'cancelled')
		ORDER BY created_at ASC
		LIMIT 1`

	order := &models.Order{}
	err := r.db.QueryRowContext(ctx, query, customerID, since).Scan(
		&order.ID,
		&order.CustomerID,
		&order.Status,
		&order.Total,
		&order.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get qualifying order: %w", err)
	}

	return order, nil
}

// OptOut sets the customer's marketing opt-out flags and moves every ACTIVE
// recipient of that customer to OPTED_OUT in one transaction. It returns the
// number of recipients transitioned. Calling it again is a no-op.
func (r *customerRepository) OptOut(ctx context.Context, customerID int64, source, reason string, at time.Time) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // Rollback is safe to call even after Commit
	}()

	result, err := tx.ExecContext(ctx, `
		UPDATE customers
		SET marketing_opt_out = TRUE,
		    opt_out_source = COALESCE(opt_out_source, $2),
		    opt_out_reason = COALESCE(opt_out_reason, NULLIF($3, '')),
		    opted_out_at = COALESCE(opted_out_at, $4)
		WHERE id = $1`,
		customerID, source, reason, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to opt out customer: %w", err)
	}
	if err := expectOneRow(result, fmt.Sprintf("customer with ID %d not found", customerID)); err != nil {
		return 0, err
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE campaign_recipients
		SET status = 'OPTED_OUT', opted_out_at = $2, updated_at = now()
		WHERE customer_id = $1 AND status = 'ACTIVE'`,
		customerID, at,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to opt out recipients: %w", err)
	}

	transitioned, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return transitioned, nil
}

func customerDest(c *models.Customer) []any {
	return []any{
		&c.ID,
		&c.FirstName,
		&c.LastName,
		&c.Email,
		&c.Phone,
		&c.DateOfBirth,
		&c.City,
		&c.SMSConsent,
		&c.EmailConsent,
		&c.OptedOut,
		&c.OptOutReason,
		&c.OptOutSource,
		&c.OptedOutAt,
		&c.CreatedAt,
	}
}
