package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const paymentColumns = `id, application_id, company_id, client_ref, amount, currency, paid_at, type, refundable,
       settlement_id, created_at, updated_at`

// PaymentRepository persists client payments.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs the repository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListByApplication returns payments of one application.
func (r *PaymentRepository) ListByApplication(ctx context.Context, tenantID, applicationID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE application_id = $1 AND company_id = $2 ORDER BY paid_at`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, applicationID, tenantID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

// ListBetween returns tenant payments inside the optional range for reporting.
func (r *PaymentRepository) ListBetween(ctx context.Context, tenantID string, from, to *time.Time) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments
WHERE company_id = $1 AND ($2::timestamptz IS NULL OR paid_at >= $2) AND ($3::timestamptz IS NULL OR paid_at < $3)
ORDER BY paid_at`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("list payments between: %w", err)
	}
	return payments, nil
}

// Get fetches a payment by id.
func (r *PaymentRepository) Get(ctx context.Context, tenantID, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1 AND company_id = $2`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id, tenantID); err != nil {
		return nil, err
	}
	return &payment, nil
}

// noSettlement restricts a payment write to applications without a cancellation settlement.
const noSettlement = `NOT EXISTS (SELECT 1 FROM cancellation_settlements s
	WHERE s.application_id = payments.application_id AND s.company_id = payments.company_id)`

// Create inserts a payment. The application row is share-locked so the insert serializes with a
// cancellation holding it for update; an application that already has a settlement, or does not
// exist, yields sql.ErrNoRows.
func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) (err error) {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	payment.CreatedAt = now
	payment.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var locked string
	if err = tx.GetContext(ctx, &locked, `SELECT id FROM applications WHERE id = $1 AND company_id = $2 FOR SHARE`, payment.ApplicationID, payment.CompanyID); err != nil {
		return err
	}
	var settled bool
	if err = tx.GetContext(ctx, &settled, `SELECT EXISTS (SELECT 1 FROM cancellation_settlements WHERE application_id = $1 AND company_id = $2)`, payment.ApplicationID, payment.CompanyID); err != nil {
		return fmt.Errorf("check settlement: %w", err)
	}
	if settled {
		return sql.ErrNoRows
	}

	const query = `INSERT INTO payments (id, application_id, company_id, client_ref, amount, currency, paid_at, type, refundable, created_at, updated_at)
	VALUES (:id, :application_id, :company_id, :client_ref, :amount, :currency, :paid_at, :type, :refundable, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit payment tx: %w", err)
	}
	return nil
}

// Update rewrites a payment of an application without a settlement. Locked or missing rows yield sql.ErrNoRows.
func (r *PaymentRepository) Update(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE payments SET client_ref = :client_ref, amount = :amount, currency = :currency, paid_at = :paid_at,
	type = :type, refundable = :refundable, updated_at = :updated_at
	WHERE id = :id AND company_id = :company_id AND settlement_id IS NULL AND ` + noSettlement
	result, err := r.db.NamedExecContext(ctx, query, payment)
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	return expectOneRow(result, "update payment")
}

// Delete removes a payment of an application without a settlement.
func (r *PaymentRepository) Delete(ctx context.Context, tenantID, id string) error {
	query := `DELETE FROM payments WHERE id = $1 AND company_id = $2 AND settlement_id IS NULL AND ` + noSettlement
	result, err := r.db.ExecContext(ctx, query, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete payment: %w", err)
	}
	return expectOneRow(result, "delete payment")
}
