package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const costColumns = `id, application_id, company_id, amount, currency, incurred_at, type, description, created_at, updated_at`

// CostRepository persists office costs.
type CostRepository struct {
	db *sqlx.DB
}

// NewCostRepository constructs the repository.
func NewCostRepository(db *sqlx.DB) *CostRepository {
	return &CostRepository{db: db}
}

// ListByApplication returns costs of one application.
func (r *CostRepository) ListByApplication(ctx context.Context, tenantID, applicationID string) ([]models.Cost, error) {
	query := `SELECT ` + costColumns + ` FROM costs WHERE application_id = $1 AND company_id = $2 ORDER BY incurred_at`
	var costs []models.Cost
	if err := r.db.SelectContext(ctx, &costs, query, applicationID, tenantID); err != nil {
		return nil, fmt.Errorf("list costs: %w", err)
	}
	return costs, nil
}

// ListBetween returns tenant costs inside the optional range for reporting.
func (r *CostRepository) ListBetween(ctx context.Context, tenantID string, from, to *time.Time) ([]models.Cost, error) {
	query := `SELECT ` + costColumns + ` FROM costs
WHERE company_id = $1 AND ($2::timestamptz IS NULL OR incurred_at >= $2) AND ($3::timestamptz IS NULL OR incurred_at < $3)
ORDER BY incurred_at`
	var costs []models.Cost
	if err := r.db.SelectContext(ctx, &costs, query, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("list costs between: %w", err)
	}
	return costs, nil
}

// Get fetches a cost by id.
func (r *CostRepository) Get(ctx context.Context, tenantID, id string) (*models.Cost, error) {
	query := `SELECT ` + costColumns + ` FROM costs WHERE id = $1 AND company_id = $2`
	var cost models.Cost
	if err := r.db.GetContext(ctx, &cost, query, id, tenantID); err != nil {
		return nil, err
	}
	return &cost, nil
}

// Create inserts a cost.
func (r *CostRepository) Create(ctx context.Context, cost *models.Cost) error {
	if cost.ID == "" {
		cost.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	cost.CreatedAt = now
	cost.UpdatedAt = now
	const query = `INSERT INTO costs (id, application_id, company_id, amount, currency, incurred_at, type, description, created_at, updated_at)
	VALUES (:id, :application_id, :company_id, :amount, :currency, :incurred_at, :type, :description, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, cost); err != nil {
		return fmt.Errorf("create cost: %w", err)
	}
	return nil
}

// Update rewrites a cost.
func (r *CostRepository) Update(ctx context.Context, cost *models.Cost) error {
	cost.UpdatedAt = time.Now().UTC()
	const query = `UPDATE costs SET amount = :amount, currency = :currency, incurred_at = :incurred_at, type = :type,
	description = :description, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	result, err := r.db.NamedExecContext(ctx, query, cost)
	if err != nil {
		return fmt.Errorf("update cost: %w", err)
	}
	return expectOneRow(result, "update cost")
}

// Delete removes a cost.
func (r *CostRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM costs WHERE id = $1 AND company_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete cost: %w", err)
	}
	return expectOneRow(result, "delete cost")
}
