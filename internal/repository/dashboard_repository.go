package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

// DashboardRepository exposes read-optimised aggregate queries for the pipeline board and finance charts.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository instantiates the repository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// CountByStatus returns the number of tenant applications per status.
func (r *DashboardRepository) CountByStatus(ctx context.Context, tenantID string) ([]models.PipelineColumn, error) {
	const query = `SELECT status, COUNT(*) AS count FROM applications WHERE company_id = $1 GROUP BY status`
	var columns []models.PipelineColumn
	if err := r.db.SelectContext(ctx, &columns, query, tenantID); err != nil {
		return nil, fmt.Errorf("count applications by status: %w", err)
	}
	return columns, nil
}

// PaymentsByMonth sums payments per calendar month and currency.
func (r *DashboardRepository) PaymentsByMonth(ctx context.Context, tenantID string, rng models.DashboardRange) ([]models.MonthlyAmount, error) {
	const query = `SELECT to_char(date_trunc('month', paid_at), 'YYYY-MM') AS month, currency, SUM(amount) AS total
FROM payments WHERE company_id = $1 AND paid_at >= $2 AND paid_at < $3
GROUP BY 1, 2 ORDER BY 1, 2`
	var rows []models.MonthlyAmount
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, rng.From, rng.To); err != nil {
		return nil, fmt.Errorf("aggregate payments by month: %w", err)
	}
	return rows, nil
}

// CostsByType sums costs per type and currency.
func (r *DashboardRepository) CostsByType(ctx context.Context, tenantID string, rng models.DashboardRange) ([]models.CategoryAmount, error) {
	const query = `SELECT type AS category, currency, SUM(amount) AS total, COUNT(*) AS count
FROM costs WHERE company_id = $1 AND incurred_at >= $2 AND incurred_at < $3
GROUP BY 1, 2 ORDER BY 1, 2`
	var rows []models.CategoryAmount
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, rng.From, rng.To); err != nil {
		return nil, fmt.Errorf("aggregate costs by type: %w", err)
	}
	return rows, nil
}

// RefundsByClass sums effective refunds per cancellation class and currency.
func (r *DashboardRepository) RefundsByClass(ctx context.Context, tenantID string, rng models.DashboardRange) ([]models.CategoryAmount, error) {
	const query = `SELECT class AS category, currency, SUM(COALESCE(override_refund, refund_amount)) AS total, COUNT(*) AS count
FROM cancellation_settlements WHERE company_id = $1 AND computed_at >= $2 AND computed_at < $3
GROUP BY 1, 2 ORDER BY 1, 2`
	var rows []models.CategoryAmount
	if err := r.db.SelectContext(ctx, &rows, query, tenantID, rng.From, rng.To); err != nil {
		return nil, fmt.Errorf("aggregate refunds by class: %w", err)
	}
	return rows, nil
}
