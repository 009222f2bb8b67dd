package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const settlementColumns = `id, application_id, company_id, class, responsible_party, currency, refundable_paid, refund_amount,
       penalty_amount, forfeited_amount, absorbed_cost, breakdown, policy, override_refund, override_penalty,
       override_reason, overridden_by, overridden_at, finalized, finalized_by, finalized_at, computed_by, computed_at`

// SettlementRepository reads persisted cancellation settlements. Writes go through the application lock.
type SettlementRepository struct {
	db *sqlx.DB
}

// NewSettlementRepository constructs the repository.
func NewSettlementRepository(db *sqlx.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// GetByApplication returns the settlement of an application.
func (r *SettlementRepository) GetByApplication(ctx context.Context, tenantID, applicationID string) (*models.CancellationSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM cancellation_settlements WHERE application_id = $1 AND company_id = $2`
	var settlement models.CancellationSettlement
	if err := r.db.GetContext(ctx, &settlement, query, applicationID, tenantID); err != nil {
		return nil, err
	}
	return &settlement, nil
}

// ListBetween returns tenant settlements computed inside the optional range.
func (r *SettlementRepository) ListBetween(ctx context.Context, tenantID string, from, to *time.Time) ([]models.CancellationSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM cancellation_settlements
WHERE company_id = $1 AND ($2::timestamptz IS NULL OR computed_at >= $2) AND ($3::timestamptz IS NULL OR computed_at < $3)
ORDER BY computed_at`
	var settlements []models.CancellationSettlement
	if err := r.db.SelectContext(ctx, &settlements, query, tenantID, from, to); err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	return settlements, nil
}
