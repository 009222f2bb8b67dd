package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

// TenantSettingsRepository persists per-company settings.
type TenantSettingsRepository struct {
	db *sqlx.DB
}

// NewTenantSettingsRepository constructs the repository.
func NewTenantSettingsRepository(db *sqlx.DB) *TenantSettingsRepository {
	return &TenantSettingsRepository{db: db}
}

// Get fetches the settings row for a tenant. A tenant without a row yields sql.ErrNoRows.
func (r *TenantSettingsRepository) Get(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	const query = `SELECT company_id, cancellation_policy, updated_by, updated_at FROM tenant_settings WHERE company_id = $1`
	var settings models.TenantSettings
	if err := r.db.GetContext(ctx, &settings, query, tenantID); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Upsert inserts or replaces the settings row of a tenant.
func (r *TenantSettingsRepository) Upsert(ctx context.Context, settings *models.TenantSettings) error {
	const query = `INSERT INTO tenant_settings (company_id, cancellation_policy, updated_by, updated_at)
VALUES (:company_id, :cancellation_policy, :updated_by, :updated_at)
ON CONFLICT (company_id)
DO UPDATE SET cancellation_policy = EXCLUDED.cancellation_policy, updated_by = EXCLUDED.updated_by,
              updated_at = EXCLUDED.updated_at`
	settings.UpdatedAt = time.Now().UTC()
	if _, err := r.db.NamedExecContext(ctx, query, settings); err != nil {
		return fmt.Errorf("upsert tenant settings: %w", err)
	}
	return nil
}
