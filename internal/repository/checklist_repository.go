package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const checklistColumns = `id, application_id, company_id, requirement_id, name, stage, required_from, required, status,
       file_url, notes, updated_by, updated_at`

// ChecklistRepository reads checklist items. Writes go through the application lock.
type ChecklistRepository struct {
	db *sqlx.DB
}

// NewChecklistRepository constructs the repository.
func NewChecklistRepository(db *sqlx.DB) *ChecklistRepository {
	return &ChecklistRepository{db: db}
}

// ListByApplication returns all checklist items of an application.
func (r *ChecklistRepository) ListByApplication(ctx context.Context, tenantID, applicationID string) ([]models.ChecklistItem, error) {
	query := `SELECT ` + checklistColumns + ` FROM checklist_items WHERE application_id = $1 AND company_id = $2 ORDER BY stage, name`
	var items []models.ChecklistItem
	if err := r.db.SelectContext(ctx, &items, query, applicationID, tenantID); err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	return items, nil
}

// GetItem fetches one checklist item.
func (r *ChecklistRepository) GetItem(ctx context.Context, tenantID, applicationID, itemID string) (*models.ChecklistItem, error) {
	query := `SELECT ` + checklistColumns + ` FROM checklist_items WHERE id = $1 AND application_id = $2 AND company_id = $3`
	var item models.ChecklistItem
	if err := r.db.GetContext(ctx, &item, query, itemID, applicationID, tenantID); err != nil {
		return nil, err
	}
	return &item, nil
}

func insertChecklistItem(ctx context.Context, tx *sqlx.Tx, item *models.ChecklistItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO checklist_items (id, application_id, company_id, requirement_id, name, stage, required_from,
	required, status, file_url, notes, updated_by, updated_at)
	VALUES (:id, :application_id, :company_id, :requirement_id, :name, :stage, :required_from, :required, :status,
	:file_url, :notes, :updated_by, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("insert checklist item: %w", err)
	}
	return nil
}
