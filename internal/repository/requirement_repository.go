package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const requirementColumns = `id, company_id, application_type, stage, name, required_from, required, sort_order, created_at`

// RequirementRepository persists per-tenant document requirement templates.
type RequirementRepository struct {
	db *sqlx.DB
}

// NewRequirementRepository constructs the repository.
func NewRequirementRepository(db *sqlx.DB) *RequirementRepository {
	return &RequirementRepository{db: db}
}

// ListRequirements returns templates for one application type and stage.
func (r *RequirementRepository) ListRequirements(ctx context.Context, tenantID string, appType models.ApplicationType, stage models.ApplicationStatus) ([]models.DocumentRequirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM document_requirements
WHERE company_id = $1 AND application_type = $2 AND stage = $3 ORDER BY sort_order, name`
	var items []models.DocumentRequirement
	if err := r.db.SelectContext(ctx, &items, query, tenantID, appType, stage); err != nil {
		return nil, fmt.Errorf("list document requirements: %w", err)
	}
	return items, nil
}

// ListByType returns every template for an application type, used to seed a new checklist.
func (r *RequirementRepository) ListByType(ctx context.Context, tenantID string, appType models.ApplicationType) ([]models.DocumentRequirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM document_requirements
WHERE company_id = $1 AND ($2 = '' OR application_type = $2) ORDER BY application_type, stage, sort_order, name`
	var items []models.DocumentRequirement
	if err := r.db.SelectContext(ctx, &items, query, tenantID, string(appType)); err != nil {
		return nil, fmt.Errorf("list document requirements by type: %w", err)
	}
	return items, nil
}

// Create inserts a requirement template and, in the same transaction, a PENDING checklist item for
// every application of the type whose status is in openStatuses and that has no item of that
// stage and name yet. It returns how many applications received the item.
func (r *RequirementRepository) Create(ctx context.Context, item *models.DocumentRequirement, openStatuses []models.ApplicationStatus) (added int, err error) {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	item.CreatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin requirement tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const query = `INSERT INTO document_requirements (id, company_id, application_type, stage, name, required_from, required, sort_order, created_at)
	VALUES (:id, :company_id, :application_type, :stage, :name, :required_from, :required, :sort_order, :created_at)`
	if _, err = tx.NamedExecContext(ctx, query, item); err != nil {
		return 0, fmt.Errorf("create document requirement: %w", err)
	}

	if len(openStatuses) > 0 {
		statuses := make([]string, len(openStatuses))
		for i, status := range openStatuses {
			statuses[i] = string(status)
		}
		const open = `SELECT a.id FROM applications a
WHERE a.company_id = $1 AND a.type = $2 AND a.status = ANY($3)
  AND NOT EXISTS (SELECT 1 FROM checklist_items c WHERE c.application_id = a.id AND c.stage = $4 AND c.name = $5)
ORDER BY a.created_at`
		var ids []string
		if err = tx.SelectContext(ctx, &ids, open, item.CompanyID, string(item.ApplicationType), pq.Array(statuses), string(item.Stage), item.Name); err != nil {
			return 0, fmt.Errorf("list open applications: %w", err)
		}
		for _, id := range ids {
			requirementID := item.ID
			if err = insertChecklistItem(ctx, tx, &models.ChecklistItem{
				ApplicationID: id,
				CompanyID:     item.CompanyID,
				RequirementID: &requirementID,
				Name:          item.Name,
				Stage:         item.Stage,
				RequiredFrom:  item.RequiredFrom,
				Required:      item.Required,
				Status:        models.DocumentPending,
				UpdatedAt:     item.CreatedAt,
			}); err != nil {
				return 0, err
			}
		}
		added = len(ids)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit requirement tx: %w", err)
	}
	return added, nil
}

// Delete removes a requirement template. Missing rows yield sql.ErrNoRows.
func (r *RequirementRepository) Delete(ctx context.Context, tenantID, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM document_requirements WHERE id = $1 AND company_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete document requirement: %w", err)
	}
	return expectOneRow(result, "delete document requirement")
}
