package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const feeTemplateColumns = `id, company_id, name, nationality, service_type, currency, default_price, min_price, max_price,
       active, created_at, updated_at`

// FeeTemplateRepository persists fee templates and their components.
type FeeTemplateRepository struct {
	db *sqlx.DB
}

// NewFeeTemplateRepository constructs the repository.
func NewFeeTemplateRepository(db *sqlx.DB) *FeeTemplateRepository {
	return &FeeTemplateRepository{db: db}
}

// List returns tenant templates, optionally scoped by nationality and service type. Components are not loaded.
func (r *FeeTemplateRepository) List(ctx context.Context, tenantID, nationality, serviceType string) ([]models.FeeTemplate, error) {
	query := `SELECT ` + feeTemplateColumns + ` FROM fee_templates
WHERE company_id = $1 AND ($2 = '' OR nationality = $2) AND ($3 = '' OR service_type = $3) ORDER BY name`
	var templates []models.FeeTemplate
	if err := r.db.SelectContext(ctx, &templates, query, tenantID, nationality, serviceType); err != nil {
		return nil, fmt.Errorf("list fee templates: %w", err)
	}
	return templates, nil
}

// Get fetches a template with its components.
func (r *FeeTemplateRepository) Get(ctx context.Context, tenantID, id string) (*models.FeeTemplate, error) {
	query := `SELECT ` + feeTemplateColumns + ` FROM fee_templates WHERE id = $1 AND company_id = $2`
	var template models.FeeTemplate
	if err := r.db.GetContext(ctx, &template, query, id, tenantID); err != nil {
		return nil, err
	}
	const componentsQuery = `SELECT id, template_id, name, amount, currency, refundable, sort_order
FROM fee_components WHERE template_id = $1 ORDER BY sort_order, name`
	if err := r.db.SelectContext(ctx, &template.Components, componentsQuery, id); err != nil {
		return nil, fmt.Errorf("list fee components: %w", err)
	}
	return &template, nil
}

// Create inserts a template and its components in one transaction.
func (r *FeeTemplateRepository) Create(ctx context.Context, template *models.FeeTemplate) error {
	if template.ID == "" {
		template.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	template.CreatedAt = now
	template.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fee template tx: %w", err)
	}
	const query = `INSERT INTO fee_templates (id, company_id, name, nationality, service_type, currency, default_price,
	min_price, max_price, active, created_at, updated_at)
	VALUES (:id, :company_id, :name, :nationality, :service_type, :currency, :default_price, :min_price, :max_price,
	:active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, template); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create fee template: %w", err)
	}
	if err := insertComponents(ctx, tx, template); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fee template tx: %w", err)
	}
	return nil
}

// Update rewrites a template and replaces its components.
func (r *FeeTemplateRepository) Update(ctx context.Context, template *models.FeeTemplate) error {
	template.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fee template tx: %w", err)
	}
	const query = `UPDATE fee_templates SET name = :name, nationality = :nationality, service_type = :service_type,
	currency = :currency, default_price = :default_price, min_price = :min_price, max_price = :max_price,
	active = :active, updated_at = :updated_at WHERE id = :id AND company_id = :company_id`
	result, err := tx.NamedExecContext(ctx, query, template)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("update fee template: %w", err)
	}
	if err := expectOneRow(result, "update fee template"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM fee_components WHERE template_id = $1`, template.ID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear fee components: %w", err)
	}
	if err := insertComponents(ctx, tx, template); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit fee template tx: %w", err)
	}
	return nil
}

func insertComponents(ctx context.Context, tx *sqlx.Tx, template *models.FeeTemplate) error {
	const query = `INSERT INTO fee_components (id, template_id, name, amount, currency, refundable, sort_order)
	VALUES (:id, :template_id, :name, :amount, :currency, :refundable, :sort_order)`
	for i := range template.Components {
		component := &template.Components[i]
		if component.ID == "" {
			component.ID = uuid.NewString()
		}
		component.TemplateID = template.ID
		if _, err := tx.NamedExecContext(ctx, query, component); err != nil {
			return fmt.Errorf("insert fee component: %w", err)
		}
	}
	return nil
}
