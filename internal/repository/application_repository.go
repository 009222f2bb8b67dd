package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

const applicationColumns = `id, company_id, candidate_ref, client_ref, broker_ref, type, status, exact_arrival_date,
       labor_permit_date, residency_permit_date, permit_expiry_date, fee_template_id, final_fee_amount, notes,
       version, created_by, created_at, updated_at`

// ApplicationRepository persists applications and their status history.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// Create inserts the application together with its initial checklist.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application, checklist []models.ChecklistItem) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	app.CreatedAt = now
	app.UpdatedAt = now
	if app.Version == 0 {
		app.Version = 1
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create application tx: %w", err)
	}

	const query = `INSERT INTO applications (id, company_id, candidate_ref, client_ref, broker_ref, type, status,
	exact_arrival_date, labor_permit_date, residency_permit_date, permit_expiry_date, fee_template_id, final_fee_amount,
	notes, version, created_by, created_at, updated_at)
	VALUES (:id, :company_id, :candidate_ref, :client_ref, :broker_ref, :type, :status, :exact_arrival_date,
	:labor_permit_date, :residency_permit_date, :permit_expiry_date, :fee_template_id, :final_fee_amount, :notes,
	:version, :created_by, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, app); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("create application: %w", err)
	}

	for i := range checklist {
		item := &checklist[i]
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.ApplicationID = app.ID
		item.CompanyID = app.CompanyID
		item.UpdatedAt = now
		if item.Status == "" {
			item.Status = models.DocumentPending
		}
		if err := insertChecklistItem(ctx, tx, item); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create application tx: %w", err)
	}
	return nil
}

// GetByID fetches an application within a tenant.
func (r *ApplicationRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND company_id = $2`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id, tenantID); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns applications for a tenant matching filter with the total count.
func (r *ApplicationRepository) List(ctx context.Context, tenantID string, filter models.ApplicationFilter) ([]models.Application, int, error) {
	conditions := []string{"company_id = $1"}
	args := []interface{}{tenantID}

	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Type != "" {
		args = append(args, filter.Type)
		conditions = append(conditions, fmt.Sprintf("type = $%d", len(args)))
	}
	if filter.ClientRef != "" {
		args = append(args, filter.ClientRef)
		conditions = append(conditions, fmt.Sprintf("client_ref = $%d", len(args)))
	}
	if filter.CandidateRef != "" {
		args = append(args, filter.CandidateRef)
		conditions = append(conditions, fmt.Sprintf("candidate_ref = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s FROM applications%s ORDER BY created_at DESC LIMIT %d OFFSET %d",
		applicationColumns, where, pageSize, (page-1)*pageSize)

	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM applications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

// UpdateDetails writes non-lifecycle columns guarded by the expected version.
// It returns sql.ErrNoRows when the row changed underneath the caller.
func (r *ApplicationRepository) UpdateDetails(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET candidate_ref = :candidate_ref, client_ref = :client_ref, broker_ref = :broker_ref,
	fee_template_id = :fee_template_id, final_fee_amount = :final_fee_amount, notes = :notes,
	version = version + 1, updated_at = :updated_at
	WHERE id = :id AND company_id = :company_id AND version = :version`
	result, err := r.db.NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	if err := expectOneRow(result, "update application"); err != nil {
		return err
	}
	app.Version++
	return nil
}

// ListHistory returns the transition history of an application, oldest first.
func (r *ApplicationRepository) ListHistory(ctx context.Context, tenantID, applicationID string) ([]models.StatusHistory, error) {
	const query = `SELECT id, application_id, company_id, from_status, to_status, actor_id, note, created_at
FROM application_status_history WHERE application_id = $1 AND company_id = $2 ORDER BY created_at ASC`
	var history []models.StatusHistory
	if err := r.db.SelectContext(ctx, &history, query, applicationID, tenantID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return history, nil
}

// ApplicationTx exposes the statements allowed while an application row is locked.
type ApplicationTx interface {
	Checklist(ctx context.Context) ([]models.ChecklistItem, error)
	UpdateChecklistItem(ctx context.Context, item *models.ChecklistItem) error
	Payments(ctx context.Context) ([]models.Payment, error)
	Costs(ctx context.Context) ([]models.Cost, error)
	FeeComponents(ctx context.Context, templateID string) ([]models.FeeComponent, error)
	UpdateLifecycle(ctx context.Context, app *models.Application) error
	Touch(ctx context.Context, app *models.Application) error
	AppendHistory(ctx context.Context, entry *models.StatusHistory) error
	Settlement(ctx context.Context) (*models.CancellationSettlement, error)
	SaveSettlement(ctx context.Context, settlement *models.CancellationSettlement) error
	OverrideSettlement(ctx context.Context, settlement *models.CancellationSettlement) error
	FinalizeSettlement(ctx context.Context, settlement *models.CancellationSettlement) error
}

// WithApplicationLock runs fn inside a transaction holding a row lock on the application.
// The transaction commits only when fn returns nil. A missing row yields sql.ErrNoRows.
func (r *ApplicationRepository) WithApplicationLock(ctx context.Context, tenantID, id string, fn func(ctx context.Context, app *models.Application, tx ApplicationTx) error) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin application tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND company_id = $2 FOR UPDATE`
	var app models.Application
	if err = tx.GetContext(ctx, &app, query, id, tenantID); err != nil {
		return err
	}

	if err = fn(ctx, &app, &applicationTx{tx: tx, app: &app}); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit application tx: %w", err)
	}
	return nil
}

type applicationTx struct {
	tx  *sqlx.Tx
	app *models.Application
}

func (t *applicationTx) Checklist(ctx context.Context) ([]models.ChecklistItem, error) {
	query := `SELECT ` + checklistColumns + ` FROM checklist_items WHERE application_id = $1 AND company_id = $2 ORDER BY stage, name`
	var items []models.ChecklistItem
	if err := t.tx.SelectContext(ctx, &items, query, t.app.ID, t.app.CompanyID); err != nil {
		return nil, fmt.Errorf("list checklist: %w", err)
	}
	return items, nil
}

func (t *applicationTx) UpdateChecklistItem(ctx context.Context, item *models.ChecklistItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE checklist_items SET status = :status, file_url = :file_url, notes = :notes,
	updated_by = :updated_by, updated_at = :updated_at
	WHERE id = :id AND application_id = :application_id AND company_id = :company_id`
	result, err := t.tx.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	return expectOneRow(result, "update checklist item")
}

func (t *applicationTx) Payments(ctx context.Context) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE application_id = $1 AND company_id = $2 ORDER BY paid_at`
	var payments []models.Payment
	if err := t.tx.SelectContext(ctx, &payments, query, t.app.ID, t.app.CompanyID); err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	return payments, nil
}

func (t *applicationTx) Costs(ctx context.Context) ([]models.Cost, error) {
	query := `SELECT ` + costColumns + ` FROM costs WHERE application_id = $1 AND company_id = $2 ORDER BY incurred_at`
	var costs []models.Cost
	if err := t.tx.SelectContext(ctx, &costs, query, t.app.ID, t.app.CompanyID); err != nil {
		return nil, fmt.Errorf("list costs: %w", err)
	}
	return costs, nil
}

func (t *applicationTx) FeeComponents(ctx context.Context, templateID string) ([]models.FeeComponent, error) {
	const query = `SELECT fc.id, fc.template_id, fc.name, fc.amount, fc.currency, fc.refundable, fc.sort_order
FROM fee_components fc JOIN fee_templates ft ON ft.id = fc.template_id
WHERE fc.template_id = $1 AND ft.company_id = $2 ORDER BY fc.sort_order, fc.name`
	var components []models.FeeComponent
	if err := t.tx.SelectContext(ctx, &components, query, templateID, t.app.CompanyID); err != nil {
		return nil, fmt.Errorf("list fee components: %w", err)
	}
	return components, nil
}

// UpdateLifecycle writes status and lifecycle dates with a version compare-and-swap.
func (t *applicationTx) UpdateLifecycle(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET status = :status, exact_arrival_date = :exact_arrival_date,
	labor_permit_date = :labor_permit_date, residency_permit_date = :residency_permit_date,
	permit_expiry_date = :permit_expiry_date, version = version + 1, updated_at = :updated_at
	WHERE id = :id AND company_id = :company_id AND version = :version`
	result, err := t.tx.NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	if err := expectOneRow(result, "update application status"); err != nil {
		return err
	}
	app.Version++
	return nil
}

// Touch bumps the version so concurrent writers holding a stale copy fail their CAS.
func (t *applicationTx) Touch(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET version = version + 1, updated_at = :updated_at
	WHERE id = :id AND company_id = :company_id AND version = :version`
	result, err := t.tx.NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("touch application: %w", err)
	}
	if err := expectOneRow(result, "touch application"); err != nil {
		return err
	}
	app.Version++
	return nil
}

func (t *applicationTx) AppendHistory(ctx context.Context, entry *models.StatusHistory) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO application_status_history (id, application_id, company_id, from_status, to_status, actor_id, note, created_at)
	VALUES (:id, :application_id, :company_id, :from_status, :to_status, :actor_id, :note, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

func (t *applicationTx) Settlement(ctx context.Context) (*models.CancellationSettlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM cancellation_settlements WHERE application_id = $1 AND company_id = $2 FOR UPDATE`
	var settlement models.CancellationSettlement
	if err := t.tx.GetContext(ctx, &settlement, query, t.app.ID, t.app.CompanyID); err != nil {
		return nil, err
	}
	return &settlement, nil
}

func (t *applicationTx) SaveSettlement(ctx context.Context, settlement *models.CancellationSettlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.NewString()
	}
	if settlement.ComputedAt.IsZero() {
		settlement.ComputedAt = time.Now().UTC()
	}
	settlement.ApplicationID = t.app.ID
	settlement.CompanyID = t.app.CompanyID
	const query = `INSERT INTO cancellation_settlements (id, application_id, company_id, class, responsible_party, currency,
	refundable_paid, refund_amount, penalty_amount, forfeited_amount, absorbed_cost, breakdown, policy, computed_by, computed_at)
	VALUES (:id, :application_id, :company_id, :class, :responsible_party, :currency, :refundable_paid, :refund_amount,
	:penalty_amount, :forfeited_amount, :absorbed_cost, :breakdown, :policy, :computed_by, :computed_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, settlement); err != nil {
		return fmt.Errorf("save settlement: %w", err)
	}
	return nil
}

// OverrideSettlement writes the override columns of a non-final settlement.
func (t *applicationTx) OverrideSettlement(ctx context.Context, settlement *models.CancellationSettlement) error {
	const query = `UPDATE cancellation_settlements SET override_refund = :override_refund, override_penalty = :override_penalty,
	override_reason = :override_reason, overridden_by = :overridden_by, overridden_at = :overridden_at
	WHERE id = :id AND company_id = :company_id AND finalized = FALSE`
	result, err := t.tx.NamedExecContext(ctx, query, settlement)
	if err != nil {
		return fmt.Errorf("override settlement: %w", err)
	}
	return expectOneRow(result, "override settlement")
}

// FinalizeSettlement marks the settlement final and links the application's payments to it.
func (t *applicationTx) FinalizeSettlement(ctx context.Context, settlement *models.CancellationSettlement) error {
	const query = `UPDATE cancellation_settlements SET finalized = TRUE, finalized_by = :finalized_by, finalized_at = :finalized_at
	WHERE id = :id AND company_id = :company_id AND finalized = FALSE`
	result, err := t.tx.NamedExecContext(ctx, query, settlement)
	if err != nil {
		return fmt.Errorf("finalize settlement: %w", err)
	}
	if err := expectOneRow(result, "finalize settlement"); err != nil {
		return err
	}
	const link = `UPDATE payments SET settlement_id = $1, updated_at = $2 WHERE application_id = $3 AND company_id = $4 AND settlement_id IS NULL`
	if _, err := t.tx.ExecContext(ctx, link, settlement.ID, time.Now().UTC(), t.app.ID, t.app.CompanyID); err != nil {
		return fmt.Errorf("link payments to settlement: %w", err)
	}
	return nil
}

func expectOneRow(result sql.Result, op string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check %s rows: %w", op, err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
