package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

var applicationRowColumns = []string{"id", "company_id", "candidate_ref", "client_ref", "broker_ref", "type", "status",
	"exact_arrival_date", "labor_permit_date", "residency_permit_date", "permit_expiry_date", "fee_template_id",
	"final_fee_amount", "notes", "version", "created_by", "created_at", "updated_at"}

func applicationRows(id, tenant string, status models.ApplicationStatus, version int) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows(applicationRowColumns).
		AddRow(id, tenant, "cand-1", "client-1", nil, "NEW_CANDIDATE", string(status), nil, nil, nil, nil, "tpl-1", 1200.5, "", version, "user-1", now, now)
}

func TestApplicationRepositoryCreateWithChecklist(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	app := &models.Application{CompanyID: "tenant-a", CandidateRef: "cand-1", ClientRef: "client-1", Type: models.ApplicationTypeNewCandidate, Status: models.StatusPendingMOL}
	checklist := []models.ChecklistItem{
		{Name: "Passport", Stage: models.StatusPendingMOL, RequiredFrom: models.RequiredFromOffice, Required: true},
		{Name: "Sponsor ID", Stage: models.StatusPendingMOL, RequiredFrom: models.RequiredFromClient, Required: true},
	}
	require.NoError(t, repo.Create(context.Background(), app, checklist))
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, 1, app.Version)
	assert.Equal(t, app.ID, checklist[0].ApplicationID)
	assert.Equal(t, "tenant-a", checklist[1].CompanyID)
	assert.Equal(t, models.DocumentPending, checklist[1].Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryCreateRollsBack(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO applications")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).WillReturnError(errors.New("duplicate"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Application{CompanyID: "tenant-a"}, []models.ChecklistItem{{Name: "Passport"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryGetIsTenantScoped(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery("FROM applications WHERE id = \\$1 AND company_id = \\$2").
		WithArgs("app-1", "tenant-b").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "tenant-b", "app-1")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectQuery("FROM applications WHERE company_id = \\$1 AND status = \\$2 AND client_ref = \\$3 ORDER BY created_at DESC LIMIT 10 OFFSET 10").
		WithArgs("tenant-a", models.StatusVisaProcessing, "client-1").
		WillReturnRows(applicationRows("app-1", "tenant-a", models.StatusVisaProcessing, 3))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM applications WHERE company_id = $1")).
		WithArgs("tenant-a", models.StatusVisaProcessing, "client-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	apps, total, err := repo.List(context.Background(), "tenant-a", models.ApplicationFilter{
		Status:    models.StatusVisaProcessing,
		ClientRef: "client-1",
		Page:      2,
		PageSize:  10,
	})
	require.NoError(t, err)
	require.Len(t, apps, 1)
	assert.Equal(t, 11, total)
	assert.Equal(t, 3, apps[0].Version)
	require.NotNil(t, apps[0].FinalFeeAmount)
	assert.Equal(t, 1200.5, *apps[0].FinalFeeAmount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplicationRepositoryUpdateDetailsConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET candidate_ref")).WillReturnResult(sqlmock.NewResult(0, 0))

	app := &models.Application{ID: "app-1", CompanyID: "tenant-a", Version: 2}
	err := repo.UpdateDetails(context.Background(), app)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.Equal(t, 2, app.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithApplicationLockCommitsTransition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery("FROM applications WHERE id = \\$1 AND company_id = \\$2 FOR UPDATE").
		WithArgs("app-1", "tenant-a").
		WillReturnRows(applicationRows("app-1", "tenant-a", models.StatusPendingMOL, 4))
	mock.ExpectQuery("FROM checklist_items WHERE application_id = \\$1 AND company_id = \\$2").
		WithArgs("app-1", "tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "company_id", "requirement_id", "name", "stage", "required_from", "required", "status", "file_url", "notes", "updated_by", "updated_at"}).
			AddRow("item-1", "app-1", "tenant-a", "req-1", "Passport", "PENDING_MOL", "OFFICE", true, "APPROVED", nil, "", nil, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO application_status_history")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.WithApplicationLock(context.Background(), "tenant-a", "app-1", func(ctx context.Context, app *models.Application, tx ApplicationTx) error {
		items, err := tx.Checklist(ctx)
		if err != nil {
			return err
		}
		require.Len(t, items, 1)
		assert.Equal(t, models.DocumentApproved, items[0].Status)

		from := app.Status
		app.Status = models.StatusMOLAuthReceived
		if err := tx.UpdateLifecycle(ctx, app); err != nil {
			return err
		}
		assert.Equal(t, 5, app.Version)
		return tx.AppendHistory(ctx, &models.StatusHistory{ApplicationID: app.ID, CompanyID: app.CompanyID, FromStatus: from, ToStatus: app.Status, ActorID: "user-1"})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithApplicationLockRollsBackOnConflict(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("app-1", "tenant-a").
		WillReturnRows(applicationRows("app-1", "tenant-a", models.StatusPendingMOL, 4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE applications SET status")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.WithApplicationLock(context.Background(), "tenant-a", "app-1", func(ctx context.Context, app *models.Application, tx ApplicationTx) error {
		app.Status = models.StatusMOLAuthReceived
		return tx.UpdateLifecycle(ctx, app)
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithApplicationLockMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs("app-9", "tenant-a").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	called := false
	err := repo.WithApplicationLock(context.Background(), "tenant-a", "app-9", func(context.Context, *models.Application, ApplicationTx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.False(t, called)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeSettlementLinksPayments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewApplicationRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs("app-1", "tenant-a").
		WillReturnRows(applicationRows("app-1", "tenant-a", models.StatusCancelledPreArrival, 6))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE cancellation_settlements SET finalized = TRUE")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET settlement_id = $1")).
		WithArgs("set-1", sqlmock.AnyArg(), "app-1", "tenant-a").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err := repo.WithApplicationLock(context.Background(), "tenant-a", "app-1", func(ctx context.Context, app *models.Application, tx ApplicationTx) error {
		now := time.Now()
		actor := "user-1"
		return tx.FinalizeSettlement(ctx, &models.CancellationSettlement{ID: "set-1", CompanyID: app.CompanyID, FinalizedBy: &actor, FinalizedAt: &now})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
