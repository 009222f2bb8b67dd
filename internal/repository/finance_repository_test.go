package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

func TestPaymentRepositoryUpdateSkipsLinkedPayments(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = ? AND company_id = ? AND settlement_id IS NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Payment{ID: "pay-1", CompanyID: "tenant-a", Amount: 100, Currency: "KWD"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateRefusesSettledApplication(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM applications WHERE id = $1 AND company_id = $2 FOR SHARE")).
		WithArgs("app-1", "tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM cancellation_settlements")).
		WithArgs("app-1", "tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &models.Payment{ApplicationID: "app-1", CompanyID: "tenant-a", Amount: 100, Currency: "KWD"})
	assert.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryCreateInsertsUnderLock(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR SHARE")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("app-1"))
	mock.ExpectQuery(regexp.QuoteMeta("cancellation_settlements")).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	payment := &models.Payment{ApplicationID: "app-1", CompanyID: "tenant-a", Amount: 100, Currency: "KWD"}
	require.NoError(t, repo.Create(context.Background(), payment))
	assert.NotEmpty(t, payment.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryDeleteSkipsSettledApplications(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("settlement_id IS NULL AND NOT EXISTS (SELECT 1 FROM cancellation_settlements")).
		WithArgs("pay-1", "tenant-a").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "tenant-a", "pay-1"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepositoryListBetween(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewPaymentRepository(db)
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM payments")).
		WithArgs("tenant-a", from, nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "company_id", "client_ref", "amount", "currency", "paid_at", "type", "refundable", "settlement_id", "created_at", "updated_at"}).
			AddRow("pay-1", "app-1", "tenant-a", "client-1", 500.25, "KWD", from, "DEPOSIT", true, nil, from, from))

	payments, err := repo.ListBetween(context.Background(), "tenant-a", &from, nil)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, 500.25, payments[0].Amount)
	assert.Nil(t, payments[0].SettlementID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCostRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewCostRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM costs WHERE id = $1 AND company_id = $2")).
		WithArgs("cost-1", "tenant-b").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "tenant-b", "cost-1"), sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeTemplateRepositoryUpdateReplacesComponents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeTemplateRepository(db)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fee_templates SET")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM fee_components WHERE template_id = $1")).
		WithArgs("tpl-1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fee_components")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	template := &models.FeeTemplate{
		ID:        "tpl-1",
		CompanyID: "tenant-a",
		Currency:  "KWD",
		Components: []models.FeeComponent{
			{Name: "Visa", Amount: 200, Currency: "KWD", Refundable: true},
		},
	}
	require.NoError(t, repo.Update(context.Background(), template))
	assert.Equal(t, "tpl-1", template.Components[0].TemplateID)
	assert.NotEmpty(t, template.Components[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFeeTemplateRepositoryGetLoadsComponents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewFeeTemplateRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM fee_templates WHERE id = $1 AND company_id = $2")).
		WithArgs("tpl-1", "tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "company_id", "name", "nationality", "service_type", "currency", "default_price", "min_price", "max_price", "active", "created_at", "updated_at"}).
			AddRow("tpl-1", "tenant-a", "Standard", "PH", "HOUSEMAID", "KWD", 1000.0, 900.0, 1100.0, true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fee_components WHERE template_id = $1")).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "name", "amount", "currency", "refundable", "sort_order"}).
			AddRow("c-1", "tpl-1", "Visa", 400.0, "KWD", true, 1).
			AddRow("c-2", "tpl-1", "Recruitment", 600.0, "KWD", false, 2))

	template, err := repo.Get(context.Background(), "tenant-a", "tpl-1")
	require.NoError(t, err)
	require.Len(t, template.Components, 2)
	assert.False(t, template.Components[1].Refundable)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTenantSettingsRepositoryRoundTrip(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTenantSettingsRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("FROM tenant_settings WHERE company_id = $1")).
		WithArgs("tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"company_id", "cancellation_policy", "updated_by", "updated_at"}).
			AddRow("tenant-a", []byte(`{"penalty_percent":15,"probation_months":6,"post_probation_refund_percent":25,"post_probation_eligible_components":["Visa"]}`), nil, time.Now()))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tenant_settings")).WillReturnResult(sqlmock.NewResult(0, 1))

	settings, err := repo.Get(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 15.0, settings.CancellationPolicy.PenaltyPercent)
	assert.Equal(t, 6, settings.CancellationPolicy.ProbationMonths)
	assert.Equal(t, []string{"Visa"}, settings.CancellationPolicy.PostProbationEligibleComponents)

	require.NoError(t, repo.Upsert(context.Background(), settings))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSettlementRepositoryScansJSONColumns(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewSettlementRepository(db)
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM cancellation_settlements WHERE application_id = $1 AND company_id = $2")).
		WithArgs("app-1", "tenant-a").
		WillReturnRows(sqlmock.NewRows([]string{"id", "application_id", "company_id", "class", "responsible_party", "currency", "refundable_paid", "refund_amount",
			"penalty_amount", "forfeited_amount", "absorbed_cost", "breakdown", "policy", "override_refund", "override_penalty",
			"override_reason", "overridden_by", "overridden_at", "finalized", "finalized_by", "finalized_at", "computed_by", "computed_at"}).
			AddRow("set-1", "app-1", "tenant-a", "POST_ARRIVAL_WITHIN_PROBATION", "OFFICE", "KWD", 1000.0, 400.0, 0.0, 600.0, 0.0,
				[]byte(`[{"component_id":"c-1","name":"Visa","amount":400,"refundable":true,"eligible":true,"refunded":400,"forfeited":0}]`),
				[]byte(`{"penalty_percent":10,"probation_months":3}`),
				350.0, nil, "goodwill", "admin-1", now, false, nil, nil, "user-1", now))

	settlement, err := repo.GetByApplication(context.Background(), "tenant-a", "app-1")
	require.NoError(t, err)
	require.Len(t, settlement.Breakdown, 1)
	assert.Equal(t, 400.0, settlement.Breakdown[0].Refunded)
	assert.Equal(t, 400.0, settlement.RefundAmount)
	assert.Equal(t, 350.0, settlement.EffectiveRefund())
	assert.Equal(t, 0.0, settlement.EffectivePenalty())
	require.NoError(t, mock.ExpectationsWereMet())
}
