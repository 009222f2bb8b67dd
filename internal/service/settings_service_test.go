package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/pkg/config"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type settingsStoreStub struct {
	byTenant map[string]*models.TenantSettings
}

func newSettingsStoreStub() *settingsStoreStub {
	return &settingsStoreStub{byTenant: map[string]*models.TenantSettings{}}
}

func (s *settingsStoreStub) Get(_ context.Context, tenantID string) (*models.TenantSettings, error) {
	settings, ok := s.byTenant[tenantID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *settings
	return &clone, nil
}

func (s *settingsStoreStub) Upsert(_ context.Context, settings *models.TenantSettings) error {
	clone := *settings
	s.byTenant[settings.CompanyID] = &clone
	return nil
}

type auditSinkStub struct {
	logs []*models.AuditLog
}

func (a *auditSinkStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestSettingsService(store tenantSettingsStore, audit auditSink) *SettingsService {
	return NewSettingsService(store, NewAccessGuard(nil), config.CancellationConfig{PenaltyPercent: 10, ProbationMonths: 3}, audit, zap.NewNop())
}

func TestSettingsServicePolicyDefaults(t *testing.T) {
	svc := newTestSettingsService(newSettingsStoreStub(), nil)

	policy, err := svc.Policy(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 10.0, policy.PenaltyPercent)
	assert.Equal(t, 3, policy.ProbationMonths)
	assert.Empty(t, policy.PostProbationEligibleComponents)
}

func TestSettingsServiceUpdatePolicy(t *testing.T) {
	store := newSettingsStoreStub()
	audit := &auditSinkStub{}
	svc := newTestSettingsService(store, audit)
	actor := actorFor(models.RoleSuperAdmin, "tenant-a")

	raw := json.RawMessage(`{"penalty_percent":15,"probation_months":6,"post_probation_refund_percent":50,"post_probation_eligible_components":[" Visa "]}`)
	settings, err := svc.UpdateCancellationPolicy(context.Background(), actor, raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"Visa"}, settings.CancellationPolicy.PostProbationEligibleComponents)

	policy, err := svc.Policy(context.Background(), "tenant-a")
	require.NoError(t, err)
	assert.Equal(t, 6, policy.ProbationMonths)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSettingsUpdate, audit.logs[0].Action)

	other, err := svc.Policy(context.Background(), "tenant-b")
	require.NoError(t, err)
	assert.Equal(t, 3, other.ProbationMonths)
}

func TestSettingsServiceRejectsInvalidPolicy(t *testing.T) {
	svc := newTestSettingsService(newSettingsStoreStub(), nil)
	actor := actorFor(models.RoleSuperAdmin, "tenant-a")

	cases := map[string]string{
		"percent above 100": `{"penalty_percent":120,"probation_months":3}`,
		"missing probation": `{"penalty_percent":10}`,
		"unknown field":     `{"penalty_percent":10,"probation_months":3,"bonus":1}`,
		"not json":          `{`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.UpdateCancellationPolicy(context.Background(), actor, json.RawMessage(raw))
			assert.ErrorIs(t, err, appErrors.ErrValidation)
		})
	}
}

func TestSettingsServiceRequiresCapability(t *testing.T) {
	svc := newTestSettingsService(newSettingsStoreStub(), nil)

	_, err := svc.Get(context.Background(), actorFor(models.RoleStaff, "tenant-a"))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.UpdateCancellationPolicy(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}
