package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/pkg/config"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

// cancellationPolicySchema constrains tenant policy documents before they reach the calculator.
const cancellationPolicySchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": ["penalty_percent", "probation_months"],
  "properties": {
    "penalty_percent": {"type": "number", "minimum": 0, "maximum": 100},
    "probation_months": {"type": "integer", "minimum": 0, "maximum": 24},
    "post_probation_refund_percent": {"type": "number", "minimum": 0, "maximum": 100},
    "post_probation_eligible_components": {
      "type": "array",
      "items": {"type": "string", "minLength": 1, "maxLength": 120},
      "uniqueItems": true
    }
  }
}`

type tenantSettingsStore interface {
	Get(ctx context.Context, tenantID string) (*models.TenantSettings, error)
	Upsert(ctx context.Context, settings *models.TenantSettings) error
}

// SettingsService manages per-tenant cancellation policy documents.
type SettingsService struct {
	repo     tenantSettingsStore
	guard    *AccessGuard
	defaults models.CancellationPolicy
	schema   *gojsonschema.Schema
	audit    auditTrail
	logger   *zap.Logger
}

// NewSettingsService constructs the service. defaults apply to tenants without a stored policy.
func NewSettingsService(repo tenantSettingsStore, guard *AccessGuard, defaults config.CancellationConfig, audit auditSink, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(cancellationPolicySchema))
	if err != nil {
		panic("invalid cancellation policy schema: " + err.Error())
	}
	return &SettingsService{
		repo:  repo,
		guard: guard,
		defaults: models.CancellationPolicy{
			PenaltyPercent:                  defaults.PenaltyPercent,
			ProbationMonths:                 defaults.ProbationMonths,
			PostProbationRefundPercent:      defaults.PostProbationRefundPercent,
			PostProbationEligibleComponents: []string{},
		},
		schema: schema,
		audit:  newAuditTrail(audit, "settings-service", logger),
		logger: logger,
	}
}

// Policy returns the tenant's cancellation policy, falling back to the configured defaults.
// It performs no authorization and is meant for other services that already authorized the actor.
func (s *SettingsService) Policy(ctx context.Context, tenantID string) (models.CancellationPolicy, error) {
	settings, err := s.repo.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.defaults, nil
		}
		return models.CancellationPolicy{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tenant settings")
	}
	return settings.CancellationPolicy, nil
}

// Get returns the actor's tenant settings.
func (s *SettingsService) Get(ctx context.Context, actor *models.JWTClaims) (*models.TenantSettings, error) {
	if err := s.guard.Require(actor, CapSettingsRead); err != nil {
		return nil, err
	}
	policy, err := s.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}
	return &models.TenantSettings{CompanyID: actor.CompanyID, CancellationPolicy: policy}, nil
}

// UpdateCancellationPolicy validates raw against the policy schema and stores it.
func (s *SettingsService) UpdateCancellationPolicy(ctx context.Context, actor *models.JWTClaims, raw json.RawMessage) (*models.TenantSettings, error) {
	if err := s.guard.Require(actor, CapSettingsWrite); err != nil {
		return nil, err
	}
	policy, err := s.ParsePolicy(raw)
	if err != nil {
		return nil, err
	}

	previous, err := s.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	settings := &models.TenantSettings{
		CompanyID:          actor.CompanyID,
		CancellationPolicy: policy,
		UpdatedBy:          &actor.UserID,
		UpdatedAt:          time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, settings); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save tenant settings")
	}

	s.audit.record(ctx, actor, models.AuditActionSettingsUpdate, "tenant_settings", actor.CompanyID, previous, policy)
	s.logger.Info("cancellation policy updated", zap.String("tenant_id", actor.CompanyID), zap.String("user_id", actor.UserID))
	return settings, nil
}

// ParsePolicy checks raw against the schema and decodes it.
func (s *SettingsService) ParsePolicy(raw json.RawMessage) (models.CancellationPolicy, error) {
	if len(raw) == 0 {
		return models.CancellationPolicy{}, appErrors.Clone(appErrors.ErrValidation, "policy document is required")
	}
	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return models.CancellationPolicy{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "policy document is not valid JSON")
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return models.CancellationPolicy{}, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "policy document failed validation"), problems)
	}

	var policy models.CancellationPolicy
	if err := json.Unmarshal(raw, &policy); err != nil {
		return models.CancellationPolicy{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "policy document could not be decoded")
	}
	names := make([]string, 0, len(policy.PostProbationEligibleComponents))
	for _, name := range policy.PostProbationEligibleComponents {
		names = append(names, strings.TrimSpace(name))
	}
	policy.PostProbationEligibleComponents = names
	return policy, nil
}
