package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type feeTemplateStore interface {
	List(ctx context.Context, tenantID, nationality, serviceType string) ([]models.FeeTemplate, error)
	Get(ctx context.Context, tenantID, id string) (*models.FeeTemplate, error)
	Create(ctx context.Context, template *models.FeeTemplate) error
	Update(ctx context.Context, template *models.FeeTemplate) error
}

// FeeTemplateService manages priced service templates and their refundable components.
type FeeTemplateService struct {
	repo      feeTemplateStore
	guard     *AccessGuard
	validator *validator.Validate
	audit     auditTrail
	logger    *zap.Logger
}

// NewFeeTemplateService constructs the service.
func NewFeeTemplateService(repo feeTemplateStore, guard *AccessGuard, audit auditSink, validate *validator.Validate, logger *zap.Logger) *FeeTemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FeeTemplateService{
		repo:      repo,
		guard:     guard,
		validator: validate,
		audit:     newAuditTrail(audit, "fee-template-service", logger),
		logger:    logger,
	}
}

// List returns templates, optionally scoped by nationality and service type.
func (s *FeeTemplateService) List(ctx context.Context, actor *models.JWTClaims, query dto.FeeTemplateQuery) ([]models.FeeTemplate, error) {
	if err := s.guard.Require(actor, CapFinanceRead); err != nil {
		return nil, err
	}
	templates, err := s.repo.List(ctx, actor.CompanyID, strings.TrimSpace(query.Nationality), strings.TrimSpace(query.ServiceType))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fee templates")
	}
	if templates == nil {
		templates = []models.FeeTemplate{}
	}
	return templates, nil
}

// Get returns one template with its components.
func (s *FeeTemplateService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.FeeTemplate, error) {
	if err := s.guard.Require(actor, CapFinanceRead); err != nil {
		return nil, err
	}
	template, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, storeError(err, "failed to load fee template")
	}
	return template, nil
}

// Create stores a new template.
func (s *FeeTemplateService) Create(ctx context.Context, actor *models.JWTClaims, req dto.FeeTemplateRequest) (*models.FeeTemplate, error) {
	if err := s.guard.Require(actor, CapFinanceWrite); err != nil {
		return nil, err
	}
	template, err := s.buildTemplate(req)
	if err != nil {
		return nil, err
	}
	template.CompanyID = actor.CompanyID
	if err := s.repo.Create(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee template")
	}
	s.audit.record(ctx, actor, models.AuditActionFinanceWrite, "fee_template", template.ID, nil, template)
	return template, nil
}

// Update replaces a template and its components.
func (s *FeeTemplateService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.FeeTemplateRequest) (*models.FeeTemplate, error) {
	if err := s.guard.Require(actor, CapFinanceWrite); err != nil {
		return nil, err
	}
	current, err := s.repo.Get(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, storeError(err, "failed to load fee template")
	}
	template, err := s.buildTemplate(req)
	if err != nil {
		return nil, err
	}
	template.ID = current.ID
	template.CompanyID = current.CompanyID
	template.CreatedAt = current.CreatedAt
	if req.Active == nil {
		template.Active = current.Active
	}
	for i := range template.Components {
		template.Components[i].TemplateID = current.ID
	}
	if err := s.repo.Update(ctx, template); err != nil {
		return nil, storeError(err, "failed to update fee template")
	}
	s.audit.record(ctx, actor, models.AuditActionFinanceWrite, "fee_template", template.ID, current, template)
	return template, nil
}

func (s *FeeTemplateService) buildTemplate(req dto.FeeTemplateRequest) (*models.FeeTemplate, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee template payload")
	}
	if req.MinPrice > req.DefaultPrice || req.DefaultPrice > req.MaxPrice {
		return nil, appErrors.Clone(appErrors.ErrValidation, "prices must satisfy min <= default <= max")
	}

	currency := strings.ToUpper(req.Currency)
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	template := &models.FeeTemplate{
		Name:         strings.TrimSpace(req.Name),
		Nationality:  strings.TrimSpace(req.Nationality),
		ServiceType:  strings.TrimSpace(req.ServiceType),
		Currency:     currency,
		DefaultPrice: round2(req.DefaultPrice),
		MinPrice:     round2(req.MinPrice),
		MaxPrice:     round2(req.MaxPrice),
		Active:       active,
		Components:   make([]models.FeeComponent, 0, len(req.Components)),
	}

	seen := make(map[string]struct{}, len(req.Components))
	for _, c := range req.Components {
		if !strings.EqualFold(c.Currency, currency) {
			return nil, appErrors.WithDetails(appErrors.ErrCurrencyMismatch, map[string]string{"expected": currency, "found": c.Currency, "component": c.Name})
		}
		name := strings.TrimSpace(c.Name)
		key := strings.ToLower(name)
		if _, dup := seen[key]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, "component names must be unique within a template")
		}
		seen[key] = struct{}{}
		template.Components = append(template.Components, models.FeeComponent{
			Name:       name,
			Amount:     round2(c.Amount),
			Currency:   currency,
			Refundable: c.Refundable,
			Order:      c.Order,
		})
	}
	return template, nil
}
