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

type requirementStore interface {
	ListByType(ctx context.Context, tenantID string, appType models.ApplicationType) ([]models.DocumentRequirement, error)
	Create(ctx context.Context, item *models.DocumentRequirement, openStatuses []models.ApplicationStatus) (int, error)
	Delete(ctx context.Context, tenantID, id string) error
}

// RequirementService manages the per-tenant document requirement templates.
type RequirementService struct {
	repo      requirementStore
	resolver  *DocumentResolver
	guard     *AccessGuard
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRequirementService constructs the service.
func NewRequirementService(repo requirementStore, resolver *DocumentResolver, guard *AccessGuard, validate *validator.Validate, logger *zap.Logger) *RequirementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &RequirementService{repo: repo, resolver: resolver, guard: guard, validator: validate, logger: logger}
}

// List returns templates of the actor's tenant, optionally for one application type.
func (s *RequirementService) List(ctx context.Context, actor *models.JWTClaims, appType string) ([]models.DocumentRequirement, error) {
	if err := s.guard.Require(actor, CapDocumentsRead); err != nil {
		return nil, err
	}
	kind := models.ApplicationType(strings.ToUpper(strings.TrimSpace(appType)))
	if kind != "" && !kind.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown application type")
	}
	items, err := s.repo.ListByType(ctx, actor.CompanyID, kind)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list document requirements")
	}
	if items == nil {
		items = []models.DocumentRequirement{}
	}
	return items, nil
}

// Create adds a template and a PENDING checklist item to every open application of the type that
// has not yet moved past the template's stage. Without that item the stage gate would report the
// document missing with no way to supply it.
func (s *RequirementService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRequirementRequest) (*models.DocumentRequirement, error) {
	if err := s.guard.Require(actor, CapSettingsWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid requirement payload")
	}
	stage := models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(string(req.Stage))))
	if !IsKnownStatus(stage) || IsTerminal(stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "stage must be a non-terminal lifecycle status")
	}

	required := true
	if req.Required != nil {
		required = *req.Required
	}
	item := &models.DocumentRequirement{
		CompanyID:       actor.CompanyID,
		ApplicationType: req.ApplicationType,
		Stage:           stage,
		Name:            strings.TrimSpace(req.Name),
		RequiredFrom:    req.RequiredFrom,
		Required:        required,
		Order:           req.Order,
	}
	added, err := s.repo.Create(ctx, item, StatusesThrough(stage))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document requirement")
	}
	s.resolver.Invalidate(ctx, actor.CompanyID)
	s.logger.Info("document requirement added",
		zap.String("tenant_id", actor.CompanyID),
		zap.String("requirement_id", item.ID),
		zap.Int("open_applications", added),
	)
	return item, nil
}

// Delete removes a template of the actor's tenant.
func (s *RequirementService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if err := s.guard.Require(actor, CapSettingsWrite); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, actor.CompanyID, id); err != nil {
		return storeError(err, "failed to delete document requirement")
	}
	s.resolver.Invalidate(ctx, actor.CompanyID)
	return nil
}
