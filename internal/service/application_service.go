package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/internal/repository"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type applicationStore interface {
	Create(ctx context.Context, app *models.Application, checklist []models.ChecklistItem) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Application, error)
	List(ctx context.Context, tenantID string, filter models.ApplicationFilter) ([]models.Application, int, error)
	UpdateDetails(ctx context.Context, app *models.Application) error
	ListHistory(ctx context.Context, tenantID, applicationID string) ([]models.StatusHistory, error)
	WithApplicationLock(ctx context.Context, tenantID, id string, fn func(ctx context.Context, app *models.Application, tx repository.ApplicationTx) error) error
}

type requirementTemplates interface {
	ListByType(ctx context.Context, tenantID string, appType models.ApplicationType) ([]models.DocumentRequirement, error)
}

type checklistReader interface {
	ListByApplication(ctx context.Context, tenantID, applicationID string) ([]models.ChecklistItem, error)
}

type feeTemplateReader interface {
	Get(ctx context.Context, tenantID, id string) (*models.FeeTemplate, error)
}

type policySource interface {
	Policy(ctx context.Context, tenantID string) (models.CancellationPolicy, error)
}

// ApplicationServiceOption configures the service.
type ApplicationServiceOption func(*ApplicationService)

// WithApplicationClock overrides the time source used for transitions and settlements.
func WithApplicationClock(now func() time.Time) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if now != nil {
			s.now = now
		}
	}
}

// ApplicationService owns the application aggregate. It is the only writer of the status column.
type ApplicationService struct {
	repo         applicationStore
	requirements requirementTemplates
	checklist    checklistReader
	templates    feeTemplateReader
	policies     policySource
	resolver     *DocumentResolver
	guard        *AccessGuard
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	audit        auditTrail
	logger       *zap.Logger
	now          func() time.Time
}

// ApplicationDeps groups the collaborators of ApplicationService.
type ApplicationDeps struct {
	Repo         applicationStore
	Requirements requirementTemplates
	Checklist    checklistReader
	Templates    feeTemplateReader
	Policies     policySource
	Resolver     *DocumentResolver
	Guard        *AccessGuard
	Cache        *CacheService
	Metrics      *MetricsService
	Audit        auditSink
	Validator    *validator.Validate
	Logger       *zap.Logger
}

// NewApplicationService constructs the service.
func NewApplicationService(deps ApplicationDeps, opts ...ApplicationServiceOption) *ApplicationService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	validate := deps.Validator
	if validate == nil {
		validate = validator.New()
	}
	s := &ApplicationService{
		repo:         deps.Repo,
		requirements: deps.Requirements,
		checklist:    deps.Checklist,
		templates:    deps.Templates,
		policies:     deps.Policies,
		resolver:     deps.Resolver,
		guard:        deps.Guard,
		cache:        deps.Cache,
		metrics:      deps.Metrics,
		validator:    validate,
		audit:        newAuditTrail(deps.Audit, "application-service", logger),
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create opens an application in PENDING_MOL and seeds its checklist from the tenant's templates.
func (s *ApplicationService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateApplicationRequest) (*models.Application, error) {
	if err := s.guard.Require(actor, CapApplicationsWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}
	if err := s.checkFee(ctx, actor.CompanyID, req.FeeTemplateID, req.FinalFeeAmount); err != nil {
		return nil, err
	}

	templates, err := s.requirements.ListByType(ctx, actor.CompanyID, req.Type)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document requirements")
	}
	SortRequirements(templates)

	app := &models.Application{
		CompanyID:      actor.CompanyID,
		CandidateRef:   strings.TrimSpace(req.CandidateRef),
		ClientRef:      strings.TrimSpace(req.ClientRef),
		BrokerRef:      req.BrokerRef,
		Type:           req.Type,
		Status:         models.StatusPendingMOL,
		FeeTemplateID:  req.FeeTemplateID,
		FinalFeeAmount: req.FinalFeeAmount,
		Notes:          req.Notes,
		CreatedBy:      &actor.UserID,
	}
	if err := s.repo.Create(ctx, app, seedChecklist(templates)); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}

	s.audit.record(ctx, actor, models.AuditActionApplicationCreate, "application", app.ID, nil, app)
	invalidateDashboards(ctx, s.cache, actor.CompanyID)
	return app, nil
}

// Get returns one application of the actor's tenant.
func (s *ApplicationService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.Application, error) {
	if err := s.guard.Require(actor, CapApplicationsRead); err != nil {
		return nil, err
	}
	app, err := s.repo.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, storeError(err, "failed to load application")
	}
	return app, nil
}

// List returns a page of the tenant's applications.
func (s *ApplicationService) List(ctx context.Context, actor *models.JWTClaims, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	if err := s.guard.Require(actor, CapApplicationsRead); err != nil {
		return nil, nil, err
	}
	filter := models.ApplicationFilter{
		Status:       models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(query.Status))),
		Type:         models.ApplicationType(strings.ToUpper(strings.TrimSpace(query.Type))),
		ClientRef:    strings.TrimSpace(query.ClientRef),
		CandidateRef: strings.TrimSpace(query.CandidateRef),
		Page:         query.Page,
		PageSize:     query.PageSize,
	}
	if filter.Status != "" && !IsKnownStatus(filter.Status) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown application type filter")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	apps, total, err := s.repo.List(ctx, actor.CompanyID, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return apps, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Update edits non-lifecycle fields under optimistic versioning.
func (s *ApplicationService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdateApplicationRequest) (*models.Application, error) {
	if err := s.guard.Require(actor, CapApplicationsWrite); err != nil {
		return nil, err
	}
	if present(req.Status) || present(req.ExactArrivalDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "status and exactArrivalDate change only through status transitions")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid application payload")
	}

	app, err := s.repo.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, storeError(err, "failed to load application")
	}
	if app.Version != req.Version {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "application was modified by another request"), map[string]int{"current_version": app.Version})
	}
	before := *app

	if req.CandidateRef != nil {
		app.CandidateRef = strings.TrimSpace(*req.CandidateRef)
	}
	if req.ClientRef != nil {
		app.ClientRef = strings.TrimSpace(*req.ClientRef)
	}
	if req.BrokerRef != nil {
		app.BrokerRef = req.BrokerRef
	}
	if req.FeeTemplateID != nil {
		app.FeeTemplateID = req.FeeTemplateID
	}
	if req.FinalFeeAmount != nil {
		app.FinalFeeAmount = req.FinalFeeAmount
	}
	if req.Notes != nil {
		app.Notes = *req.Notes
	}
	if err := s.checkFee(ctx, actor.CompanyID, app.FeeTemplateID, app.FinalFeeAmount); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateDetails(ctx, app); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "application was modified by another request")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}

	s.audit.record(ctx, actor, models.AuditActionApplicationUpdate, "application", app.ID, before, app)
	return app, nil
}

// Transitions lists the statuses reachable from the application's current status together with
// the document completion of the current stage.
func (s *ApplicationService) Transitions(ctx context.Context, actor *models.JWTClaims, id string) (*dto.TransitionOptions, error) {
	if err := s.guard.Require(actor, CapApplicationsRead); err != nil {
		return nil, err
	}
	app, err := s.repo.GetByID(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, storeError(err, "failed to load application")
	}
	items, err := s.checklist.ListByApplication(ctx, actor.CompanyID, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist")
	}
	requirements, err := s.resolver.RequiredDocuments(ctx, actor.CompanyID, app.Type, app.Status)
	if err != nil {
		return nil, err
	}
	return &dto.TransitionOptions{
		Current:    app.Status,
		Allowed:    AllowedTransitions(app.Status),
		Completion: IsStageComplete(app.Status, requirements, items, ""),
	}, nil
}

// History returns the applied transitions of an application, oldest first.
func (s *ApplicationService) History(ctx context.Context, actor *models.JWTClaims, id string) ([]models.StatusHistory, error) {
	if err := s.guard.Require(actor, CapApplicationsRead); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetByID(ctx, actor.CompanyID, id); err != nil {
		return nil, storeError(err, "failed to load application")
	}
	history, err := s.repo.ListHistory(ctx, actor.CompanyID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load status history")
	}
	if history == nil {
		history = []models.StatusHistory{}
	}
	return history, nil
}

// RequestTransition moves an application to req.Target. Every check, the status write, the
// history row and any cancellation settlement share one transaction holding the row lock.
func (s *ApplicationService) RequestTransition(ctx context.Context, actor *models.JWTClaims, id string, req models.TransitionRequest) (*models.TransitionResult, error) {
	if err := s.guard.Require(actor, CapApplicationsTransition); err != nil {
		return nil, err
	}
	req.Target = models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(string(req.Target))))
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	if !IsKnownStatus(req.Target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown target status")
	}

	var policy models.CancellationPolicy
	if IsCancellation(req.Target) {
		var err error
		if policy, err = s.policies.Policy(ctx, actor.CompanyID); err != nil {
			return nil, err
		}
	}

	now := s.now()
	var result models.TransitionResult
	err := s.repo.WithApplicationLock(ctx, actor.CompanyID, id, func(ctx context.Context, app *models.Application, tx repository.ApplicationTx) error {
		from := app.Status
		if !CanTransition(from, req.Target) {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, req.Target)),
				map[string]interface{}{"from": from, "to": req.Target, "allowed": AllowedTransitions(from)},
			)
		}

		if !IsCancellation(req.Target) {
			items, err := tx.Checklist(ctx)
			if err != nil {
				return err
			}
			requirements, err := s.resolver.RequiredDocuments(ctx, app.CompanyID, app.Type, from)
			if err != nil {
				return err
			}
			if completion := IsStageComplete(from, requirements, items, ""); !completion.Complete {
				return appErrors.WithDetails(appErrors.ErrDocumentsIncomplete, completion)
			}
		}

		if err := applyLifecycleDates(app, req); err != nil {
			return err
		}

		if IsCancellation(req.Target) {
			settlement, err := buildSettlement(ctx, app, tx, req.Target, policy, actor.UserID, now)
			if err != nil {
				return err
			}
			if err := tx.SaveSettlement(ctx, settlement); err != nil {
				return err
			}
			result.Settlement = settlement
		}

		app.Status = req.Target
		if err := tx.UpdateLifecycle(ctx, app); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "application was modified by another request")
			}
			return err
		}

		entry := &models.StatusHistory{
			ApplicationID: app.ID,
			CompanyID:     app.CompanyID,
			FromStatus:    from,
			ToStatus:      req.Target,
			ActorID:       actor.UserID,
			Note:          strings.TrimSpace(req.Note),
			CreatedAt:     now,
		}
		if err := tx.AppendHistory(ctx, entry); err != nil {
			return err
		}

		result.Application = app
		result.History = entry
		return nil
	})
	if err != nil {
		mapped := storeError(err, "failed to apply status transition")
		s.metrics.RecordTransition(req.Target, appErrors.FromError(mapped).Code)
		return nil, mapped
	}

	s.metrics.RecordTransition(req.Target, "applied")
	if result.Settlement != nil {
		s.metrics.RecordSettlement(result.Settlement.Class, "computed")
	}
	s.audit.record(ctx, actor, models.AuditActionStatusTransition, "application", result.Application.ID,
		map[string]interface{}{"status": result.History.FromStatus},
		map[string]interface{}{"status": result.History.ToStatus, "settlement": result.Settlement})
	s.logger.Info("application transitioned",
		zap.String("tenant_id", actor.CompanyID),
		zap.String("application_id", result.Application.ID),
		zap.String("from", string(result.History.FromStatus)),
		zap.String("to", string(result.History.ToStatus)),
	)
	invalidateDashboards(ctx, s.cache, actor.CompanyID)
	return &result, nil
}

// checkFee verifies a referenced fee template exists in the tenant and bounds the final fee.
func (s *ApplicationService) checkFee(ctx context.Context, tenantID string, templateID *string, finalFee *float64) error {
	if templateID == nil || s.templates == nil {
		return nil
	}
	tpl, err := s.templates.Get(ctx, tenantID, *templateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "fee template not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee template")
	}
	if finalFee != nil && (*finalFee < tpl.MinPrice || *finalFee > tpl.MaxPrice) {
		return appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "final fee is outside the template price range"),
			map[string]float64{"min": tpl.MinPrice, "max": tpl.MaxPrice},
		)
	}
	return nil
}

// applyLifecycleDates validates and copies the dates a transition carries onto app.
func applyLifecycleDates(app *models.Application, req models.TransitionRequest) error {
	switch {
	case req.Target == models.StatusWorkerArrived:
		if app.ExactArrivalDate != nil {
			return appErrors.ErrArrivalDateAlreadySet
		}
		if req.ExactArrivalDate == nil {
			return appErrors.ErrMissingArrivalDate
		}
		arrival := req.ExactArrivalDate.UTC()
		app.ExactArrivalDate = &arrival
	case req.ExactArrivalDate != nil:
		return appErrors.Clone(appErrors.ErrValidation, "exactArrivalDate can only be recorded when entering WORKER_ARRIVED")
	}

	if req.LaborPermitDate != nil {
		v := req.LaborPermitDate.UTC()
		app.LaborPermitDate = &v
	}
	if req.ResidencyPermitDate != nil {
		v := req.ResidencyPermitDate.UTC()
		app.ResidencyPermitDate = &v
	}
	if req.PermitExpiryDate != nil {
		v := req.PermitExpiryDate.UTC()
		app.PermitExpiryDate = &v
	}

	switch req.Target {
	case models.StatusResidencyPermitProcessing:
		if app.LaborPermitDate == nil {
			return appErrors.Clone(appErrors.ErrValidation, "laborPermitDate is required before residency permit processing")
		}
	case models.StatusActiveEmployment:
		if app.ResidencyPermitDate == nil || app.PermitExpiryDate == nil {
			return appErrors.Clone(appErrors.ErrValidation, "residencyPermitDate and permitExpiryDate are required for active employment")
		}
		if app.PermitExpiryDate.Before(*app.ResidencyPermitDate) {
			return appErrors.Clone(appErrors.ErrValidation, "permitExpiryDate must not precede residencyPermitDate")
		}
	}
	return nil
}

func seedChecklist(templates []models.DocumentRequirement) []models.ChecklistItem {
	items := make([]models.ChecklistItem, 0, len(templates))
	for i := range templates {
		tpl := templates[i]
		items = append(items, models.ChecklistItem{
			RequirementID: &tpl.ID,
			Name:          tpl.Name,
			Stage:         tpl.Stage,
			RequiredFrom:  tpl.RequiredFrom,
			Required:      tpl.Required,
			Status:        models.DocumentPending,
		})
	}
	return items
}

func present(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}

// storeError normalises repository failures. sql.ErrNoRows becomes the shared NotFound error so
// a miss and a foreign-tenant id are indistinguishable.
func storeError(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.ErrNotFound
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
