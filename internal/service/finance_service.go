package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type applicationReader interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Application, error)
}

type paymentStore interface {
	ListByApplication(ctx context.Context, tenantID, applicationID string) ([]models.Payment, error)
	Get(ctx context.Context, tenantID, id string) (*models.Payment, error)
	Create(ctx context.Context, payment *models.Payment) error
	Update(ctx context.Context, payment *models.Payment) error
	Delete(ctx context.Context, tenantID, id string) error
}

type costStore interface {
	ListByApplication(ctx context.Context, tenantID, applicationID string) ([]models.Cost, error)
	Get(ctx context.Context, tenantID, id string) (*models.Cost, error)
	Create(ctx context.Context, cost *models.Cost) error
	Update(ctx context.Context, cost *models.Cost) error
	Delete(ctx context.Context, tenantID, id string) error
}

// FinanceService records payments received and costs incurred per application.
type FinanceService struct {
	apps      applicationReader
	payments  paymentStore
	costs     costStore
	guard     *AccessGuard
	cache     *CacheService
	validator *validator.Validate
	audit     auditTrail
	logger    *zap.Logger
}

// NewFinanceService constructs the service.
func NewFinanceService(apps applicationReader, payments paymentStore, costs costStore, guard *AccessGuard, cache *CacheService, audit auditSink, validate *validator.Validate, logger *zap.Logger) *FinanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FinanceService{
		apps:      apps,
		payments:  payments,
		costs:     costs,
		guard:     guard,
		cache:     cache,
		validator: validate,
		audit:     newAuditTrail(audit, "finance-service", logger),
		logger:    logger,
	}
}

// ListPayments returns the payments of an application.
func (s *FinanceService) ListPayments(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]models.Payment, error) {
	if _, err := s.ownedApplication(ctx, actor, CapFinanceRead, applicationID); err != nil {
		return nil, err
	}
	payments, err := s.payments.ListByApplication(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	if payments == nil {
		payments = []models.Payment{}
	}
	return payments, nil
}

// CreatePayment records money received for an application.
func (s *FinanceService) CreatePayment(ctx context.Context, actor *models.JWTClaims, applicationID string, req dto.PaymentRequest) (*models.Payment, error) {
	app, err := s.ownedApplication(ctx, actor, CapFinanceWrite, applicationID)
	if err != nil {
		return nil, err
	}
	if err := paymentsOpen(app); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	payment := &models.Payment{
		ApplicationID: app.ID,
		CompanyID:     app.CompanyID,
		ClientRef:     app.ClientRef,
		Amount:        round2(req.Amount),
		Currency:      strings.ToUpper(req.Currency),
		PaidAt:        req.PaidAt.UTC(),
		Type:          strings.TrimSpace(req.Type),
		Refundable:    req.Refundable,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, s.paymentWriteError(ctx, actor.CompanyID, app.ID, "", err, "failed to create payment")
	}
	s.written(ctx, actor, "payment", payment.ID, nil, payment)
	return payment, nil
}

// UpdatePayment rewrites a payment. Payments are immutable once the application has a settlement.
func (s *FinanceService) UpdatePayment(ctx context.Context, actor *models.JWTClaims, applicationID, paymentID string, req dto.PaymentRequest) (*models.Payment, error) {
	app, err := s.ownedApplication(ctx, actor, CapFinanceWrite, applicationID)
	if err != nil {
		return nil, err
	}
	if err := paymentsOpen(app); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	current, err := s.mutablePayment(ctx, actor.CompanyID, applicationID, paymentID)
	if err != nil {
		return nil, err
	}
	before := *current

	current.Amount = round2(req.Amount)
	current.Currency = strings.ToUpper(req.Currency)
	current.PaidAt = req.PaidAt.UTC()
	current.Type = strings.TrimSpace(req.Type)
	current.Refundable = req.Refundable
	if err := s.payments.Update(ctx, current); err != nil {
		return nil, s.paymentWriteError(ctx, actor.CompanyID, applicationID, paymentID, err, "failed to update payment")
	}
	s.written(ctx, actor, "payment", current.ID, before, current)
	return current, nil
}

// DeletePayment removes a payment of an application that has no settlement yet.
func (s *FinanceService) DeletePayment(ctx context.Context, actor *models.JWTClaims, applicationID, paymentID string) error {
	app, err := s.ownedApplication(ctx, actor, CapFinanceWrite, applicationID)
	if err != nil {
		return err
	}
	if err := paymentsOpen(app); err != nil {
		return err
	}
	current, err := s.mutablePayment(ctx, actor.CompanyID, applicationID, paymentID)
	if err != nil {
		return err
	}
	if err := s.payments.Delete(ctx, actor.CompanyID, paymentID); err != nil {
		return s.paymentWriteError(ctx, actor.CompanyID, applicationID, paymentID, err, "failed to delete payment")
	}
	s.written(ctx, actor, "payment", paymentID, current, nil)
	return nil
}

// ListCosts returns the costs of an application.
func (s *FinanceService) ListCosts(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]models.Cost, error) {
	if _, err := s.ownedApplication(ctx, actor, CapFinanceRead, applicationID); err != nil {
		return nil, err
	}
	costs, err := s.costs.ListByApplication(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list costs")
	}
	if costs == nil {
		costs = []models.Cost{}
	}
	return costs, nil
}

// CreateCost records money spent by the office on an application.
func (s *FinanceService) CreateCost(ctx context.Context, actor *models.JWTClaims, applicationID string, req dto.CostRequest) (*models.Cost, error) {
	app, err := s.ownedApplication(ctx, actor, CapFinanceWrite, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cost payload")
	}
	cost := &models.Cost{
		ApplicationID: app.ID,
		CompanyID:     app.CompanyID,
		Amount:        round2(req.Amount),
		Currency:      strings.ToUpper(req.Currency),
		IncurredAt:    req.IncurredAt.UTC(),
		Type:          req.Type,
		Description:   strings.TrimSpace(req.Description),
	}
	if err := s.costs.Create(ctx, cost); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create cost")
	}
	s.written(ctx, actor, "cost", cost.ID, nil, cost)
	return cost, nil
}

// UpdateCost rewrites a cost.
func (s *FinanceService) UpdateCost(ctx context.Context, actor *models.JWTClaims, applicationID, costID string, req dto.CostRequest) (*models.Cost, error) {
	if _, err := s.ownedApplication(ctx, actor, CapFinanceWrite, applicationID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cost payload")
	}
	current, err := s.costs.Get(ctx, actor.CompanyID, costID)
	if err != nil {
		return nil, storeError(err, "failed to load cost")
	}
	if current.ApplicationID != applicationID {
		return nil, appErrors.ErrNotFound
	}
	before := *current

	current.Amount = round2(req.Amount)
	current.Currency = strings.ToUpper(req.Currency)
	current.IncurredAt = req.IncurredAt.UTC()
	current.Type = req.Type
	current.Description = strings.TrimSpace(req.Description)
	if err := s.costs.Update(ctx, current); err != nil {
		return nil, storeError(err, "failed to update cost")
	}
	s.written(ctx, actor, "cost", current.ID, before, current)
	return current, nil
}

// DeleteCost removes a cost.
func (s *FinanceService) DeleteCost(ctx context.Context, actor *models.JWTClaims, applicationID, costID string) error {
	if _, err := s.ownedApplication(ctx, actor, CapFinanceWrite, applicationID); err != nil {
		return err
	}
	current, err := s.costs.Get(ctx, actor.CompanyID, costID)
	if err != nil {
		return storeError(err, "failed to load cost")
	}
	if current.ApplicationID != applicationID {
		return appErrors.ErrNotFound
	}
	if err := s.costs.Delete(ctx, actor.CompanyID, costID); err != nil {
		return storeError(err, "failed to delete cost")
	}
	s.written(ctx, actor, "cost", costID, current, nil)
	return nil
}

// ownedApplication authorizes the actor and proves the application belongs to their tenant.
func (s *FinanceService) ownedApplication(ctx context.Context, actor *models.JWTClaims, capability Capability, applicationID string) (*models.Application, error) {
	if err := s.guard.Require(actor, capability); err != nil {
		return nil, err
	}
	app, err := s.apps.GetByID(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, storeError(err, "failed to load application")
	}
	if err := s.guard.Authorize(actor, app.CompanyID, capability); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *FinanceService) mutablePayment(ctx context.Context, tenantID, applicationID, paymentID string) (*models.Payment, error) {
	current, err := s.payments.Get(ctx, tenantID, paymentID)
	if err != nil {
		return nil, storeError(err, "failed to load payment")
	}
	if current.ApplicationID != applicationID {
		return nil, appErrors.ErrNotFound
	}
	if current.SettlementID != nil {
		return nil, appErrors.Clone(appErrors.ErrFinalized, "payment is linked to a finalized settlement")
	}
	return current, nil
}

// paymentsOpen rejects payment writes once a cancellation has produced a settlement. The
// settlement was computed from the payments present at that moment, and finalizing links all of
// the application's unlinked payments to it.
func paymentsOpen(app *models.Application) error {
	if IsCancellation(app.Status) {
		return appErrors.Clone(appErrors.ErrFinalized, "payments are locked once the application is cancelled")
	}
	return nil
}

// paymentWriteError distinguishes a write refused because the application was cancelled or the
// payment finalized in the meantime from one whose row disappeared.
func (s *FinanceService) paymentWriteError(ctx context.Context, tenantID, applicationID, paymentID string, err error, message string) error {
	if !errors.Is(err, sql.ErrNoRows) {
		return storeError(err, message)
	}
	if app, getErr := s.apps.GetByID(ctx, tenantID, applicationID); getErr == nil {
		if lockErr := paymentsOpen(app); lockErr != nil {
			return lockErr
		}
	}
	if paymentID == "" {
		return appErrors.ErrNotFound
	}
	current, getErr := s.payments.Get(ctx, tenantID, paymentID)
	if getErr == nil && current.SettlementID != nil {
		return appErrors.Clone(appErrors.ErrFinalized, "payment is linked to a finalized settlement")
	}
	return appErrors.ErrNotFound
}

func (s *FinanceService) written(ctx context.Context, actor *models.JWTClaims, resource, id string, before, after interface{}) {
	s.audit.record(ctx, actor, models.AuditActionFinanceWrite, resource, id, before, after)
	invalidateDashboards(ctx, s.cache, actor.CompanyID)
}
