package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/internal/repository"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
	"github.com/noah-isme/agency-backoffice-api/pkg/export"
)

type settlementReader interface {
	GetByApplication(ctx context.Context, tenantID, applicationID string) (*models.CancellationSettlement, error)
}

type lockingApplicationStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*models.Application, error)
	WithApplicationLock(ctx context.Context, tenantID, id string, fn func(ctx context.Context, app *models.Application, tx repository.ApplicationTx) error) error
}

// SettlementService previews, overrides and finalizes cancellation settlements.
type SettlementService struct {
	apps        lockingApplicationStore
	settlements settlementReader
	policies    policySource
	guard       *AccessGuard
	cache       *CacheService
	metrics     *MetricsService
	validator   *validator.Validate
	audit       auditTrail
	logger      *zap.Logger
	now         func() time.Time
}

// NewSettlementService constructs the service.
func NewSettlementService(apps lockingApplicationStore, settlements settlementReader, policies policySource, guard *AccessGuard, cache *CacheService, metrics *MetricsService, audit auditSink, validate *validator.Validate, logger *zap.Logger) *SettlementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &SettlementService{
		apps:        apps,
		settlements: settlements,
		policies:    policies,
		guard:       guard,
		cache:       cache,
		metrics:     metrics,
		validator:   validate,
		audit:       newAuditTrail(audit, "settlement-service", logger),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service time source.
func (s *SettlementService) WithClock(now func() time.Time) *SettlementService {
	if now != nil {
		s.now = now
	}
	return s
}

// Preview computes the settlement a cancellation to target would produce without persisting it.
func (s *SettlementService) Preview(ctx context.Context, actor *models.JWTClaims, applicationID string, target models.ApplicationStatus) (*models.CancellationSettlement, error) {
	if err := s.guard.Require(actor, CapFinanceRead); err != nil {
		return nil, err
	}
	target = models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(string(target))))
	if !IsCancellation(target) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "target must be a cancellation status")
	}
	policy, err := s.policies.Policy(ctx, actor.CompanyID)
	if err != nil {
		return nil, err
	}

	var preview *models.CancellationSettlement
	err = s.apps.WithApplicationLock(ctx, actor.CompanyID, applicationID, func(ctx context.Context, app *models.Application, tx repository.ApplicationTx) error {
		if !CanTransition(app.Status, target) {
			return appErrors.WithDetails(
				appErrors.Clone(appErrors.ErrInvalidTransition, fmt.Sprintf("cannot move from %s to %s", app.Status, target)),
				map[string]interface{}{"from": app.Status, "to": target, "allowed": AllowedTransitions(app.Status)},
			)
		}
		settlement, err := buildSettlement(ctx, app, tx, target, policy, actor.UserID, s.now())
		if err != nil {
			return err
		}
		settlement.ApplicationID = app.ID
		settlement.CompanyID = app.CompanyID
		preview = settlement
		return nil
	})
	if err != nil {
		return nil, storeError(err, "failed to preview settlement")
	}
	return preview, nil
}

// Get returns the persisted settlement of an application.
func (s *SettlementService) Get(ctx context.Context, actor *models.JWTClaims, applicationID string) (*models.CancellationSettlement, error) {
	if err := s.guard.Require(actor, CapFinanceRead); err != nil {
		return nil, err
	}
	settlement, err := s.settlements.GetByApplication(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, storeError(err, "failed to load settlement")
	}
	return settlement, nil
}

// Override records a manual refund and/or penalty beside the computed values.
func (s *SettlementService) Override(ctx context.Context, actor *models.JWTClaims, applicationID string, req dto.OverrideSettlementRequest) (*models.CancellationSettlement, error) {
	if err := s.guard.Require(actor, CapSettlementOverride); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override payload")
	}
	if req.Refund == nil && req.Penalty == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "refund or penalty is required")
	}

	var before, after models.CancellationSettlement
	err := s.apps.WithApplicationLock(ctx, actor.CompanyID, applicationID, func(ctx context.Context, _ *models.Application, tx repository.ApplicationTx) error {
		settlement, err := tx.Settlement(ctx)
		if err != nil {
			return err
		}
		if settlement.Finalized {
			return appErrors.Clone(appErrors.ErrFinalized, "settlement is finalized")
		}
		before = *settlement

		now := s.now()
		reason := strings.TrimSpace(req.Reason)
		if req.Refund != nil {
			refund := round2(*req.Refund)
			settlement.OverrideRefund = &refund
		}
		if req.Penalty != nil {
			penalty := round2(*req.Penalty)
			settlement.OverridePenalty = &penalty
		}
		settlement.OverrideReason = &reason
		settlement.OverriddenBy = &actor.UserID
		settlement.OverriddenAt = &now

		if err := tx.OverrideSettlement(ctx, settlement); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrFinalized, "settlement is finalized")
			}
			return err
		}
		after = *settlement
		return nil
	})
	if err != nil {
		return nil, storeError(err, "failed to override settlement")
	}

	s.metrics.RecordSettlement(after.Class, "overridden")
	s.audit.record(ctx, actor, models.AuditActionSettlementOverride, "settlement", after.ID, before, after)
	invalidateDashboards(ctx, s.cache, actor.CompanyID)
	return &after, nil
}

// Finalize freezes the settlement and links the application's payments to it.
func (s *SettlementService) Finalize(ctx context.Context, actor *models.JWTClaims, applicationID string) (*models.CancellationSettlement, error) {
	if err := s.guard.Require(actor, CapFinanceWrite); err != nil {
		return nil, err
	}

	var result *models.CancellationSettlement
	err := s.apps.WithApplicationLock(ctx, actor.CompanyID, applicationID, func(ctx context.Context, _ *models.Application, tx repository.ApplicationTx) error {
		settlement, err := tx.Settlement(ctx)
		if err != nil {
			return err
		}
		if settlement.Finalized {
			return appErrors.Clone(appErrors.ErrFinalized, "settlement is already finalized")
		}
		now := s.now()
		settlement.Finalized = true
		settlement.FinalizedBy = &actor.UserID
		settlement.FinalizedAt = &now
		if err := tx.FinalizeSettlement(ctx, settlement); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrFinalized, "settlement is already finalized")
			}
			return err
		}
		result = settlement
		return nil
	})
	if err != nil {
		return nil, storeError(err, "failed to finalize settlement")
	}

	s.metrics.RecordSettlement(result.Class, "finalized")
	s.audit.record(ctx, actor, models.AuditActionSettlementFinalize, "settlement", result.ID, nil, result)
	invalidateDashboards(ctx, s.cache, actor.CompanyID)
	return result, nil
}

// StatementPDF renders the settlement as a printable statement.
func (s *SettlementService) StatementPDF(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]byte, string, error) {
	if err := s.guard.Require(actor, CapFinanceRead); err != nil {
		return nil, "", err
	}
	app, err := s.apps.GetByID(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, "", storeError(err, "failed to load application")
	}
	settlement, err := s.settlements.GetByApplication(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, "", storeError(err, "failed to load settlement")
	}

	data, err := export.RenderStatement(settlementStatement(app, settlement))
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render settlement statement")
	}
	return data, fmt.Sprintf("settlement-%s.pdf", app.ID), nil
}

// buildSettlement gathers payments, fee components and costs through tx and runs the calculator.
func buildSettlement(ctx context.Context, app *models.Application, tx repository.ApplicationTx, target models.ApplicationStatus, policy models.CancellationPolicy, actorID string, now time.Time) (*models.CancellationSettlement, error) {
	class, err := ClassifyCancellation(app.Status, target, app.ExactArrivalDate, now, policy)
	if err != nil {
		return nil, err
	}
	payments, err := tx.Payments(ctx)
	if err != nil {
		return nil, err
	}
	costs, err := tx.Costs(ctx)
	if err != nil {
		return nil, err
	}
	var components []models.FeeComponent
	if app.FeeTemplateID != nil {
		if components, err = tx.FeeComponents(ctx, *app.FeeTemplateID); err != nil {
			return nil, err
		}
	}

	settlement, err := CalculateRefund(RefundInput{
		Class:              class,
		CandidateInitiated: target == models.StatusCancelledCandidate,
		Payments:           payments,
		Components:         components,
		Costs:              costs,
		Policy:             policy,
	})
	if err != nil {
		return nil, err
	}
	settlement.ComputedBy = actorID
	settlement.ComputedAt = now
	return settlement, nil
}

func settlementStatement(app *models.Application, st *models.CancellationSettlement) export.Statement {
	lines := export.Dataset{Headers: []string{"Component", "Amount", "Refundable", "Eligible", "Refunded", "Forfeited"}}
	for _, line := range st.Breakdown {
		lines.Rows = append(lines.Rows, []string{
			line.Name,
			money(line.Amount),
			yesNo(line.Refundable),
			yesNo(line.Eligible),
			money(line.Refunded),
			money(line.Forfeited),
		})
	}

	totals := []export.Field{
		{Label: "Refundable paid", Value: money(st.RefundablePaid) + " " + st.Currency},
		{Label: "Computed refund", Value: money(st.RefundAmount)},
		{Label: "Computed penalty", Value: money(st.PenaltyAmount)},
		{Label: "Forfeited", Value: money(st.ForfeitedAmount)},
		{Label: "Absorbed cost", Value: money(st.AbsorbedCost)},
	}
	if st.OverrideRefund != nil || st.OverridePenalty != nil {
		reason := ""
		if st.OverrideReason != nil {
			reason = *st.OverrideReason
		}
		totals = append(totals, export.Field{Label: "Override reason", Value: reason})
	}
	totals = append(totals,
		export.Field{Label: "Effective refund", Value: money(st.EffectiveRefund()) + " " + st.Currency},
		export.Field{Label: "Effective penalty", Value: money(st.EffectivePenalty()) + " " + st.Currency},
	)

	status := "DRAFT"
	if st.Finalized {
		status = "FINAL"
	}
	return export.Statement{
		Title:    "Cancellation Settlement",
		Subtitle: fmt.Sprintf("Application %s (%s)", app.ID, status),
		Fields: []export.Field{
			{Label: "Candidate", Value: app.CandidateRef},
			{Label: "Client", Value: app.ClientRef},
			{Label: "Status", Value: string(app.Status)},
			{Label: "Class", Value: string(st.Class)},
			{Label: "Responsible party", Value: string(st.ResponsibleParty)},
			{Label: "Computed at", Value: st.ComputedAt.Format(time.RFC3339)},
		},
		Lines:  lines,
		Totals: totals,
		Footer: "Amounts are rounded to two decimals.",
	}
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
