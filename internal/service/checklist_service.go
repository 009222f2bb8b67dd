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
	"github.com/noah-isme/agency-backoffice-api/internal/repository"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

// ChecklistService edits document checklists and reports stage completion.
type ChecklistService struct {
	apps      lockingApplicationStore
	items     checklistReader
	resolver  *DocumentResolver
	guard     *AccessGuard
	validator *validator.Validate
	audit     auditTrail
	logger    *zap.Logger
}

// NewChecklistService constructs the service.
func NewChecklistService(apps lockingApplicationStore, items checklistReader, resolver *DocumentResolver, guard *AccessGuard, audit auditSink, validate *validator.Validate, logger *zap.Logger) *ChecklistService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ChecklistService{
		apps:      apps,
		items:     items,
		resolver:  resolver,
		guard:     guard,
		validator: validate,
		audit:     newAuditTrail(audit, "checklist-service", logger),
		logger:    logger,
	}
}

// List returns every checklist item of an application.
func (s *ChecklistService) List(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]models.ChecklistItem, error) {
	if err := s.guard.Require(actor, CapDocumentsRead); err != nil {
		return nil, err
	}
	if _, err := s.apps.GetByID(ctx, actor.CompanyID, applicationID); err != nil {
		return nil, storeError(err, "failed to load application")
	}
	items, err := s.items.ListByApplication(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist")
	}
	if items == nil {
		items = []models.ChecklistItem{}
	}
	return items, nil
}

// UpdateItem changes one item's review state. The application row is locked and its version bumped
// so a concurrent transition cannot evaluate the old checklist.
func (s *ChecklistService) UpdateItem(ctx context.Context, actor *models.JWTClaims, applicationID, itemID string, req dto.UpdateChecklistItemRequest) (*models.ChecklistItem, error) {
	if err := s.guard.Require(actor, CapDocumentsWrite); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid checklist payload")
	}
	status, ok := models.ParseDocumentStatus(req.Status)
	if !ok {
		return nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrValidation, "unknown document status"),
			map[string]string{"status": req.Status},
		)
	}

	var before, after models.ChecklistItem
	err := s.apps.WithApplicationLock(ctx, actor.CompanyID, applicationID, func(ctx context.Context, app *models.Application, tx repository.ApplicationTx) error {
		items, err := tx.Checklist(ctx)
		if err != nil {
			return err
		}
		var item *models.ChecklistItem
		for i := range items {
			if items[i].ID == itemID {
				item = &items[i]
				break
			}
		}
		if item == nil {
			return sql.ErrNoRows
		}
		before = *item

		item.Status = status
		if req.FileURL != nil {
			url := strings.TrimSpace(*req.FileURL)
			if url == "" {
				item.FileURL = nil
			} else {
				item.FileURL = &url
			}
		}
		if req.Notes != nil {
			item.Notes = strings.TrimSpace(*req.Notes)
		}
		item.UpdatedBy = &actor.UserID

		if err := tx.UpdateChecklistItem(ctx, item); err != nil {
			return err
		}
		if err := tx.Touch(ctx, app); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrConflict, "application was modified by another request")
			}
			return err
		}
		after = *item
		return nil
	})
	if err != nil {
		return nil, storeError(err, "failed to update checklist item")
	}

	s.audit.record(ctx, actor, models.AuditActionChecklistUpdate, "checklist_item", after.ID, before, after)
	return &after, nil
}

// StageCompletion evaluates one stage of an application. scope narrows the check to one party.
func (s *ChecklistService) StageCompletion(ctx context.Context, actor *models.JWTClaims, applicationID string, stage models.ApplicationStatus, scope models.RequiredFrom) (*models.StageCompletion, error) {
	if err := s.guard.Require(actor, CapDocumentsRead); err != nil {
		return nil, err
	}
	stage = models.ApplicationStatus(strings.ToUpper(strings.TrimSpace(string(stage))))
	if !IsKnownStatus(stage) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown stage")
	}
	scope = models.RequiredFrom(strings.ToUpper(strings.TrimSpace(string(scope))))
	if scope != "" && scope != models.RequiredFromOffice && scope != models.RequiredFromClient {
		return nil, appErrors.Clone(appErrors.ErrValidation, "scope must be OFFICE or CLIENT")
	}

	app, err := s.apps.GetByID(ctx, actor.CompanyID, applicationID)
	if err != nil {
		return nil, storeError(err, "failed to load application")
	}
	items, err := s.items.ListByApplication(ctx, actor.CompanyID, app.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load checklist")
	}
	requirements, err := s.resolver.RequiredDocuments(ctx, actor.CompanyID, app.Type, stage)
	if err != nil {
		return nil, err
	}
	completion := IsStageComplete(stage, requirements, items, scope)
	return &completion, nil
}
