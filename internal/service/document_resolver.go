package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type requirementSource interface {
	ListRequirements(ctx context.Context, tenantID string, appType models.ApplicationType, stage models.ApplicationStatus) ([]models.DocumentRequirement, error)
}

// DocumentResolver answers which documents a stage requires and whether a checklist satisfies them.
type DocumentResolver struct {
	repo   requirementSource
	cache  *CacheService
	ttl    time.Duration
	logger *zap.Logger
}

// NewDocumentResolver constructs a resolver. cache may be nil.
func NewDocumentResolver(repo requirementSource, cache *CacheService, ttl time.Duration, logger *zap.Logger) *DocumentResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentResolver{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// RequiredDocuments returns the required templates for a stage ordered by template order then name.
func (r *DocumentResolver) RequiredDocuments(ctx context.Context, tenantID string, appType models.ApplicationType, stage models.ApplicationStatus) ([]models.DocumentRequirement, error) {
	key := requirementsCacheKey(tenantID, appType, stage)
	var cached []models.DocumentRequirement
	if hit, err := r.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	items, err := r.repo.ListRequirements(ctx, tenantID, appType, stage)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document requirements")
	}
	required := make([]models.DocumentRequirement, 0, len(items))
	for _, item := range items {
		if item.Required && item.Stage == stage {
			required = append(required, item)
		}
	}
	SortRequirements(required)

	if err := r.cache.Set(ctx, key, required, r.ttl); err != nil {
		r.logger.Warn("failed to cache requirements", zap.String("key", key), zap.Error(err))
	}
	return required, nil
}

// Invalidate drops memoized requirement lists for a tenant.
func (r *DocumentResolver) Invalidate(ctx context.Context, tenantID string) {
	if err := r.cache.Invalidate(ctx, fmt.Sprintf("requirements:%s:*", tenantID)); err != nil {
		r.logger.Warn("failed to invalidate requirements cache", zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// SortRequirements orders requirements by template order, ties broken by name.
func SortRequirements(items []models.DocumentRequirement) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Order != items[j].Order {
			return items[i].Order < items[j].Order
		}
		return items[i].Name < items[j].Name
	})
}

// IsStageComplete evaluates checklist against the requirements of stage. An empty scope checks
// both parties. Missing and rejected items both block completion and are reported separately.
func IsStageComplete(stage models.ApplicationStatus, requirements []models.DocumentRequirement, checklist []models.ChecklistItem, scope models.RequiredFrom) models.StageCompletion {
	result := models.StageCompletion{
		Stage:    stage,
		Missing:  []string{},
		Rejected: []string{},
		Pending:  []string{},
	}

	byRequirement := make(map[string]models.ChecklistItem, len(checklist))
	byName := make(map[string]models.ChecklistItem, len(checklist))
	for _, item := range checklist {
		if item.Stage != stage {
			continue
		}
		if item.RequirementID != nil {
			byRequirement[*item.RequirementID] = item
		}
		byName[item.Name] = item
	}

	for _, req := range requirements {
		if !req.Required || req.Stage != stage {
			continue
		}
		if scope != "" && req.RequiredFrom != scope {
			continue
		}
		item, ok := byRequirement[req.ID]
		if !ok {
			item, ok = byName[req.Name]
		}
		switch {
		case !ok:
			result.Missing = append(result.Missing, req.Name)
		case item.Status == models.DocumentApproved:
		case item.Status == models.DocumentRejected:
			result.Rejected = append(result.Rejected, req.Name)
		default:
			result.Pending = append(result.Pending, req.Name)
		}
	}

	result.Complete = len(result.Missing) == 0 && len(result.Rejected) == 0 && len(result.Pending) == 0
	return result
}

func requirementsCacheKey(tenantID string, appType models.ApplicationType, stage models.ApplicationStatus) string {
	return fmt.Sprintf("requirements:%s:%s:%s", tenantID, appType, stage)
}
