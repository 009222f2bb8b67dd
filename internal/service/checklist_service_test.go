package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

func newChecklistFixture(t *testing.T) (*applicationFixture, *ChecklistService, *models.Application) {
	t.Helper()
	f := newApplicationFixture(t)
	app, err := f.service.Create(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), dto.CreateApplicationRequest{
		CandidateRef: "CAND-1",
		ClientRef:    "CLIENT-1",
		Type:         models.ApplicationTypeNewCandidate,
	})
	require.NoError(t, err)
	svc := NewChecklistService(f.store, f.store, NewDocumentResolver(f.reqs, nil, 0, nil), NewAccessGuard(nil), f.audit, nil, zap.NewNop())
	return f, svc, app
}

func TestChecklistUpdateMapsLegacyStatusAndBumpsVersion(t *testing.T) {
	f, svc, app := newChecklistFixture(t)
	staff := actorFor(models.RoleStaff, "tenant-a")
	itemID := f.store.checklist[app.ID][0].ID
	url := " https://files.example.com/passport.pdf "

	item, err := svc.UpdateItem(context.Background(), staff, app.ID, itemID, dto.UpdateChecklistItemRequest{Status: "received", FileURL: &url})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentApproved, item.Status)
	require.NotNil(t, item.FileURL)
	assert.Equal(t, "https://files.example.com/passport.pdf", *item.FileURL)
	assert.Equal(t, "user-STAFF", *item.UpdatedBy)

	stored, err := f.store.GetByID(context.Background(), "tenant-a", app.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Version)
	assert.Equal(t, models.DocumentApproved, f.store.checklist[app.ID][0].Status)

	last := f.audit.logs[len(f.audit.logs)-1]
	assert.Equal(t, models.AuditActionChecklistUpdate, last.Action)
}

func TestChecklistUpdateRejectsUnknownStatus(t *testing.T) {
	f, svc, app := newChecklistFixture(t)
	itemID := f.store.checklist[app.ID][0].ID

	_, err := svc.UpdateItem(context.Background(), actorFor(models.RoleStaff, "tenant-a"), app.ID, itemID, dto.UpdateChecklistItemRequest{Status: "LOST"})
	require.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Equal(t, models.DocumentPending, f.store.checklist[app.ID][0].Status)

	_, err = svc.UpdateItem(context.Background(), actorFor(models.RoleStaff, "tenant-a"), app.ID, "missing-item", dto.UpdateChecklistItemRequest{Status: "APPROVED"})
	assert.Equal(t, appErrors.ErrNotFound, err)

	_, err = svc.UpdateItem(context.Background(), actorFor(models.RoleStaff, "tenant-b"), app.ID, itemID, dto.UpdateChecklistItemRequest{Status: "APPROVED"})
	assert.Equal(t, appErrors.ErrNotFound, err)
}

func TestChecklistStageCompletionScopes(t *testing.T) {
	f, svc, app := newChecklistFixture(t)
	staff := actorFor(models.RoleStaff, "tenant-a")
	passport := f.store.checklist[app.ID][0].ID

	_, err := svc.UpdateItem(context.Background(), staff, app.ID, passport, dto.UpdateChecklistItemRequest{Status: "APPROVED"})
	require.NoError(t, err)

	office, err := svc.StageCompletion(context.Background(), staff, app.ID, "pending_mol", "office")
	require.NoError(t, err)
	assert.True(t, office.Complete)

	all, err := svc.StageCompletion(context.Background(), staff, app.ID, models.StatusPendingMOL, "")
	require.NoError(t, err)
	assert.False(t, all.Complete)
	assert.Equal(t, []string{"Sponsor ID"}, all.Pending)

	_, err = svc.StageCompletion(context.Background(), staff, app.ID, models.StatusPendingMOL, "BROKER")
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	items, err := svc.List(context.Background(), staff, app.ID)
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRequirementServiceInvalidatesResolver(t *testing.T) {
	source := &requirementSourceStub{items: []models.DocumentRequirement{
		requirement("r1", "Passport", 1, models.RequiredFromOffice),
	}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, 0, nil, true)
	resolver := NewDocumentResolver(source, cache, 0, nil)
	store := &requirementStoreStub{source: source}
	svc := NewRequirementService(store, resolver, NewAccessGuard(nil), nil, zap.NewNop())
	superAdmin := actorFor(models.RoleSuperAdmin, "tenant-a")

	_, err := resolver.RequiredDocuments(context.Background(), "tenant-a", models.ApplicationTypeNewCandidate, models.StatusPendingMOL)
	require.NoError(t, err)

	created, err := svc.Create(context.Background(), superAdmin, dto.CreateRequirementRequest{
		ApplicationType: models.ApplicationTypeNewCandidate,
		Stage:           "pending_mol",
		Name:            " Medical ",
		RequiredFrom:    models.RequiredFromOffice,
	})
	require.NoError(t, err)
	assert.Equal(t, "Medical", created.Name)
	assert.True(t, created.Required)
	assert.Equal(t, "tenant-a", created.CompanyID)

	required, err := resolver.RequiredDocuments(context.Background(), "tenant-a", models.ApplicationTypeNewCandidate, models.StatusPendingMOL)
	require.NoError(t, err)
	assert.Len(t, required, 2)
	assert.Equal(t, 2, source.calls)

	_, err = svc.Create(context.Background(), superAdmin, dto.CreateRequirementRequest{
		ApplicationType: models.ApplicationTypeNewCandidate,
		Stage:           models.StatusCancelledCandidate,
		Name:            "Exit form",
		RequiredFrom:    models.RequiredFromClient,
	})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), actorFor(models.RoleAdmin, "tenant-a"), dto.CreateRequirementRequest{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	assert.Equal(t, appErrors.ErrNotFound, svc.Delete(context.Background(), superAdmin, "nope"))
	require.NoError(t, svc.Delete(context.Background(), superAdmin, created.ID))

	listed, err := svc.List(context.Background(), actorFor(models.RoleStaff, "tenant-a"), "")
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestRequirementAddedLaterReachesOpenApplications(t *testing.T) {
	f := newApplicationFixture(t)
	admin := actorFor(models.RoleAdmin, "tenant-a")
	app, err := f.service.Create(context.Background(), admin, dto.CreateApplicationRequest{
		CandidateRef: "CAND-1",
		ClientRef:    "CLIENT-1",
		Type:         models.ApplicationTypeNewCandidate,
	})
	require.NoError(t, err)
	f.approveAll(app.ID)
	f.store.put(models.Application{ID: "app-moved-on", CompanyID: "tenant-a", Type: models.ApplicationTypeNewCandidate, Status: models.StatusVisaProcessing})
	f.store.put(models.Application{ID: "app-other-tenant", CompanyID: "tenant-b", Type: models.ApplicationTypeNewCandidate, Status: models.StatusPendingMOL})

	store := &requirementStoreStub{source: f.reqs, apps: f.store}
	svc := NewRequirementService(store, NewDocumentResolver(f.reqs, nil, 0, nil), NewAccessGuard(nil), nil, zap.NewNop())
	_, err = svc.Create(context.Background(), actorFor(models.RoleSuperAdmin, "tenant-a"), dto.CreateRequirementRequest{
		ApplicationType: models.ApplicationTypeNewCandidate,
		Stage:           models.StatusPendingMOL,
		Name:            "Medical",
		RequiredFrom:    models.RequiredFromOffice,
	})
	require.NoError(t, err)

	items := f.store.checklist[app.ID]
	require.Len(t, items, 3)
	assert.Equal(t, "Medical", items[2].Name)
	assert.Equal(t, models.DocumentPending, items[2].Status)
	assert.Empty(t, f.store.checklist["app-moved-on"])
	assert.Empty(t, f.store.checklist["app-other-tenant"])

	_, err = f.service.RequestTransition(context.Background(), admin, app.ID, models.TransitionRequest{Target: models.StatusMOLAuthReceived})
	require.ErrorIs(t, err, appErrors.ErrDocumentsIncomplete)
	completion, ok := appErrors.FromError(err).Details.(models.StageCompletion)
	require.True(t, ok)
	assert.Empty(t, completion.Missing)
	assert.Equal(t, []string{"Medical"}, completion.Pending)

	f.approveAll(app.ID)
	result, err := f.service.RequestTransition(context.Background(), admin, app.ID, models.TransitionRequest{Target: models.StatusMOLAuthReceived})
	require.NoError(t, err)
	assert.Equal(t, models.StatusMOLAuthReceived, result.Application.Status)
}

func TestStatusesThroughStopsAtStage(t *testing.T) {
	assert.Equal(t, []models.ApplicationStatus{models.StatusPendingMOL, models.StatusMOLAuthReceived}, StatusesThrough(models.StatusMOLAuthReceived))
	assert.Contains(t, StatusesThrough(models.StatusActiveEmployment), models.StatusRenewalPending)
	assert.Nil(t, StatusesThrough(models.StatusCancelledCandidate))
}

type requirementStoreStub struct {
	source *requirementSourceStub
	apps   *memApplicationStore
}

func (s *requirementStoreStub) ListByType(ctx context.Context, tenantID string, appType models.ApplicationType) ([]models.DocumentRequirement, error) {
	return s.source.ListByType(ctx, tenantID, appType)
}

func (s *requirementStoreStub) Create(_ context.Context, item *models.DocumentRequirement, openStatuses []models.ApplicationStatus) (int, error) {
	item.ID = "r-new"
	s.source.items = append(s.source.items, *item)
	if s.apps == nil {
		return 0, nil
	}

	s.apps.mu.Lock()
	defer s.apps.mu.Unlock()
	added := 0
	for id, app := range s.apps.apps {
		if app.CompanyID != item.CompanyID || app.Type != item.ApplicationType || !containsStatus(openStatuses, app.Status) {
			continue
		}
		exists := false
		for _, existing := range s.apps.checklist[id] {
			if existing.Stage == item.Stage && existing.Name == item.Name {
				exists = true
			}
		}
		if exists {
			continue
		}
		requirementID := item.ID
		s.apps.checklist[id] = append(s.apps.checklist[id], models.ChecklistItem{
			ID:            s.apps.nextID("item"),
			ApplicationID: id,
			CompanyID:     item.CompanyID,
			RequirementID: &requirementID,
			Name:          item.Name,
			Stage:         item.Stage,
			RequiredFrom:  item.RequiredFrom,
			Required:      item.Required,
			Status:        models.DocumentPending,
		})
		added++
	}
	return added, nil
}

func containsStatus(statuses []models.ApplicationStatus, status models.ApplicationStatus) bool {
	for _, candidate := range statuses {
		if candidate == status {
			return true
		}
	}
	return false
}

func (s *requirementStoreStub) Delete(_ context.Context, tenantID, id string) error {
	for i, item := range s.source.items {
		if item.ID == id && item.CompanyID == tenantID {
			s.source.items = append(s.source.items[:i], s.source.items[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}
