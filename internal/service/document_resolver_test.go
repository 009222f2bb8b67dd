package service

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type memoryCacheRepo struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{data: map[string][]byte{}}
}

func (m *memoryCacheRepo) Get(_ context.Context, key string, dest interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *memoryCacheRepo) DeleteByPattern(_ context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			delete(m.data, key)
		}
	}
	return nil
}

type requirementSourceStub struct {
	items []models.DocumentRequirement
	calls int
}

func (s *requirementSourceStub) ListRequirements(_ context.Context, tenantID string, appType models.ApplicationType, stage models.ApplicationStatus) ([]models.DocumentRequirement, error) {
	s.calls++
	var out []models.DocumentRequirement
	for _, item := range s.items {
		if item.CompanyID == tenantID && item.ApplicationType == appType && item.Stage == stage {
			out = append(out, item)
		}
	}
	return out, nil
}

func requirement(id, name string, order int, from models.RequiredFrom) models.DocumentRequirement {
	return models.DocumentRequirement{
		ID:              id,
		CompanyID:       "tenant-a",
		ApplicationType: models.ApplicationTypeNewCandidate,
		Stage:           models.StatusPendingMOL,
		Name:            name,
		RequiredFrom:    from,
		Required:        true,
		Order:           order,
	}
}

func TestRequiredDocumentsOrderingAndMemoization(t *testing.T) {
	optional := requirement("r4", "Photo", 0, models.RequiredFromClient)
	optional.Required = false
	source := &requirementSourceStub{items: []models.DocumentRequirement{
		requirement("r1", "Sponsor ID", 2, models.RequiredFromClient),
		requirement("r2", "Passport", 1, models.RequiredFromOffice),
		requirement("r3", "Medical", 1, models.RequiredFromOffice),
		optional,
	}}
	cache := NewCacheService(newMemoryCacheRepo(), nil, time.Minute, nil, true)
	resolver := NewDocumentResolver(source, cache, time.Minute, nil)

	ctx := context.Background()
	first, err := resolver.RequiredDocuments(ctx, "tenant-a", models.ApplicationTypeNewCandidate, models.StatusPendingMOL)
	require.NoError(t, err)
	names := make([]string, 0, len(first))
	for _, item := range first {
		names = append(names, item.Name)
	}
	assert.Equal(t, []string{"Medical", "Passport", "Sponsor ID"}, names)

	second, err := resolver.RequiredDocuments(ctx, "tenant-a", models.ApplicationTypeNewCandidate, models.StatusPendingMOL)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, source.calls)

	resolver.Invalidate(ctx, "tenant-a")
	_, err = resolver.RequiredDocuments(ctx, "tenant-a", models.ApplicationTypeNewCandidate, models.StatusPendingMOL)
	require.NoError(t, err)
	assert.Equal(t, 2, source.calls)
}

func TestRequiredDocumentsWithoutCache(t *testing.T) {
	source := &requirementSourceStub{items: []models.DocumentRequirement{requirement("r1", "Passport", 0, models.RequiredFromOffice)}}
	resolver := NewDocumentResolver(source, nil, time.Minute, nil)

	for i := 0; i < 2; i++ {
		items, err := resolver.RequiredDocuments(context.Background(), "tenant-a", models.ApplicationTypeNewCandidate, models.StatusPendingMOL)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	}
	assert.Equal(t, 2, source.calls)
}

func checklistItem(requirementID, name string, status models.DocumentStatus) models.ChecklistItem {
	id := requirementID
	return models.ChecklistItem{RequirementID: &id, Name: name, Stage: models.StatusPendingMOL, Status: status, Required: true}
}

func TestIsStageComplete(t *testing.T) {
	reqs := []models.DocumentRequirement{
		requirement("r1", "Passport", 0, models.RequiredFromOffice),
		requirement("r2", "Medical", 1, models.RequiredFromOffice),
		requirement("r3", "Sponsor ID", 2, models.RequiredFromClient),
		requirement("r4", "Contract", 3, models.RequiredFromClient),
	}

	checklist := []models.ChecklistItem{
		checklistItem("r1", "Passport", models.DocumentApproved),
		checklistItem("r2", "Medical", models.DocumentRejected),
		checklistItem("r3", "Sponsor ID", models.DocumentInReview),
	}

	result := IsStageComplete(models.StatusPendingMOL, reqs, checklist, "")
	assert.False(t, result.Complete)
	assert.Equal(t, []string{"Contract"}, result.Missing)
	assert.Equal(t, []string{"Medical"}, result.Rejected)
	assert.Equal(t, []string{"Sponsor ID"}, result.Pending)

	officeOnly := IsStageComplete(models.StatusPendingMOL, reqs, checklist, models.RequiredFromOffice)
	assert.False(t, officeOnly.Complete)
	assert.Empty(t, officeOnly.Missing)
	assert.Equal(t, []string{"Medical"}, officeOnly.Rejected)

	for i := range checklist {
		checklist[i].Status = models.DocumentApproved
	}
	checklist = append(checklist, checklistItem("r4", "Contract", models.DocumentApproved))
	assert.True(t, IsStageComplete(models.StatusPendingMOL, reqs, checklist, "").Complete)
}

func TestIsStageCompleteMonotonic(t *testing.T) {
	reqs := []models.DocumentRequirement{requirement("r1", "Passport", 0, models.RequiredFromOffice)}
	checklist := []models.ChecklistItem{checklistItem("r1", "Passport", models.DocumentApproved)}
	require.True(t, IsStageComplete(models.StatusPendingMOL, reqs, checklist, "").Complete)

	// Unrelated items and other stages never flip a complete stage back.
	checklist = append(checklist,
		models.ChecklistItem{Name: "Visa copy", Stage: models.StatusVisaProcessing, Status: models.DocumentRejected},
		models.ChecklistItem{Name: "Extra", Stage: models.StatusPendingMOL, Status: models.DocumentPending},
	)
	assert.True(t, IsStageComplete(models.StatusPendingMOL, reqs, checklist, "").Complete)

	checklist[0].Status = models.DocumentInReview
	assert.False(t, IsStageComplete(models.StatusPendingMOL, reqs, checklist, "").Complete)
}

func TestIsStageCompleteWithoutRequirements(t *testing.T) {
	result := IsStageComplete(models.StatusVisaReceived, nil, nil, "")
	assert.True(t, result.Complete)
	assert.NotNil(t, result.Missing)
}

func TestParseDocumentStatusMapping(t *testing.T) {
	cases := map[string]models.DocumentStatus{
		"approved":  models.DocumentApproved,
		"IN_REVIEW": models.DocumentInReview,
		"RECEIVED":  models.DocumentApproved,
		"submitted": models.DocumentInReview,
		"PENDING":   models.DocumentPending,
		"REJECTED":  models.DocumentRejected,
	}
	for raw, want := range cases {
		got, ok := models.ParseDocumentStatus(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := models.ParseDocumentStatus("LOST")
	assert.False(t, ok)
}
