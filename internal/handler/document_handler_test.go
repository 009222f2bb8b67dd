package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
)

type documentServiceStub struct {
	err       error
	lastApp   string
	lastItem  string
	lastStage models.ApplicationStatus
	lastScope models.RequiredFrom
	lastReq   dto.UpdateChecklistItemRequest
}

func (s *documentServiceStub) List(_ context.Context, _ *models.JWTClaims, applicationID string) ([]models.ChecklistItem, error) {
	s.lastApp = applicationID
	return []models.ChecklistItem{{ID: "item-1", Name: "Passport", Status: models.DocumentPending}}, s.err
}

func (s *documentServiceStub) UpdateItem(_ context.Context, _ *models.JWTClaims, applicationID, itemID string, req dto.UpdateChecklistItemRequest) (*models.ChecklistItem, error) {
	s.lastApp, s.lastItem, s.lastReq = applicationID, itemID, req
	if s.err != nil {
		return nil, s.err
	}
	return &models.ChecklistItem{ID: itemID, Status: models.DocumentApproved}, nil
}

func (s *documentServiceStub) StageCompletion(_ context.Context, _ *models.JWTClaims, applicationID string, stage models.ApplicationStatus, scope models.RequiredFrom) (*models.StageCompletion, error) {
	s.lastApp, s.lastStage, s.lastScope = applicationID, stage, scope
	if s.err != nil {
		return nil, s.err
	}
	return &models.StageCompletion{Stage: stage, Complete: false, Missing: []string{"Visa copy"}}, nil
}

type requirementServiceStub struct {
	err      error
	lastType string
	deleted  string
}

func (s *requirementServiceStub) List(_ context.Context, _ *models.JWTClaims, appType string) ([]models.DocumentRequirement, error) {
	s.lastType = appType
	return []models.DocumentRequirement{}, s.err
}

func (s *requirementServiceStub) Create(_ context.Context, _ *models.JWTClaims, req dto.CreateRequirementRequest) (*models.DocumentRequirement, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.DocumentRequirement{ID: "req-1", Name: req.Name, Stage: req.Stage}, nil
}

func (s *requirementServiceStub) Delete(_ context.Context, _ *models.JWTClaims, id string) error {
	s.deleted = id
	return s.err
}

func documentRouter(checklist *documentServiceStub, requirements *requirementServiceStub) *gin.Engine {
	h := NewDocumentHandler(checklist, requirements)
	return newTestRouter(func(r gin.IRoutes) {
		r.GET("/applications/:id/checklist", h.Checklist)
		r.PATCH("/applications/:id/checklist/:itemId", h.UpdateItem)
		r.GET("/applications/:id/stages/:stage/completion", h.StageCompletion)
		r.GET("/document-requirements", h.Requirements)
		r.POST("/document-requirements", h.CreateRequirement)
		r.DELETE("/document-requirements/:id", h.DeleteRequirement)
	})
}

func TestDocumentHandlerChecklist(t *testing.T) {
	checklist := &documentServiceStub{}
	router := documentRouter(checklist, &requirementServiceStub{})

	rec := perform(router, http.MethodGet, "/applications/app-1/checklist", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "app-1", checklist.lastApp)
	assert.Contains(t, rec.Body.String(), "Passport")

	rec = perform(router, http.MethodPatch, "/applications/app-1/checklist/item-1", dto.UpdateChecklistItemRequest{Status: "RECEIVED"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "item-1", checklist.lastItem)
	assert.Equal(t, "RECEIVED", checklist.lastReq.Status)

	checklist.err = appErrors.Clone(appErrors.ErrConflict, "application changed")
	rec = perform(router, http.MethodPatch, "/applications/app-1/checklist/item-1", dto.UpdateChecklistItemRequest{Status: "APPROVED"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestDocumentHandlerStageCompletion(t *testing.T) {
	checklist := &documentServiceStub{}
	router := documentRouter(checklist, &requirementServiceStub{})

	rec := perform(router, http.MethodGet, "/applications/app-1/stages/VISA_RECEIVED/completion?scope=CLIENT", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.StatusVisaReceived, checklist.lastStage)
	assert.Equal(t, models.RequiredFromClient, checklist.lastScope)
	assert.Contains(t, rec.Body.String(), "Visa copy")
}

func TestDocumentHandlerRequirements(t *testing.T) {
	requirements := &requirementServiceStub{}
	router := documentRouter(&documentServiceStub{}, requirements)

	rec := perform(router, http.MethodGet, "/document-requirements?applicationType=NEW_CANDIDATE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NEW_CANDIDATE", requirements.lastType)

	rec = perform(router, http.MethodPost, "/document-requirements", dto.CreateRequirementRequest{
		ApplicationType: models.ApplicationTypeNewCandidate,
		Stage:           models.StatusPendingMOL,
		Name:            "Passport",
		RequiredFrom:    models.RequiredFromClient,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = perform(router, http.MethodDelete, "/document-requirements/req-1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req-1", requirements.deleted)

	requirements.err = appErrors.ErrForbidden
	rec = perform(router, http.MethodDelete, "/document-requirements/req-1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
