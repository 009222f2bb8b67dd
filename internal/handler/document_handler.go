package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
	"github.com/noah-isme/agency-backoffice-api/pkg/response"
)

type checklistService interface {
	List(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]models.ChecklistItem, error)
	UpdateItem(ctx context.Context, actor *models.JWTClaims, applicationID, itemID string, req dto.UpdateChecklistItemRequest) (*models.ChecklistItem, error)
	StageCompletion(ctx context.Context, actor *models.JWTClaims, applicationID string, stage models.ApplicationStatus, scope models.RequiredFrom) (*models.StageCompletion, error)
}

type requirementService interface {
	List(ctx context.Context, actor *models.JWTClaims, appType string) ([]models.DocumentRequirement, error)
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreateRequirementRequest) (*models.DocumentRequirement, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) error
}

// DocumentHandler serves application checklists and the requirement templates behind them.
type DocumentHandler struct {
	checklist    checklistService
	requirements requirementService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(checklist checklistService, requirements requirementService) *DocumentHandler {
	return &DocumentHandler{checklist: checklist, requirements: requirements}
}

// Checklist godoc
// @Summary Application document checklist
// @Tags Documents
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/checklist [get]
func (h *DocumentHandler) Checklist(c *gin.Context) {
	items, err := h.checklist.List(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// UpdateItem godoc
// @Summary Update a checklist item
// @Description Status accepts PENDING, IN_REVIEW, APPROVED or REJECTED. Legacy RECEIVED and SUBMITTED are mapped.
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param itemId path string true "Checklist item ID"
// @Param payload body dto.UpdateChecklistItemRequest true "Item payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/checklist/{itemId} [patch]
func (h *DocumentHandler) UpdateItem(c *gin.Context) {
	var req dto.UpdateChecklistItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid checklist payload"))
		return
	}
	item, err := h.checklist.UpdateItem(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Param("itemId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// StageCompletion godoc
// @Summary Document completion of a stage
// @Tags Documents
// @Produce json
// @Param id path string true "Application ID"
// @Param stage path string true "Lifecycle status"
// @Param scope query string false "OFFICE or CLIENT"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/stages/{stage}/completion [get]
func (h *DocumentHandler) StageCompletion(c *gin.Context) {
	completion, err := h.checklist.StageCompletion(
		c.Request.Context(),
		claimsFromContext(c),
		c.Param("id"),
		models.ApplicationStatus(c.Param("stage")),
		models.RequiredFrom(c.Query("scope")),
	)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, completion, nil)
}

// Requirements godoc
// @Summary List document requirement templates
// @Tags Documents
// @Produce json
// @Param applicationType query string false "NEW_CANDIDATE or GUARANTOR_CHANGE"
// @Success 200 {object} response.Envelope
// @Router /document-requirements [get]
func (h *DocumentHandler) Requirements(c *gin.Context) {
	items, err := h.requirements.List(c.Request.Context(), claimsFromContext(c), c.Query("applicationType"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateRequirement godoc
// @Summary Add a document requirement template
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateRequirementRequest true "Requirement payload"
// @Success 201 {object} response.Envelope
// @Router /document-requirements [post]
func (h *DocumentHandler) CreateRequirement(c *gin.Context) {
	var req dto.CreateRequirementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid requirement payload"))
		return
	}
	item, err := h.requirements.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// DeleteRequirement godoc
// @Summary Remove a document requirement template
// @Tags Documents
// @Param id path string true "Requirement ID"
// @Success 204
// @Router /document-requirements/{id} [delete]
func (h *DocumentHandler) DeleteRequirement(c *gin.Context) {
	if err := h.requirements.Delete(c.Request.Context(), claimsFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
