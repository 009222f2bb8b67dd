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

type feeTemplateService interface {
	List(ctx context.Context, actor *models.JWTClaims, query dto.FeeTemplateQuery) ([]models.FeeTemplate, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.FeeTemplate, error)
	Create(ctx context.Context, actor *models.JWTClaims, req dto.FeeTemplateRequest) (*models.FeeTemplate, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.FeeTemplateRequest) (*models.FeeTemplate, error)
}

// FeeTemplateHandler manages priced service templates.
type FeeTemplateHandler struct {
	service feeTemplateService
}

// NewFeeTemplateHandler constructs the handler.
func NewFeeTemplateHandler(service feeTemplateService) *FeeTemplateHandler {
	return &FeeTemplateHandler{service: service}
}

// List godoc
// @Summary List fee templates
// @Tags Fee Templates
// @Produce json
// @Param nationality query string false "Nationality"
// @Param serviceType query string false "Service type"
// @Success 200 {object} response.Envelope
// @Router /fee-templates [get]
func (h *FeeTemplateHandler) List(c *gin.Context) {
	var query dto.FeeTemplateQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	items, err := h.service.List(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Get godoc
// @Summary Get fee template
// @Tags Fee Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Router /fee-templates/{id} [get]
func (h *FeeTemplateHandler) Get(c *gin.Context) {
	template, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Create godoc
// @Summary Create fee template
// @Tags Fee Templates
// @Accept json
// @Produce json
// @Param payload body dto.FeeTemplateRequest true "Template payload"
// @Success 201 {object} response.Envelope
// @Router /fee-templates [post]
func (h *FeeTemplateHandler) Create(c *gin.Context) {
	var req dto.FeeTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fee template payload"))
		return
	}
	template, err := h.service.Create(c.Request.Context(), claimsFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// Update godoc
// @Summary Replace fee template
// @Tags Fee Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.FeeTemplateRequest true "Template payload"
// @Success 200 {object} response.Envelope
// @Router /fee-templates/{id} [put]
func (h *FeeTemplateHandler) Update(c *gin.Context) {
	var req dto.FeeTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fee template payload"))
		return
	}
	template, err := h.service.Update(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}
