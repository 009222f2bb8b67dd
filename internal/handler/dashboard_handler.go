package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/internal/dto"
	"github.com/noah-isme/agency-backoffice-api/internal/middleware"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
	"github.com/noah-isme/agency-backoffice-api/pkg/response"
)

type dashboardService interface {
	Pipeline(ctx context.Context, actor *models.JWTClaims) (*models.PipelineBoard, bool, error)
	Finance(ctx context.Context, actor *models.JWTClaims, query dto.DashboardQuery) (*models.FinanceDashboard, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Pipeline godoc
// @Summary Application pipeline board
// @Tags Dashboard
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /dashboard/pipeline [get]
func (h *DashboardHandler) Pipeline(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	board, cacheHit, err := h.service.Pipeline(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, board, cacheHit)
}

// Finance godoc
// @Summary Finance charts
// @Tags Dashboard
// @Produce json
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date inclusive (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /dashboard/finance [get]
func (h *DashboardHandler) Finance(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var query dto.DashboardQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	summary, cacheHit, err := h.service.Finance(c.Request.Context(), claimsFromContext(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	respondWithMeta(c, summary, cacheHit)
}

func respondWithMeta(c *gin.Context, data interface{}, cacheHit bool) {
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, data, nil, middleware.ExtractMeta(c))
}
