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

type settlementService interface {
	Preview(ctx context.Context, actor *models.JWTClaims, applicationID string, target models.ApplicationStatus) (*models.CancellationSettlement, error)
	Get(ctx context.Context, actor *models.JWTClaims, applicationID string) (*models.CancellationSettlement, error)
	Override(ctx context.Context, actor *models.JWTClaims, applicationID string, req dto.OverrideSettlementRequest) (*models.CancellationSettlement, error)
	Finalize(ctx context.Context, actor *models.JWTClaims, applicationID string) (*models.CancellationSettlement, error)
	StatementPDF(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]byte, string, error)
}

// SettlementHandler exposes cancellation settlements.
type SettlementHandler struct {
	service settlementService
}

// NewSettlementHandler constructs the handler.
func NewSettlementHandler(service settlementService) *SettlementHandler {
	return &SettlementHandler{service: service}
}

// Preview godoc
// @Summary Preview a cancellation settlement
// @Description Computes the refund a cancellation would produce without changing the application.
// @Tags Settlements
// @Produce json
// @Param id path string true "Application ID"
// @Param target query string true "Cancellation status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/settlement/preview [get]
func (h *SettlementHandler) Preview(c *gin.Context) {
	target := c.Query("target")
	if target == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "target is required"))
		return
	}
	settlement, err := h.service.Preview(c.Request.Context(), claimsFromContext(c), c.Param("id"), models.ApplicationStatus(target))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// Get godoc
// @Summary Get the settlement of a cancelled application
// @Tags Settlements
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id}/settlement [get]
func (h *SettlementHandler) Get(c *gin.Context) {
	settlement, err := h.service.Get(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// Override godoc
// @Summary Override refund or penalty
// @Tags Settlements
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.OverrideSettlementRequest true "Override payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/settlement/override [post]
func (h *SettlementHandler) Override(c *gin.Context) {
	var req dto.OverrideSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid override payload"))
		return
	}
	settlement, err := h.service.Override(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// Finalize godoc
// @Summary Finalize a settlement
// @Description Locks the settlement and the payments it consumed.
// @Tags Settlements
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/settlement/finalize [post]
func (h *SettlementHandler) Finalize(c *gin.Context) {
	settlement, err := h.service.Finalize(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settlement, nil)
}

// Statement godoc
// @Summary Download the settlement statement
// @Tags Settlements
// @Produce application/pdf
// @Param id path string true "Application ID"
// @Success 200 {file} file
// @Router /applications/{id}/settlement/statement [get]
func (h *SettlementHandler) Statement(c *gin.Context) {
	data, filename, err := h.service.StatementPDF(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "application/pdf", data)
}
