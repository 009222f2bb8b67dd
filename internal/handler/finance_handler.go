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

type financeService interface {
	ListPayments(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]models.Payment, error)
	CreatePayment(ctx context.Context, actor *models.JWTClaims, applicationID string, req dto.PaymentRequest) (*models.Payment, error)
	UpdatePayment(ctx context.Context, actor *models.JWTClaims, applicationID, paymentID string, req dto.PaymentRequest) (*models.Payment, error)
	DeletePayment(ctx context.Context, actor *models.JWTClaims, applicationID, paymentID string) error
	ListCosts(ctx context.Context, actor *models.JWTClaims, applicationID string) ([]models.Cost, error)
	CreateCost(ctx context.Context, actor *models.JWTClaims, applicationID string, req dto.CostRequest) (*models.Cost, error)
	UpdateCost(ctx context.Context, actor *models.JWTClaims, applicationID, costID string, req dto.CostRequest) (*models.Cost, error)
	DeleteCost(ctx context.Context, actor *models.JWTClaims, applicationID, costID string) error
}

// FinanceHandler exposes payments and costs recorded against an application.
type FinanceHandler struct {
	service financeService
}

// NewFinanceHandler constructs the handler.
func NewFinanceHandler(service financeService) *FinanceHandler {
	return &FinanceHandler{service: service}
}

// ListPayments godoc
// @Summary List payments
// @Tags Finance
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/payments [get]
func (h *FinanceHandler) ListPayments(c *gin.Context) {
	items, err := h.service.ListPayments(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreatePayment godoc
// @Summary Record a payment
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.PaymentRequest true "Payment payload"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/payments [post]
func (h *FinanceHandler) CreatePayment(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	payment, err := h.service.CreatePayment(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, payment)
}

// UpdatePayment godoc
// @Summary Update a payment
// @Description Payments linked to a finalized settlement cannot change.
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param paymentId path string true "Payment ID"
// @Param payload body dto.PaymentRequest true "Payment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/payments/{paymentId} [put]
func (h *FinanceHandler) UpdatePayment(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payment payload"))
		return
	}
	payment, err := h.service.UpdatePayment(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Param("paymentId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, payment, nil)
}

// DeletePayment godoc
// @Summary Delete a payment
// @Tags Finance
// @Param id path string true "Application ID"
// @Param paymentId path string true "Payment ID"
// @Success 204
// @Router /applications/{id}/payments/{paymentId} [delete]
func (h *FinanceHandler) DeletePayment(c *gin.Context) {
	if err := h.service.DeletePayment(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Param("paymentId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListCosts godoc
// @Summary List office costs
// @Tags Finance
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/costs [get]
func (h *FinanceHandler) ListCosts(c *gin.Context) {
	items, err := h.service.ListCosts(c.Request.Context(), claimsFromContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// CreateCost godoc
// @Summary Record an office cost
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.CostRequest true "Cost payload"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/costs [post]
func (h *FinanceHandler) CreateCost(c *gin.Context) {
	var req dto.CostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cost payload"))
		return
	}
	cost, err := h.service.CreateCost(c.Request.Context(), claimsFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, cost)
}

// UpdateCost godoc
// @Summary Update an office cost
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param costId path string true "Cost ID"
// @Param payload body dto.CostRequest true "Cost payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/costs/{costId} [put]
func (h *FinanceHandler) UpdateCost(c *gin.Context) {
	var req dto.CostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid cost payload"))
		return
	}
	cost, err := h.service.UpdateCost(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Param("costId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, cost, nil)
}

// DeleteCost godoc
// @Summary Delete an office cost
// @Tags Finance
// @Param id path string true "Application ID"
// @Param costId path string true "Cost ID"
// @Success 204
// @Router /applications/{id}/costs/{costId} [delete]
func (h *FinanceHandler) DeleteCost(c *gin.Context) {
	if err := h.service.DeleteCost(c.Request.Context(), claimsFromContext(c), c.Param("id"), c.Param("costId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
