package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	appErrors "github.com/noah-isme/agency-backoffice-api/pkg/errors"
	"github.com/noah-isme/agency-backoffice-api/pkg/response"
)

type settingsService interface {
	Get(ctx context.Context, actor *models.JWTClaims) (*models.TenantSettings, error)
	UpdateCancellationPolicy(ctx context.Context, actor *models.JWTClaims, raw json.RawMessage) (*models.TenantSettings, error)
}

// SettingsHandler exposes tenant level settings.
type SettingsHandler struct {
	service settingsService
}

// NewSettingsHandler constructs the handler.
func NewSettingsHandler(service settingsService) *SettingsHandler {
	return &SettingsHandler{service: service}
}

// Get godoc
// @Summary Tenant settings
// @Tags Settings
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /settings [get]
func (h *SettingsHandler) Get(c *gin.Context) {
	settings, err := h.service.Get(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}

// UpdateCancellationPolicy godoc
// @Summary Replace the cancellation policy
// @Description The document is validated against the cancellation policy JSON schema.
// @Tags Settings
// @Accept json
// @Produce json
// @Param payload body models.CancellationPolicy true "Policy document"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /settings/cancellation-policy [put]
func (h *SettingsHandler) UpdateCancellationPolicy(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unable to read policy document"))
		return
	}
	if !json.Valid(raw) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "policy document must be valid JSON"))
		return
	}
	settings, err := h.service.UpdateCancellationPolicy(c.Request.Context(), claimsFromContext(c), raw)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, settings, nil)
}
