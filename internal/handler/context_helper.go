package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/internal/middleware"
	"github.com/noah-isme/agency-backoffice-api/internal/models"
)

// claimsFromContext returns nil on public routes; services answer nil actors with 401.
func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}
