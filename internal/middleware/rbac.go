package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/internal/service"
	"github.com/noah-isme/agency-backoffice-api/pkg/response"
)

// RequireCapability rejects requests whose actor lacks any of the capabilities. Services
// check again with the resource tenant; this only keeps obviously forbidden calls off them.
func RequireCapability(guard *service.AccessGuard, capabilities ...service.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := Claims(c)
		for _, capability := range capabilities {
			if err := guard.Require(actor, capability); err != nil {
				response.Error(c, err)
				return
			}
		}
		c.Next()
	}
}
