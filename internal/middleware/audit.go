package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/agency-backoffice-api/internal/models"
	"github.com/noah-isme/agency-backoffice-api/pkg/logger"
)

// AuditResourceKey lets a handler name the audited resource when the route has no id parameter.
const AuditResourceKey = "audit_resource_id"

// AuditWriter persists audit rows.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Audit records an access row after every successful request on the route. The resource id
// is taken from the named path parameter when present.
func Audit(writer AuditWriter, log *zap.Logger, action, resource, idParam string) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		entry := &models.AuditLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims := Claims(c); claims != nil {
			entry.UserID = &claims.UserID
			entry.CompanyID = &claims.CompanyID
		} else if tenant := c.GetString(logger.TenantKey); tenant != "" {
			entry.CompanyID = &tenant
		}
		if id := c.Param(idParam); idParam != "" && id != "" {
			entry.ResourceID = &id
		} else if id := c.GetString(AuditResourceKey); id != "" {
			entry.ResourceID = &id
		}
		entry.NewValues, _ = json.Marshal(map[string]interface{}{
			"path":    c.FullPath(),
			"method":  c.Request.Method,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Milliseconds(),
		})

		if err := writer.CreateAuditLog(c.Request.Context(), entry); err != nil {
			log.Warn("failed to persist access audit", zap.String("action", action), zap.Error(err))
		}
	}
}
