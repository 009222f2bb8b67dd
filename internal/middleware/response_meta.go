package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/pkg/logger"
	"github.com/noah-isme/agency-backoffice-api/pkg/middleware/requestid"
)

const (
	responseMetaKey = "response_meta"
	cacheHitKey     = "cache_hit"
)

// responseMeta collects what dashboard handlers report next to their payload.
type responseMeta struct {
	started  time.Time
	cacheHit *bool
}

// WithResponseMeta starts the clock behind processing_time_ms.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(responseMetaKey, &responseMeta{started: time.Now()})
		c.Next()
	}
}

// SetCacheHit records whether the payload was served from the dashboard cache.
func SetCacheHit(c *gin.Context, hit bool) {
	metaOf(c).cacheHit = &hit
}

// ExtractMeta renders the envelope meta block. Dashboard figures are per tenant, so the tenant
// and request id are echoed to let operators match a response to its log lines.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta := metaOf(c)
	out := map[string]interface{}{
		"processing_time_ms": time.Since(meta.started).Milliseconds(),
	}
	if meta.cacheHit != nil {
		out[cacheHitKey] = *meta.cacheHit
	}
	if tenant := c.GetString(logger.TenantKey); tenant != "" {
		out["tenant_id"] = tenant
	}
	if id := requestid.Value(c); id != "" {
		out["request_id"] = id
	}
	return out
}

func metaOf(c *gin.Context) *responseMeta {
	if value, ok := c.Get(responseMetaKey); ok {
		if meta, ok := value.(*responseMeta); ok {
			return meta
		}
	}
	meta := &responseMeta{started: time.Now()}
	c.Set(responseMetaKey, meta)
	return meta
}
