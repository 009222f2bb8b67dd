package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/agency-backoffice-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, keeping raw URLs out of the
// label set.
const unmatchedRoute = "unmatched"

// Metrics observes request latency per route template. Requests to skipPaths, typically the
// scrape endpoint itself, are not observed.
func Metrics(metricsSvc *service.MetricsService, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
