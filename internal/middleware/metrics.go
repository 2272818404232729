package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/madrasah-registration/internal/service"
)

// unmatchedRoute labels requests that hit no registered route so scanners
// cannot blow up the path label cardinality.
const unmatchedRoute = "unmatched"

// Metrics records request latency and status per route template. Paths in
// skip (for example /metrics and the health checks) are not observed.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	ignored := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		ignored[p] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := ignored[c.Request.URL.Path]; ok {
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
