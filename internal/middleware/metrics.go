package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/uniplan/timetable-api/internal/service"
)

// Metrics captures request latency and status for every route.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		// Prefer the route template so path cardinality stays bounded.
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
