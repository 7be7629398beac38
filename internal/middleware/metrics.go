package middleware

import (
	"time"

	"github.com/ayushjava07/DripX/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// MetricsMiddleware records every request by method, route template and status
func MetricsMiddleware(metricsCollector *metrics.MetricsCollector) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		metricsCollector.RecordRequestStart()

		c.Next()

		// the route template keeps session IDs out of the label set
		metricsCollector.RecordRequestComplete(c.Request.Method, c.FullPath(), c.Writer.Status(), time.Since(startTime))
	}
}
