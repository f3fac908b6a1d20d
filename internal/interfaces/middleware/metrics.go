package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/pkg/metrics"
)

// Metrics records request counts and durations by route template
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		metrics.RequestCounter.WithLabelValues(c.Request.Method, path, status).Inc()
		metrics.RequestDurationHistogram.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
	}
}
