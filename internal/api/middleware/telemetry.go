package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sevarahealth/sevara/internal/metrics"
)

// RequestMetrics times every request and records it on the duration
// histogram, labelled by method, route pattern, and status. The route
// pattern keeps label cardinality bounded; unmatched paths are recorded
// under "unmatched".
func RequestMetrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		if path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		m.RequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
