package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmeteredPaths are health check and scrape routes left out of the request metrics
var unmeteredPaths = map[string]bool{
	"/metrics": true,
	"/health":  true,
}

// HTTPMetrics is Gin middleware that records request count, latency and
// in-flight requests by method, route and status code.
func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.FullPath() // route pattern keeps label cardinality bounded
		if unmeteredPaths[path] {
			c.Next()
			return
		}
		if path == "" {
			path = "unknown"
		}

		start := time.Now()
		HTTPRequestsInFlight.Inc()
		defer HTTPRequestsInFlight.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}
