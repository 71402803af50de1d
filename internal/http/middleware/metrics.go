package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bulkflow/internal/observability"
)

// Metrics records count, latency and in-flight gauges per matched route.
// Scrapes and health probes are not counted.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		switch route {
		case "/metrics", "/health":
			c.Next()
			return
		case "":
			route = "unmatched"
		}

		m.ApiInflightInc()
		defer m.ApiInflightDec()
		start := time.Now()
		c.Next()
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
