package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/bulkflow/internal/platform/ctxutil"
	"github.com/yungbote/bulkflow/internal/platform/logger"
)

// RequestLogger writes one line per request. Switch callbacks carry the
// FSPIOP source and destination; probes and scrapes log at debug.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		return func(c *gin.Context) { c.Next() }
	}
	log = log.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		status := c.Writer.Status()
		fields := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "resource_id", id)
		}
		if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
			fields = append(fields, "trace_id", td.TraceID, "request_id", td.RequestID)
		}
		for _, h := range [...]struct{ header, key string }{
			{"FSPIOP-Source", "fspiop_source"},
			{"FSPIOP-Destination", "fspiop_destination"},
		} {
			if v := c.GetHeader(h.header); v != "" {
				fields = append(fields, h.key, v)
			}
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			log.Error("request failed", fields...)
		case status >= 400:
			log.Warn("request rejected", fields...)
		case route == "/health" || route == "/metrics":
			log.Debug("request served", fields...)
		default:
			log.Info("request served", fields...)
		}
	}
}
