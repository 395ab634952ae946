package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/vtrack/internal/observability"
)

// LoggingMiddleware logs each request with slog. Probe and scrape endpoints
// are measured but not logged; they would dominate the log volume.
func LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		status := c.Writer.Status()

		if path != "/metrics" && path != "/healthz" && path != "/readyz" {
			slog.Info("request",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"duration", duration.String(),
				"size", c.Writer.Size(),
				"ip", c.ClientIP(),
			)
		}

		observability.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			path,
			fmt.Sprintf("%d", status),
		).Observe(duration.Seconds())
	}
}
