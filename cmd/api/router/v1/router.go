package v1

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/logging"
	"mkvr-chat/internal/metrics"
	httpHandler "mkvr-chat/internal/pkg/chat/presentation/http"
)

// HealthCheck reports readiness of a backing service.
type HealthCheck func() error

// RegisterRoutes mounts all version 1 API routes under /api/v1, plus /healthz and /metrics.
func RegisterRoutes(r *gin.Engine, deps httpHandler.Dependencies, metricsEnabled bool, checks map[string]HealthCheck) {
	r.GET("/healthz", healthz(checks))
	if metricsEnabled {
		r.GET("/metrics", gin.WrapH(metrics.PromHandler()))
		r.GET("/metrics.json", gin.WrapH(metrics.JSONHandler()))
	}

	v1 := r.Group("/api/v1")
	httpHandler.RegisterRoutes(v1, deps)
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		report := gin.H{}
		for name, check := range checks {
			if err := check(); err != nil {
				status = http.StatusServiceUnavailable
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		c.JSON(status, gin.H{"status": http.StatusText(status), "checks": report})
	}
}

// RequestLogger logs one line per request through zerolog.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logging.Get().Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logging.Get().Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("user_id", c.GetHeader("X-User-ID")).
			Msg("http request")
	}
}
