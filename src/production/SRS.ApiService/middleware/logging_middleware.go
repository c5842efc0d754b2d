package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/srs.sensor_registry/src/production/SRS.Logger"
)

// RequestLogger logs one line per request through the service logger
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		reqLog := log.WithRequestID(GetRequestIDFromGinContext(c))

		event := reqLog.Logger.Info()
		switch {
		case status >= http.StatusInternalServerError:
			event = reqLog.Logger.Error()
		case status >= http.StatusBadRequest:
			event = reqLog.Logger.Warn()
		}

		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request handled")
	}
}
