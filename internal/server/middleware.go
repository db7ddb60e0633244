package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/saasfoundry/tenantops/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with a ulid, propagating an inbound one
// when the caller already set it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = ulid.Make().String()
		}
		c.Request = c.Request.WithContext(
			correlation.ContextWithCorrelationID(c.Request.Context(), id),
		)
		c.Writer.Header().Set(headerRequestID, id)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", correlation.ExtractCorrelationID(c.Request.Context())),
			zap.String("client_ip", c.ClientIP()),
		}

		if last := c.Errors.Last(); last != nil {
			log.Warn("request failed", append(fields, zap.Error(last.Err))...)
			return
		}
		log.Info("request", fields...)
	}
}
