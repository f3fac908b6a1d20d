package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nexuscrm/tablestore/pkg/constants"
	"github.com/nexuscrm/tablestore/pkg/logger"
	"github.com/nexuscrm/tablestore/pkg/utils"
	"go.uber.org/zap"
)

// RequestID reuses the caller's X-Request-ID or assigns a new one
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(constants.HeaderXRequestID)
		if id == "" {
			id = utils.GenerateID()
		}
		c.Set(constants.ContextKeyRequestID, id)
		c.Header(constants.HeaderXRequestID, id)
		c.Next()
	}
}

// RequestLogger puts a request-scoped logger on the request context and
// logs one line per request once it completes
func RequestLogger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		log := base.With(zap.String("request_id", c.GetString(constants.ContextKeyRequestID)))
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), log))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		// RequireAuth may have enriched the logger further down the chain
		log = logger.FromContext(c.Request.Context())
		switch {
		case status >= 500:
			log.Error("🌐 Request failed", fields...)
		case status >= 400:
			log.Warn("🌐 Request rejected", fields...)
		default:
			log.Info("🌐 Request", fields...)
		}
	}
}
