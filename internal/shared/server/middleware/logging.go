package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"rd-prediction-backend/internal/shared/telemetry"
)

var skipLogPaths = map[string]struct{}{
	"/api/health": {},
	"/metrics":    {},
}

// Logging emits a structured log per request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if _, skip := skipLogPaths[c.Request.URL.Path]; skip {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		fields := []zap.Field{
			zap.String("request_id", RequestIDFromContext(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("route", c.FullPath()),
			zap.Int("status", status),
			zap.Float64("duration_ms", float64(latency.Microseconds())/1000.0),
			zap.String("user_id", UserIDFromContext(c)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if id := c.GetString("predictionId"); id != "" {
			fields = append(fields, zap.String("prediction_id", id))
		}
		if model := c.GetString("modelType"); model != "" {
			fields = append(fields, zap.String("model_type", model))
		}
		if transition := c.GetString("statusTransition"); transition != "" {
			fields = append(fields, zap.String("status_transition", transition))
		}
		for _, ginErr := range c.Errors {
			fields = append(fields, zap.NamedError("error", ginErr.Err))
		}

		logger := telemetry.L()
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request.complete", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request.complete", fields...)
		default:
			logger.Info("request.complete", fields...)
		}
	}
}
