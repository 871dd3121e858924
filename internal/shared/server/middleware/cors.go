package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS sets CORS headers and answers preflight requests for the allowed origins.
func CORS(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		cfg.AllowOrigins = allowedOrigins
	} else {
		cfg.AllowOrigins = []string{"http://localhost:5173"}
	}
	cfg.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Content-Length", "Authorization", "X-Request-Id"}
	cfg.ExposeHeaders = []string{"X-Request-Id", "Retry-After"}
	cfg.AllowCredentials = true
	cfg.MaxAge = 10 * time.Minute
	return cors.New(cfg)
}
