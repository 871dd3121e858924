package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rd-prediction-backend/internal/shared/config"
	"rd-prediction-backend/internal/shared/metrics"
	"rd-prediction-backend/internal/shared/server/middleware"
	"rd-prediction-backend/internal/shared/server/respond"
)

// RouteRegistrar is implemented by feature handlers.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouteFunc adapts a plain function to RouteRegistrar.
type RouteFunc func(rg *gin.RouterGroup)

// RegisterRoutes calls f.
func (f RouteFunc) RegisterRoutes(rg *gin.RouterGroup) {
	f(rg)
}

// HealthReporter reports component health for /api/health.
type HealthReporter interface {
	Status() (payload any, healthy bool)
}

// RouterDeps carries everything NewRouter wires.
type RouterDeps struct {
	Config    config.Config
	Verifier  middleware.TokenVerifier
	Metrics   *metrics.Metrics
	Health    HealthReporter
	Limiter   *middleware.RateLimiter
	Public    []RouteRegistrar // mounted under /api/auth without the auth middleware
	Protected []RouteRegistrar // mounted under /api behind Auth
}

const predictRateGroup = "PREDICT"

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
		r.GET("/metrics", deps.Metrics.Handler())
	}

	r.NoRoute(func(c *gin.Context) {
		respond.Error(c, http.StatusNotFound, "not_found", "route not found", nil)
	})

	api := r.Group("/api")
	api.GET("/health", func(c *gin.Context) {
		if deps.Health == nil {
			respond.JSON(c, http.StatusOK, gin.H{"status": "ok"})
			return
		}
		payload, healthy := deps.Health.Status()
		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, payload)
	})

	authGroup := api.Group("/auth")
	for _, h := range deps.Public {
		h.RegisterRoutes(authGroup)
	}

	protected := api.Group("")
	protected.Use(
		middleware.Auth(deps.Verifier),
		middleware.RateLimit(middleware.RateLimitConfig{
			Limiter: deps.Limiter,
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method != http.MethodPost {
					return ""
				}
				switch c.FullPath() {
				case "/api/prediction/predict", "/api/prediction/enhanced":
					return predictRateGroup
				}
				return ""
			},
			Rules: map[string]middleware.RateLimitRule{
				predictRateGroup: {
					Rate:  deps.Config.PredictRatePerMin / 60.0,
					Burst: deps.Config.PredictRateBurst,
				},
			},
		}),
	)
	for _, h := range deps.Protected {
		h.RegisterRoutes(protected)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
