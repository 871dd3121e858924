package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"

	"rd-prediction-backend/internal/inference"
	"rd-prediction-backend/internal/llm"
	"rd-prediction-backend/internal/llm/openai"
	"rd-prediction-backend/internal/predictions"
	"rd-prediction-backend/internal/services/health"
	"rd-prediction-backend/internal/shared/auth"
	"rd-prediction-backend/internal/shared/config"
	"rd-prediction-backend/internal/shared/metrics"
	"rd-prediction-backend/internal/shared/server"
	"rd-prediction-backend/internal/shared/server/middleware"
	"rd-prediction-backend/internal/shared/storage/db"
	"rd-prediction-backend/internal/shared/storage/object"
	localstore "rd-prediction-backend/internal/shared/storage/object/local"
	s3store "rd-prediction-backend/internal/shared/storage/object/s3"
	"rd-prediction-backend/internal/shared/telemetry"
	"rd-prediction-backend/internal/users"
)

const defaultStatsCacheTTL = 30 * time.Second

// App holds shared dependencies and the HTTP router.
type App struct {
	Config             config.Config
	Router             *gin.Engine
	DB                 *sql.DB
	Store              object.ObjectStore
	Metrics            *metrics.Metrics
	Tokens             *auth.TokenIssuer
	Dispatcher         *inference.Dispatcher
	LLM                llm.Client
	PredictionsRepo    predictions.Repo
	UsersRepo          users.Repo
	PredictionsService *predictions.Service
	UsersService       *users.Service
	HealthService      *health.Service
	PredictionsHandler *predictions.Handler
	UsersHandler       *users.Handler
}

// Build wires every dependency and the router. Each call gets its own metrics registry.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	if strings.TrimSpace(cfg.ObjectStoreType) == "" {
		cfg.ObjectStoreType = "local"
	}
	ctx := context.Background()

	m, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL, cfg.IsProduction())
	if err != nil {
		return nil, err
	}

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(ctx, cfg)
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	dispatcher, err := inference.NewDispatcher(inference.Options{
		ModelDir:     cfg.ModelDir,
		RuntimeLib:   cfg.ONNXRuntime,
		DemoFallback: cfg.DemoFallback,
		Metrics:      m,
	})
	if err != nil {
		closeDB(sqlDB)
		return nil, err
	}

	app := &App{
		Config:     cfg,
		DB:         sqlDB,
		Store:      store,
		Metrics:    m,
		Tokens:     tokens,
		Dispatcher: dispatcher,
		LLM:        buildLLM(cfg),
	}
	buildServices(app)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:   cfg,
		Verifier: tokens,
		Metrics:  m,
		Health:   app.HealthService,
		Limiter:  middleware.NewRateLimiter(nil),
		Public:   []server.RouteRegistrar{app.UsersHandler},
		Protected: []server.RouteRegistrar{
			server.RouteFunc(app.UsersHandler.RegisterProtectedRoutes),
			app.PredictionsHandler,
		},
	})

	return app, nil
}

// Close releases the model runtime and the database pool.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Close()
	}
	closeDB(a.DB)
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "DATABASE_URL empty"})
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, db.OptionsFromEnv(db.DefaultServerOptions()))
	if err != nil {
		if cfg.IsDevLike() {
			telemetry.Warn("bootstrap.memory_repositories", map[string]any{"reason": "database connect failed", "error": err})
			return nil, nil
		}
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		store, err := s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildLLM(cfg config.Config) llm.Client {
	if cfg.LLMProvider == "none" || strings.TrimSpace(cfg.LLMAPIKey) == "" {
		telemetry.Info("bootstrap.llm_disabled", map[string]any{"provider": cfg.LLMProvider})
		return llm.NoopClient{}
	}
	client, err := openai.NewClient(openai.Options{
		Provider: cfg.LLMProvider,
		APIKey:   cfg.LLMAPIKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.LLMBaseURL,
		Timeout:  cfg.LLMTimeout,
	})
	if err != nil {
		telemetry.Warn("bootstrap.llm_disabled", map[string]any{"provider": cfg.LLMProvider, "error": err})
		return llm.NoopClient{}
	}
	telemetry.Info("bootstrap.llm_enabled", map[string]any{"provider": cfg.LLMProvider, "model": client.Model(), "retry": cfg.LLMRetry})
	if cfg.LLMRetry {
		return llm.WithRetry(client)
	}
	return client
}

func buildServices(app *App) {
	if app.DB != nil {
		app.PredictionsRepo = &predictions.PGRepo{DB: app.DB}
		app.UsersRepo = &users.PGRepo{DB: app.DB}
	} else {
		app.PredictionsRepo = predictions.NewMemoryRepo()
		app.UsersRepo = users.NewMemoryRepo()
	}

	app.UsersService = users.NewService(app.UsersRepo, app.Config.PasswordPepper)

	ttl := app.Config.StatsCacheTTL
	if ttl <= 0 {
		ttl = defaultStatsCacheTTL
	}
	app.PredictionsService = &predictions.Service{
		Repo:           app.PredictionsRepo,
		Store:          app.Store,
		Classifier:     app.Dispatcher,
		LLM:            app.LLM,
		Users:          app.UsersService,
		Metrics:        app.Metrics,
		StatsCache:     cache.New(ttl, 2*ttl),
		MaxUploadBytes: app.Config.MaxUploadBytes,
	}
	app.HealthService = health.NewService(app.DB, app.Dispatcher)

	app.UsersHandler = users.NewHandler(app.UsersService, app.Tokens)
	app.PredictionsHandler = predictions.NewHandler(app.PredictionsService, app.Config.MaxUploadBytes)
}

func closeDB(sqlDB *sql.DB) {
	if sqlDB != nil {
		_ = sqlDB.Close()
	}
}
