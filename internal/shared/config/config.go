package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration.
type Config struct {
	Env             string   `envconfig:"ENV" default:"dev"`
	Port            string   `envconfig:"PORT" default:"8080"`
	LogLevel        string   `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding     string   `envconfig:"LOG_ENCODING" default:"json"`
	CORSAllowOrigin []string `envconfig:"CORS_ALLOW_ORIGINS" default:"http://localhost:5173"`
	DatabaseURL     string   `envconfig:"DATABASE_URL"`

	ObjectStoreType string `envconfig:"OBJECT_STORE" default:"local"`
	LocalStoreDir   string `envconfig:"LOCAL_STORE_DIR" default:"./data"`
	AWSRegion       string `envconfig:"AWS_REGION"`
	S3Bucket        string `envconfig:"S3_BUCKET"`
	S3Prefix        string `envconfig:"S3_PREFIX"`
	SSEKMSKeyID     string `envconfig:"SSE_KMS_KEY_ID"`

	ModelDir     string `envconfig:"MODEL_DIR" default:"./models"`
	ONNXRuntime  string `envconfig:"ONNXRUNTIME_LIB"`
	DemoFallback bool   `envconfig:"INFERENCE_DEMO_FALLBACK" default:"true"`

	LLMProvider string        `envconfig:"LLM_PROVIDER" default:"gemini"`
	LLMAPIKey   string        `envconfig:"GENAI_API_KEY"`
	LLMModel    string        `envconfig:"LLM_MODEL"`
	LLMBaseURL  string        `envconfig:"LLM_BASE_URL"`
	LLMTimeout  time.Duration `envconfig:"LLM_TIMEOUT" default:"20s"`
	LLMRetry    bool          `envconfig:"LLM_RETRY" default:"false"`

	JWTSecret      string        `envconfig:"JWT_SECRET"`
	JWTTTL         time.Duration `envconfig:"JWT_TTL" default:"168h"`
	PasswordPepper string        `envconfig:"PASSWORD_PEPPER"`

	MaxUploadBytes    int64         `envconfig:"MAX_UPLOAD_BYTES" default:"10485760"`
	PredictRatePerMin float64       `envconfig:"PREDICT_RATE_PER_MIN" default:"30"`
	PredictRateBurst  int           `envconfig:"PREDICT_RATE_BURST" default:"10"`
	StatsCacheTTL     time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`
}

// Load reads configuration from environment variables with sensible defaults.
// A value that does not parse is an error; nothing is silently replaced.
func Load() (Config, error) {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return normalize(cfg), nil
}

// IsProduction reports whether the config targets production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsDevLike reports whether in-memory fallbacks are allowed.
func (c Config) IsDevLike() bool {
	return c.Env == "dev" || c.Env == "local"
}

func normalize(cfg Config) Config {
	cfg.Env = normalizeEnv(cfg.Env)
	cfg.ObjectStoreType = normalizeStoreType(cfg.ObjectStoreType)
	cfg.LLMProvider = normalizeProvider(cfg.LLMProvider)
	cfg.CORSAllowOrigin = trimAll(cfg.CORSAllowOrigin)
	if strings.TrimSpace(cfg.Port) == "" {
		cfg.Port = "8080"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	// A positive rate with no burst would reject every request.
	if cfg.PredictRatePerMin > 0 && cfg.PredictRateBurst < 1 {
		cfg.PredictRateBurst = 1
	}

	if cfg.IsProduction() {
		if cfg.DatabaseURL == "" {
			log.Printf("DATABASE_URL is required in production")
		}
		if cfg.JWTSecret == "" {
			log.Printf("JWT_SECRET is required in production")
		}
	}
	return cfg
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "test":
		return "test"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizeProvider(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "openai":
		return "openai"
	case "none", "off", "disabled":
		return "none"
	default:
		return "gemini"
	}
}
