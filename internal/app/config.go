package app

import (
	"time"

	"github.com/yungbote/ratebench-backend/internal/platform/envutil"
	"github.com/yungbote/ratebench-backend/internal/platform/llm"
	"github.com/yungbote/ratebench-backend/internal/platform/logger"
)

type Config struct {
	Port           string
	Environment    string
	Version        string
	JWTSecretKey   string
	AllowedOrigins []string

	LLM llm.Config

	GenerationBatchSize   int
	RatingLockTimeout     time.Duration
	RatingCandidateSample int
	RatingAcquireAttempts int
	WorkerPollEnabled     bool
	WorkerPollInterval    time.Duration
	WorkerLeaseTTL        time.Duration
	RedisAddr             string
	SeedConfigPath        string
	MetricsEnabled        bool
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:           envutil.String("PORT", "8080"),
		Environment:    envutil.String("APP_ENV", "development"),
		Version:        envutil.String("APP_VERSION", "dev"),
		JWTSecretKey:   envutil.String("JWT_SECRET_KEY", ""),
		AllowedOrigins: envutil.List("CORS_ALLOWED_ORIGINS", nil),

		LLM: llm.ConfigFromEnv(),

		GenerationBatchSize:   envutil.Int("GENERATION_BATCH_SIZE", 10),
		RatingLockTimeout:     envutil.Seconds("RATING_LOCK_TIMEOUT_SECONDS", 5*time.Minute),
		RatingCandidateSample: envutil.Int("RATING_CANDIDATE_SAMPLE", 10),
		RatingAcquireAttempts: envutil.Int("RATING_ACQUIRE_MAX_ATTEMPTS", 5),
		WorkerPollEnabled:     envutil.Bool("WORKER_POLL_ENABLED", false),
		WorkerPollInterval:    envutil.Seconds("WORKER_POLL_INTERVAL_SECONDS", 5*time.Second),
		WorkerLeaseTTL:        envutil.Seconds("WORKER_LEASE_TTL_SECONDS", 2*time.Minute),
		RedisAddr:             envutil.String("REDIS_ADDR", ""),
		SeedConfigPath:        envutil.String("SEED_CONFIG_PATH", ""),
		MetricsEnabled:        envutil.Bool("METRICS_ENABLED", false),
	}
	if cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY is not set; every /api request will be rejected")
	}
	if cfg.LLM.OpenAIKey == "" && cfg.LLM.GeminiKey == "" && cfg.LLM.AnthropicKey == "" {
		log.Warn("no process-wide LLM API key set; configurations must carry their own")
	}
	return cfg
}
