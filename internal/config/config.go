package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	OpenAI    OpenAIConfig
	Runway    RunwayConfig
	Kling     KlingConfig
	R2        R2Config
	Pipeline  PipelineConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	SongsPerMin      int
	ProcessingPerMin int
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type RunwayConfig struct {
	APIKey  string
	BaseURL string
	Version string
}

type KlingConfig struct {
	APIKey  string
	BaseURL string
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type PipelineConfig struct {
	ClipProvider     string
	PollInterval     time.Duration
	BatchSize        int
	Concurrency      int
	MaxRetries       int           // attempts per external call
	InitialDelay     time.Duration // first backoff delay
	BackoffFactor    float64
	MaxRecordRetries int // record-level retry loop bound
	BreakerThreshold int
	BreakerCooldown  time.Duration
	FFmpegPath       string
	WorkDir          string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("OPENAI_API_KEY")
	readSecret("RUNWAY_API_KEY")
	readSecret("KLING_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = viper.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = viper.BindEnv("openai.model", "OPENAI_MODEL")
	_ = viper.BindEnv("runway.api_key", "RUNWAY_API_KEY")
	_ = viper.BindEnv("runway.base_url", "RUNWAY_BASE_URL")
	_ = viper.BindEnv("runway.version", "RUNWAY_VERSION")
	_ = viper.BindEnv("kling.api_key", "KLING_API_KEY")
	_ = viper.BindEnv("kling.base_url", "KLING_BASE_URL")
	_ = viper.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = viper.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = viper.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = viper.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = viper.BindEnv("pipeline.clip_provider", "CLIP_PROVIDER")
	_ = viper.BindEnv("pipeline.poll_interval", "POLL_INTERVAL")
	_ = viper.BindEnv("pipeline.batch_size", "BATCH_SIZE")
	_ = viper.BindEnv("pipeline.concurrency", "PIPELINE_CONCURRENCY")
	_ = viper.BindEnv("pipeline.max_retries", "MAX_RETRIES")
	_ = viper.BindEnv("pipeline.initial_delay", "RETRY_INITIAL_DELAY")
	_ = viper.BindEnv("pipeline.backoff_factor", "RETRY_BACKOFF_FACTOR")
	_ = viper.BindEnv("pipeline.max_record_retries", "MAX_RECORD_RETRIES")
	_ = viper.BindEnv("pipeline.breaker_threshold", "BREAKER_THRESHOLD")
	_ = viper.BindEnv("pipeline.breaker_cooldown", "BREAKER_COOLDOWN")
	_ = viper.BindEnv("pipeline.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("pipeline.work_dir", "WORK_DIR")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.songs_per_min", 30)
	viper.SetDefault("ratelimit.processing_per_min", 60)

	// OpenAI defaults
	viper.SetDefault("openai.base_url", "https://api.openai.com/v1")
	viper.SetDefault("openai.model", "gpt-4")

	// Runway defaults
	viper.SetDefault("runway.base_url", "https://api.dev.runwayml.com")
	viper.SetDefault("runway.version", "2024-11-06")

	// Kling (PiAPI) defaults
	viper.SetDefault("kling.base_url", "https://api.piapi.ai")

	// Pipeline defaults
	viper.SetDefault("pipeline.clip_provider", "runway")
	viper.SetDefault("pipeline.poll_interval", "5m")
	viper.SetDefault("pipeline.batch_size", 5)
	viper.SetDefault("pipeline.concurrency", 2)
	viper.SetDefault("pipeline.max_retries", 3)
	viper.SetDefault("pipeline.initial_delay", "2s")
	viper.SetDefault("pipeline.backoff_factor", 2.0)
	viper.SetDefault("pipeline.max_record_retries", 2)
	viper.SetDefault("pipeline.breaker_threshold", 5)
	viper.SetDefault("pipeline.breaker_cooldown", "5m")
	viper.SetDefault("pipeline.ffmpeg_path", "ffmpeg")
	viper.SetDefault("pipeline.work_dir", "data")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			SongsPerMin:      viper.GetInt("ratelimit.songs_per_min"),
			ProcessingPerMin: viper.GetInt("ratelimit.processing_per_min"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  viper.GetString("openai.api_key"),
			BaseURL: viper.GetString("openai.base_url"),
			Model:   viper.GetString("openai.model"),
		},
		Runway: RunwayConfig{
			APIKey:  viper.GetString("runway.api_key"),
			BaseURL: viper.GetString("runway.base_url"),
			Version: viper.GetString("runway.version"),
		},
		Kling: KlingConfig{
			APIKey:  viper.GetString("kling.api_key"),
			BaseURL: viper.GetString("kling.base_url"),
		},
		R2: R2Config{
			AccountID:       viper.GetString("r2.account_id"),
			AccessKeyID:     viper.GetString("r2.access_key_id"),
			SecretAccessKey: viper.GetString("r2.secret_access_key"),
			BucketName:      viper.GetString("r2.bucket_name"),
			PublicURL:       viper.GetString("r2.public_url"),
		},
		Pipeline: PipelineConfig{
			ClipProvider:     viper.GetString("pipeline.clip_provider"),
			PollInterval:     viper.GetDuration("pipeline.poll_interval"),
			BatchSize:        viper.GetInt("pipeline.batch_size"),
			Concurrency:      viper.GetInt("pipeline.concurrency"),
			MaxRetries:       viper.GetInt("pipeline.max_retries"),
			InitialDelay:     viper.GetDuration("pipeline.initial_delay"),
			BackoffFactor:    viper.GetFloat64("pipeline.backoff_factor"),
			MaxRecordRetries: viper.GetInt("pipeline.max_record_retries"),
			BreakerThreshold: viper.GetInt("pipeline.breaker_threshold"),
			BreakerCooldown:  viper.GetDuration("pipeline.breaker_cooldown"),
			FFmpegPath:       viper.GetString("pipeline.ffmpeg_path"),
			WorkDir:          viper.GetString("pipeline.work_dir"),
		},
	}

	return cfg, nil
}
