package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"pocketsync/internal/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort       string
	Version       string
	DatabaseURL   string
	JWTSecret     string
	AllowedOrigin string

	LogLevel string
	LogJSON  bool

	// Local queue store (SQLite file)
	QueueDBPath string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Sync engine
	MaxRetries        int
	DuplicateWindow   time.Duration
	RemoteTimeout     time.Duration
	ProbeInterval     time.Duration
	AssumeOnlineStart bool

	// Shared retry policy for remote calls
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryJitter      float64

	// Rate limits
	APIRateLimit   int
	APIRateWindow  time.Duration
	SyncRateLimit  int
	SyncRateWindow time.Duration
}

// Load reads .env (if present) and the environment; missing required values are fatal.
func Load() *Config {
	_ = godotenv.Load()

	cfg, err := LoadFromEnv()
	if err != nil {
		logger.Fatal("invalid configuration", "error", err)
	}
	return cfg
}

// LoadFromEnv builds the config from the current environment without loading .env.
func LoadFromEnv() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("JWT_SECRET is not set")
	}

	cfg := &Config{
		AppPort:       envString("APP_PORT", "8080"),
		Version:       envString("APP_VERSION", "dev"),
		DatabaseURL:   dbURL,
		JWTSecret:     jwtSecret,
		AllowedOrigin: os.Getenv("ALLOWED_ORIGIN"),

		LogLevel: envString("LOG_LEVEL", "info"),
		LogJSON:  os.Getenv("LOG_JSON") == "true",

		QueueDBPath: envString("QUEUE_DB_PATH", "./data/queue.db"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       envInt("REDIS_DB", 0),

		MaxRetries:        envPositiveInt("SYNC_MAX_RETRIES", 5),
		DuplicateWindow:   time.Duration(envPositiveInt("SYNC_DUPLICATE_WINDOW_SECONDS", 60)) * time.Second,
		RemoteTimeout:     time.Duration(envPositiveInt("SYNC_REMOTE_TIMEOUT_SECONDS", 15)) * time.Second,
		ProbeInterval:     time.Duration(envInt("CONNECTIVITY_PROBE_INTERVAL_SECONDS", 5)) * time.Second,
		AssumeOnlineStart: os.Getenv("CONNECTIVITY_ASSUME_ONLINE") == "true",

		RetryMaxAttempts: envPositiveInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   time.Duration(envPositiveInt("RETRY_BASE_DELAY_MS", 200)) * time.Millisecond,
		RetryMaxDelay:    time.Duration(envPositiveInt("RETRY_MAX_DELAY_MS", 2000)) * time.Millisecond,
		RetryJitter:      envFloat("RETRY_JITTER", 0.2),

		APIRateLimit:   envPositiveInt("API_RATE_LIMIT", 120),
		APIRateWindow:  time.Duration(envPositiveInt("API_RATE_WINDOW_SECONDS", 60)) * time.Second,
		SyncRateLimit:  envPositiveInt("SYNC_RATE_LIMIT", 10),
		SyncRateWindow: time.Duration(envPositiveInt("SYNC_RATE_WINDOW_SECONDS", 60)) * time.Second,
	}

	if cfg.RetryJitter < 0 || cfg.RetryJitter > 1 {
		return nil, errors.New("RETRY_JITTER must be between 0 and 1")
	}
	if cfg.ProbeInterval < 0 {
		cfg.ProbeInterval = 0
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envPositiveInt(key string, def int) int {
	if n := envInt(key, def); n > 0 {
		return n
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}
