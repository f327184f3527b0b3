// Package config provides application configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// DefaultModel is the Gemini model used for coaching when COACH_MODEL is unset.
const DefaultModel = "gemini-3-pro-preview"

// ErrMissingCredential is returned when no provider API key is configured
// and the mock generator is not enabled.
var ErrMissingCredential = errors.New("GEMINI_API_KEY (or API_KEY) must be set unless COACH_USE_MOCK is enabled")

// Config holds all application configuration.
type Config struct {
	Port            string
	FrontendURL     string
	AllowedOrigins  []string
	LogLevel        slog.Level
	GRPCHealthPort  string
	Storage         StorageConfig
	Coach           CoachConfig
	RateLimit       RateLimitConfig
	History         HistoryConfig
	ConversationLog ConversationLogConfig
}

// StorageConfig selects and locates the profile store.
type StorageConfig struct {
	Backend     string
	DBPath      string // sqlite
	DatabaseURL string // postgres
}

// CoachConfig configures the generation provider. It is read once at startup
// and never mutated afterwards.
type CoachConfig struct {
	APIKey           string
	Model            string
	UseMock          bool
	RequestTimeout   time.Duration
	MaxRetries       int
	RetryBaseDelay   time.Duration
	MaxContextSkills int // 0 means no cap
	MaxContextGoals  int // 0 means no cap
	MaxMessageBytes  int64
}

// RateLimitConfig bounds coach requests per user.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// HistoryConfig controls how long transcript entries are kept.
type HistoryConfig struct {
	Retention     time.Duration
	SweepInterval time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	apiKey := getEnv("GEMINI_API_KEY", "")
	if apiKey == "" {
		apiKey = getEnv("API_KEY", "")
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		LogLevel:       getEnvLevel("LOG_LEVEL", slog.LevelInfo),
		GRPCHealthPort: getEnv("GRPC_HEALTH_PORT", ""),
		Storage: StorageConfig{
			Backend:     strings.ToLower(getEnv("STORAGE_BACKEND", StorageMemory)),
			DBPath:      getEnv("DB_PATH", "./data/los.db"),
			DatabaseURL: getEnv("DATABASE_URL", ""),
		},
		Coach: CoachConfig{
			APIKey:           apiKey,
			Model:            getEnv("COACH_MODEL", DefaultModel),
			UseMock:          getEnvBool("COACH_USE_MOCK", false),
			RequestTimeout:   getEnvDuration("COACH_REQUEST_TIMEOUT", 60*time.Second),
			MaxRetries:       getEnvInt("COACH_MAX_RETRIES", 0),
			RetryBaseDelay:   getEnvDuration("COACH_RETRY_BASE_DELAY", 250*time.Millisecond),
			MaxContextSkills: getEnvInt("COACH_MAX_CONTEXT_SKILLS", 50),
			MaxContextGoals:  getEnvInt("COACH_MAX_CONTEXT_GOALS", 50),
			MaxMessageBytes:  int64(getEnvInt("COACH_MAX_MESSAGE_BYTES", 8<<10)),
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 10),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		History: HistoryConfig{
			Retention:     getEnvDuration("HISTORY_RETENTION", 30*24*time.Hour),
			SweepInterval: getEnvDuration("HISTORY_SWEEP_INTERVAL", time.Hour),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty for the sqlite backend")
		}
	case StoragePostgres:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL cannot be empty for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}
	if c.Coach.APIKey == "" && !c.Coach.UseMock {
		return ErrMissingCredential
	}
	if c.Coach.Model == "" {
		return fmt.Errorf("COACH_MODEL cannot be empty")
	}
	if c.Coach.RequestTimeout <= 0 {
		return fmt.Errorf("COACH_REQUEST_TIMEOUT must be > 0")
	}
	if c.Coach.MaxRetries < 0 {
		return fmt.Errorf("COACH_MAX_RETRIES must be >= 0")
	}
	if c.Coach.MaxContextSkills < 0 || c.Coach.MaxContextGoals < 0 {
		return fmt.Errorf("COACH_MAX_CONTEXT_* must be >= 0")
	}
	if c.Coach.MaxMessageBytes <= 0 {
		return fmt.Errorf("COACH_MAX_MESSAGE_BYTES must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvLevel(key string, fallback slog.Level) slog.Level {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(value))); err != nil {
		return fallback
	}
	return level
}
