// Package config handles application configuration.
//
// Service settings come from environment variables following the 12-factor
// methodology. Pipeline tuning (weights, thresholds, fusion coefficients)
// lives in PipelineConfig, which has compiled-in defaults and an optional
// YAML overlay named by PIPELINE_CONFIG.
//
// All configuration is validated at startup to fail fast if misconfigured.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Cache backends understood by CACHE_BACKEND.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheBadger = "badger"
	CacheRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	// Environment is the deployment environment: development, staging, production
	// Env var: ENV (default: development)
	Environment string

	// Port is the HTTP server port
	// Env var: PORT (default: 8080)
	Port int

	// LogLevel is one of debug, info, warn, error
	// Env var: LOG_LEVEL (default: info)
	LogLevel string

	// MaxUploadSize is the maximum image upload size in bytes
	// Env var: MAX_UPLOAD_SIZE (default: 20MB)
	MaxUploadSize int64

	// MaxImagePixels bounds the declared width*height of a decoded image
	// Env var: MAX_IMAGE_PIXELS (default: 50000000)
	MaxImagePixels int64

	// RateLimitPerMinute is the maximum analyses per minute per client
	// Env var: RATE_LIMIT_PER_MINUTE (default: 120)
	RateLimitPerMinute int

	// AllowedOrigins is a comma-separated list of allowed CORS origins.
	// The browser extension origin must be listed in production.
	// Env var: ALLOWED_ORIGINS (default: *)
	AllowedOrigins []string

	// CacheBackend selects the result cache: none, memory, badger, redis
	// Env var: CACHE_BACKEND (default: memory)
	CacheBackend string

	// CacheTTL is how long cached results stay valid
	// Env var: CACHE_TTL (default: 24h)
	CacheTTL time.Duration

	// BadgerPath is the on-disk directory for the badger cache
	// Env var: BADGER_PATH (default: ./data/cache)
	BadgerPath string

	// RedisAddr, RedisPassword and RedisDB configure the redis cache
	// Env vars: REDIS_ADDR (default: localhost:6379), REDIS_PASSWORD, REDIS_DB
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// OpenAIAPIKey enables the multimodal external validator when set
	// Env var: OPENAI_API_KEY (optional)
	OpenAIAPIKey string

	// OpenAIModel is the vision-capable chat model used by the validator
	// Env var: OPENAI_MODEL (default: gpt-4o-mini)
	OpenAIModel string

	// OpenAIBaseURL overrides the API endpoint (proxies, compatible servers)
	// Env var: OPENAI_BASE_URL (optional)
	OpenAIBaseURL string

	// LocalModelURL is the base URL of the local ML backend
	// Env var: LOCAL_MODEL_URL (optional - layer disabled when empty)
	LocalModelURL string

	// LocalModelTimeout bounds each local ML request
	// Env var: LOCAL_MODEL_TIMEOUT (default: 10s)
	LocalModelTimeout time.Duration

	// TraceExporter selects where OpenTelemetry spans go: none or stdout
	// Env var: TRACE_EXPORTER (default: none)
	TraceExporter string

	// PipelineConfigPath is an optional YAML file overriding pipeline defaults
	// Env var: PIPELINE_CONFIG (optional)
	PipelineConfigPath string

	// Pipeline is the resolved pipeline configuration
	Pipeline PipelineConfig
}

// Load reads configuration from environment variables and, when
// PIPELINE_CONFIG is set, the pipeline YAML file.
// Use Validate() to check the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:        getEnvOrDefault("ENV", "development"),
		Port:               getEnvAsInt("PORT", 8080),
		LogLevel:           getEnvOrDefault("LOG_LEVEL", "info"),
		MaxUploadSize:      getEnvAsInt64("MAX_UPLOAD_SIZE", 20*1024*1024),
		MaxImagePixels:     getEnvAsInt64("MAX_IMAGE_PIXELS", 50_000_000),
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		AllowedOrigins:     getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
		CacheBackend:       strings.ToLower(getEnvOrDefault("CACHE_BACKEND", CacheMemory)),
		CacheTTL:           getEnvAsDuration("CACHE_TTL", 24*time.Hour),
		BadgerPath:         getEnvOrDefault("BADGER_PATH", "./data/cache"),
		RedisAddr:          getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            getEnvAsInt("REDIS_DB", 0),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		LocalModelURL:      os.Getenv("LOCAL_MODEL_URL"),
		LocalModelTimeout:  getEnvAsDuration("LOCAL_MODEL_TIMEOUT", 10*time.Second),
		TraceExporter:      strings.ToLower(getEnvOrDefault("TRACE_EXPORTER", "none")),
		PipelineConfigPath: os.Getenv("PIPELINE_CONFIG"),
		Pipeline:           DefaultPipelineConfig(),
	}

	if cfg.IsProduction() && len(cfg.AllowedOrigins) > 0 && cfg.AllowedOrigins[0] == "*" {
		cfg.AllowedOrigins = []string{}
	}

	if cfg.PipelineConfigPath != "" {
		pipeline, err := LoadPipelineConfig(cfg.PipelineConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = pipeline
	}

	if timeout := getEnvAsDuration("VALIDATOR_TIMEOUT", 0); timeout > 0 {
		cfg.Pipeline.ValidatorTimeout = timeout
	}

	return cfg, nil
}

// Validate checks that all configuration is present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid port: %d (must be 1-65535)", c.Port))
	}

	validEnvs := map[string]bool{"development": true, "staging": true, "production": true}
	if !validEnvs[c.Environment] {
		errs = append(errs, fmt.Sprintf("invalid environment: %s (must be development, staging, or production)", c.Environment))
	}

	if c.IsProduction() && len(c.AllowedOrigins) == 0 {
		errs = append(errs, "ALLOWED_ORIGINS must be set in production (not *)")
	}

	switch c.CacheBackend {
	case CacheNone, CacheMemory, CacheBadger, CacheRedis:
	default:
		errs = append(errs, fmt.Sprintf("invalid CACHE_BACKEND: %s (must be none, memory, badger, or redis)", c.CacheBackend))
	}
	if c.CacheBackend == CacheBadger && c.BadgerPath == "" {
		errs = append(errs, "BADGER_PATH is required when CACHE_BACKEND=badger")
	}
	if c.CacheBackend == CacheRedis && c.RedisAddr == "" {
		errs = append(errs, "REDIS_ADDR is required when CACHE_BACKEND=redis")
	}

	if c.TraceExporter != "none" && c.TraceExporter != "stdout" {
		errs = append(errs, fmt.Sprintf("invalid TRACE_EXPORTER: %s (must be none or stdout)", c.TraceExporter))
	}

	if c.MaxUploadSize < 1024 {
		errs = append(errs, fmt.Sprintf("MAX_UPLOAD_SIZE too small: %d (minimum 1024)", c.MaxUploadSize))
	}
	if c.MaxUploadSize > 256*1024*1024 {
		errs = append(errs, fmt.Sprintf("MAX_UPLOAD_SIZE too large: %d (maximum 256MB)", c.MaxUploadSize))
	}

	if c.MaxImagePixels < 64*64 {
		errs = append(errs, fmt.Sprintf("MAX_IMAGE_PIXELS too small: %d (minimum 4096)", c.MaxImagePixels))
	}

	if c.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Sprintf("RATE_LIMIT_PER_MINUTE must not be negative: %d", c.RateLimitPerMinute))
	}

	if err := c.Pipeline.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// IsDevelopment returns true if running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// ValidatorEnabled reports whether the external validator has credentials.
func (c *Config) ValidatorEnabled() bool {
	return c.OpenAIAPIKey != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration accepts Go duration strings ("15s", "24h") or plain seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
