package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port string // default: 8080

	// Database (subscriber API keys)
	PostgresDSN string

	// Cache
	RedisAddr        string
	RedisPassword    string // static access key; empty when using managed mode
	RedisListKeysURL string // management-plane listKeys endpoint for managed mode

	// Retention
	UsageTTL time.Duration // sliding window per accumulator, default: 24h

	// Observability
	OTELExporterType     string // "stdout" or "otlp"
	OTELExporterEndpoint string // default: "localhost:4317"

	// Rate Limiting
	DefaultRateLimitEPM int64 // ingested events per minute, default: 6000
}

func Load() (*Config, error) {
	// Load .env file if present (non-fatal if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisListKeysURL:     os.Getenv("REDIS_LIST_KEYS_URL"),
		OTELExporterType:     getEnv("OTEL_EXPORTER_TYPE", "stdout"),
		OTELExporterEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4317"),
	}

	ttlStr := getEnv("USAGE_TTL", "24h")
	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid USAGE_TTL: %w", err)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("USAGE_TTL must be positive")
	}
	cfg.UsageTTL = ttl

	epmStr := getEnv("DEFAULT_RATE_LIMIT_EPM", "6000")
	epm, err := strconv.ParseInt(epmStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_RATE_LIMIT_EPM: %w", err)
	}
	cfg.DefaultRateLimitEPM = epm

	// Validation
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("REDIS_ADDR is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
