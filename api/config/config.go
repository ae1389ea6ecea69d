package config

import (
	"os"
)

// Config holds the API configuration
type Config struct {
	Port        string
	MetricsPort string

	MongoURI      string
	MongoDatabase string

	AnthropicModel string

	SentryDSN   string
	Environment string
}

// cfg holds the parsed configuration
var cfg Config

// Get returns the loaded configuration.
func Get() Config {
	return cfg
}

// Load initializes configuration from environment variables.
func Load() error {
	cfg.Port = envOr("PORT", "8080")
	cfg.MetricsPort = envOr("METRICS_PORT", "9090")

	cfg.MongoURI = envOr("MONGODB_URI", "mongodb://localhost:27017")
	cfg.MongoDatabase = envOr("MONGODB_DATABASE", "campus")

	cfg.AnthropicModel = os.Getenv("ANTHROPIC_MODEL")

	cfg.SentryDSN = os.Getenv("SENTRY_DSN")
	cfg.Environment = envOr("ENVIRONMENT", "development")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
