// Package config provides configuration loading and management for the application.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port string

	// Logging: "json" or "text", and a logrus level name
	LogFormat string
	LogLevel  string

	// YAML file seeding the key registry, optional
	KeysFile string

	// Bearer token for the admin endpoints; admin routes are disabled when empty
	AdminAPIKey string

	// Scale of keys without explicit decimals, and the default curve output scale
	DefaultDecimals int
	OutputDecimals  int

	// Entry freshness bounds
	MaxEntryAge       time.Duration
	MaxFutureSkew     time.Duration
	MaxSpotFutureSkew time.Duration

	// Reject unsigned entry submissions
	RequireSignatures bool

	// How publisher entries for one key are combined: 0 median, 1 mean
	AggregationMode int

	// Hex secp256k1 key used to attest curve responses; a random key is generated when empty
	AttestationKey string

	// Submission rate limit
	RateLimitRPS   float64
	RateLimitBurst int

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	// Curve snapshot webhook
	WebhookURL     string
	WebhookAPIKey  string
	ExportInterval time.Duration

	RequestTimeout time.Duration
}

// Load creates a new Config from environment variables
func Load() Config {
	return Config{
		Port:              GetEnvOrDefault("PORT", "8080"),
		LogFormat:         strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "json")),
		LogLevel:          strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
		KeysFile:          GetEnvOrDefault("KEYS_FILE", ""),
		AdminAPIKey:       GetEnvOrDefault("ADMIN_API_KEY", ""),
		DefaultDecimals:   GetEnvAsInt("DEFAULT_DECIMALS", 18),
		OutputDecimals:    GetEnvAsInt("OUTPUT_DECIMALS", 18),
		MaxEntryAge:       GetEnvAsDuration("MAX_ENTRY_AGE", 0),
		MaxFutureSkew:     GetEnvAsDuration("MAX_FUTURE_SKEW", 2*time.Minute),
		MaxSpotFutureSkew: GetEnvAsDuration("MAX_SPOT_FUTURE_SKEW", 0),
		RequireSignatures: GetEnvAsBool("REQUIRE_SIGNATURES", false),
		AggregationMode:   GetEnvAsInt("AGGREGATION_MODE", 0),
		AttestationKey:    GetEnvOrDefault("ATTESTATION_KEY", ""),
		RateLimitRPS:      GetEnvAsFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:    GetEnvAsInt("RATE_LIMIT_BURST", 40),
		OtelEndpoint:      GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		WebhookURL:        GetEnvOrDefault("WEBHOOK_URL", ""),
		WebhookAPIKey:     GetEnvOrDefault("WEBHOOK_API_KEY", ""),
		ExportInterval:    GetEnvAsDuration("EXPORT_INTERVAL", time.Minute),
		RequestTimeout:    GetEnvAsDuration("REQUEST_TIMEOUT", 10*time.Second),
	}
}

// Validate checks values that cannot be defaulted silently
func (c Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT must not be empty")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat)
	}
	if c.DefaultDecimals < 0 || c.DefaultDecimals > 36 {
		return fmt.Errorf("DEFAULT_DECIMALS out of range: %d", c.DefaultDecimals)
	}
	if c.OutputDecimals < 0 || c.OutputDecimals > 36 {
		return fmt.Errorf("OUTPUT_DECIMALS out of range: %d", c.OutputDecimals)
	}
	if c.AggregationMode != 0 && c.AggregationMode != 1 {
		return fmt.Errorf("AGGREGATION_MODE must be 0 (median) or 1 (mean), got %d", c.AggregationMode)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.WebhookURL != "" && c.ExportInterval <= 0 {
		return fmt.Errorf("EXPORT_INTERVAL must be positive when WEBHOOK_URL is set")
	}
	return nil
}

// GetEnv retrieves an environment variable and whether it exists
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a bool with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
