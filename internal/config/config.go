// Package config provides configuration management for the Subkey server.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string
	DatabaseURL string

	// LicenseSecret signs license keys; WebhookSecret authenticates Paddle
	// webhook deliveries. Both are required to start.
	LicenseSecret string
	WebhookSecret string

	// AdminToken guards the admin API. Empty disables the admin routes.
	AdminToken string

	AllowedOrigins []string

	// MaxDevices caps concurrently active devices per license.
	MaxDevices int

	// RateLimitRequests validate calls allowed per RateLimitPeriod per caller.
	RateLimitRequests int64
	RateLimitPeriod   time.Duration

	// RedisURL, when set, backs the rate limiter with Redis so the bound
	// survives restarts and horizontal scaling.
	RedisURL string

	// WebhookLogRetentionDays controls how long webhook log rows are kept.
	WebhookLogRetentionDays int
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	maxDevices := getEnvInt("MAX_DEVICES", 2)
	if maxDevices < 1 {
		maxDevices = 2
	}

	rateLimit := getEnvInt("RATE_LIMIT", 10)
	if rateLimit < 1 {
		rateLimit = 10
	}

	retentionDays := getEnvInt("WEBHOOK_LOG_RETENTION_DAYS", 90)
	if retentionDays < 1 {
		retentionDays = 90
	}

	return ServerConfig{
		Environment:             env,
		ListenAddr:              getEnvString("LISTEN_ADDR", ":8080"),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		LicenseSecret:           os.Getenv("LICENSE_SECRET_KEY"),
		WebhookSecret:           os.Getenv("PADDLE_WEBHOOK_SECRET"),
		AdminToken:              os.Getenv("ADMIN_TOKEN"),
		AllowedOrigins:          getEnvList("CORS_ORIGINS"),
		MaxDevices:              maxDevices,
		RateLimitRequests:       int64(rateLimit),
		RateLimitPeriod:         getEnvDuration("RATE_WINDOW", time.Minute),
		RedisURL:                os.Getenv("REDIS_URL"),
		WebhookLogRetentionDays: retentionDays,
	}
}

// getEnvString reads a string from an environment variable, returning the default if unset.
func getEnvString(key, defaultVal string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration from an environment variable, returning the default if unset or invalid.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// getEnvList reads a comma-separated list from an environment variable.
func getEnvList(key string) []string {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}

	var out []string
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
