// Package config provides configuration management for Sevara.
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
	Environment   Environment
	ListenAddr    string
	DatabaseURL   string
	SessionSecret string
	SessionMaxAge int // session lifetime in seconds (default: 86400)

	// Rate limiting for the signature endpoints.
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RedisURL          string // when set, rate limit state is shared via Redis

	// Reminder sweep for agreements stuck awaiting a signature.
	ReminderStaleAge time.Duration

	// S3-compatible storage for executed agreement documents. Document
	// storage is disabled when the bucket is empty.
	DocsS3Endpoint  string
	DocsS3Bucket    string
	DocsS3Prefix    string
	DocsS3Region    string
	DocsS3AccessKey string
	DocsS3SecretKey string
	DocsS3UseSSL    bool
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

	sessionMaxAge := getEnvInt("SESSION_MAX_AGE", 86400)
	if sessionMaxAge < 0 {
		sessionMaxAge = 86400
	}

	return ServerConfig{
		Environment:   env,
		ListenAddr:    getEnv("LISTEN_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		SessionSecret: os.Getenv("SESSION_SECRET"),
		SessionMaxAge: sessionMaxAge,

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:   getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		RedisURL:          os.Getenv("REDIS_URL"),

		ReminderStaleAge: getEnvDuration("REMINDER_STALE_AGE", 72*time.Hour),

		DocsS3Endpoint:  os.Getenv("DOCS_S3_ENDPOINT"),
		DocsS3Bucket:    os.Getenv("DOCS_S3_BUCKET"),
		DocsS3Prefix:    os.Getenv("DOCS_S3_PREFIX"),
		DocsS3Region:    os.Getenv("DOCS_S3_REGION"),
		DocsS3AccessKey: os.Getenv("DOCS_S3_ACCESS_KEY"),
		DocsS3SecretKey: os.Getenv("DOCS_S3_SECRET_KEY"),
		DocsS3UseSSL:    getEnvBool("DOCS_S3_USE_SSL", true),
	}
}

// DocumentsEnabled reports whether document storage is configured.
func (c ServerConfig) DocumentsEnabled() bool {
	return c.DocsS3Bucket != ""
}

// getEnv reads a string from an environment variable, returning the default if unset.
func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
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
