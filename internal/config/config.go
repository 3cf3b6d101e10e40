// Package config reads application configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Logging LoggingConfig
	Tags    TagsConfig
}

// HTTPConfig governs the API server.
type HTTPConfig struct {
	Port            string
	ShutdownTimeout time.Duration
	AuthRateLimit   int // requests/sec per IP on signup/login
}

// RedisConfig locates the asynq broker.
type RedisConfig struct {
	Addr string
}

// AuthConfig holds token settings.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

// TagsConfig configures the tag suggestion client.
type TagsConfig struct {
	Timeout time.Duration
}

const (
	defaultPort            = "8080"
	defaultShutdownTimeout = 10 * time.Second
	defaultAuthRateLimit   = 20
	defaultTokenTTL        = 72 * time.Hour
	defaultTagsTimeout     = 5 * time.Second
)

// Load reads configuration from environment variables, applying defaults.
func Load() Config {
	cfg := Config{
		HTTP: HTTPConfig{
			Port:            envOr("PORT", defaultPort),
			ShutdownTimeout: envDuration("SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
			AuthRateLimit:   envInt("AUTH_RATE_LIMIT", defaultAuthRateLimit),
		},
		Redis: RedisConfig{
			Addr: envOr("REDIS_ADDR", "127.0.0.1:6379"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
			TokenTTL:  envDuration("TOKEN_TTL", defaultTokenTTL),
		},
		Logging: LoggingConfig{
			Level:  envOr("LOG_LEVEL", "info"),
			Format: envOr("LOG_FORMAT", "text"),
		},
		Tags: TagsConfig{
			Timeout: envDuration("TAGS_TIMEOUT", defaultTagsTimeout),
		},
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
