package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all client configuration.
// We use a struct (not globals) so it's testable and explicit.
type Config struct {
	// Backend endpoints
	APIBaseURL string
	GatewayURL string

	// Auth
	Token string

	// Push transport: "gateway", "redis" or "memory"
	PushTransport string
	RedisURL      string

	// Engine tuning
	FetchLimit     int
	TypingExpiry   time.Duration
	TypingCooldown time.Duration

	Env string // "development" or "production"
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		APIBaseURL:     getEnvOrDefault("HALCYON_API_URL", "http://localhost:8080/api"),
		GatewayURL:     getEnvOrDefault("HALCYON_GATEWAY_URL", "ws://localhost:8080/ws"),
		Token:          os.Getenv("HALCYON_TOKEN"),
		PushTransport:  getEnvOrDefault("HALCYON_PUSH_TRANSPORT", "gateway"),
		RedisURL:       os.Getenv("HALCYON_REDIS_URL"),
		FetchLimit:     getEnvInt("HALCYON_FETCH_LIMIT", 50),
		TypingExpiry:   getEnvDuration("HALCYON_TYPING_EXPIRY", 3*time.Second),
		TypingCooldown: getEnvDuration("HALCYON_TYPING_COOLDOWN", 2*time.Second),
		Env:            getEnvOrDefault("HALCYON_ENV", "development"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Token == "" {
		return fmt.Errorf("HALCYON_TOKEN is required")
	}
	switch c.PushTransport {
	case "gateway", "redis", "memory":
	default:
		return fmt.Errorf("invalid HALCYON_PUSH_TRANSPORT %q (want gateway, redis or memory)", c.PushTransport)
	}
	if c.PushTransport == "redis" && c.RedisURL == "" {
		return fmt.Errorf("HALCYON_REDIS_URL is required for the redis transport")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
