package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HALCYON_TOKEN", "tok")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api", cfg.APIBaseURL)
	assert.Equal(t, "gateway", cfg.PushTransport)
	assert.Equal(t, 50, cfg.FetchLimit)
	assert.Equal(t, 3*time.Second, cfg.TypingExpiry)
	assert.Equal(t, 2*time.Second, cfg.TypingCooldown)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HALCYON_TOKEN", "tok")
	t.Setenv("HALCYON_API_URL", "https://chat.example/api")
	t.Setenv("HALCYON_PUSH_TRANSPORT", "redis")
	t.Setenv("HALCYON_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("HALCYON_FETCH_LIMIT", "100")
	t.Setenv("HALCYON_TYPING_EXPIRY", "5s")
	t.Setenv("HALCYON_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example/api", cfg.APIBaseURL)
	assert.Equal(t, "redis", cfg.PushTransport)
	assert.Equal(t, 100, cfg.FetchLimit)
	assert.Equal(t, 5*time.Second, cfg.TypingExpiry)
	assert.False(t, cfg.IsDevelopment())
}

func TestLoad_MissingToken(t *testing.T) {
	t.Setenv("HALCYON_TOKEN", "")

	_, err := Load()
	assert.ErrorContains(t, err, "HALCYON_TOKEN")
}

func TestLoad_InvalidTransport(t *testing.T) {
	t.Setenv("HALCYON_TOKEN", "tok")
	t.Setenv("HALCYON_PUSH_TRANSPORT", "carrier-pigeon")

	_, err := Load()
	assert.ErrorContains(t, err, "HALCYON_PUSH_TRANSPORT")
}

func TestLoad_RedisRequiresURL(t *testing.T) {
	t.Setenv("HALCYON_TOKEN", "tok")
	t.Setenv("HALCYON_PUSH_TRANSPORT", "redis")
	t.Setenv("HALCYON_REDIS_URL", "")

	_, err := Load()
	assert.ErrorContains(t, err, "HALCYON_REDIS_URL")
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("HALCYON_TOKEN", "tok")
	t.Setenv("HALCYON_FETCH_LIMIT", "lots")
	t.Setenv("HALCYON_TYPING_EXPIRY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 50, cfg.FetchLimit)
	assert.Equal(t, 3*time.Second, cfg.TypingExpiry)
}
