package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, ":4430", cfg.IdPListenAddr)
	assert.Equal(t, "http://localhost:4430", cfg.IdPBaseURL)
	assert.Equal(t, 15*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 10*time.Minute, cfg.AssertionTTL)
	assert.Equal(t, 5*time.Minute, cfg.ClockSkew)
	assert.Equal(t, 20, cfg.RateBurst)
	assert.False(t, cfg.Debug)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LETSAUTH_ENV", "production")
	t.Setenv("LETSAUTH_IDP_BASE_URL", "https://id.example.com")
	t.Setenv("LETSAUTH_PENDING_TTL", "5m")
	t.Setenv("LETSAUTH_RATE_BURST", "50")
	t.Setenv("LETSAUTH_CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("LETSAUTH_DEBUG", "true")

	cfg := LoadConfig()

	assert.Equal(t, "production", cfg.Environment)
	assert.False(t, cfg.IsDevelopment())
	assert.Equal(t, "https://id.example.com", cfg.IdPBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 50, cfg.RateBurst)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.True(t, cfg.Debug)
}

func TestLoadConfigBadValuesFallBack(t *testing.T) {
	t.Setenv("LETSAUTH_PENDING_TTL", "soon")
	t.Setenv("LETSAUTH_RATE_BURST", "many")

	cfg := LoadConfig()
	assert.Equal(t, 15*time.Minute, cfg.PendingTTL)
	assert.Equal(t, 20, cfg.RateBurst)
}
