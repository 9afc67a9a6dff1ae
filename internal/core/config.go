package core

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration for both the identity
// provider and the relying party binaries.
type Config struct {
	// Environment (development, demo, production)
	Environment string

	// Identity provider listening address and external base URL
	IdPListenAddr string
	IdPBaseURL    string

	// Relying party listening address and external base URL
	RPListenAddr string
	RPBaseURL    string

	// PEM file holding the IdP signing key; empty means an ephemeral
	// key is generated at startup
	KeyFile string

	// Directory for the SQLite store; empty selects the in-memory store
	DataDir string

	// Protocol timing
	PendingTTL   time.Duration // unconfirmed login attempts
	AssertionTTL time.Duration // assertion validity window
	ClockSkew    time.Duration // tolerated IdP/RP clock drift
	JWKSCacheTTL time.Duration // RP-side key cache

	// CORS allowed origins
	CORSOrigins []string

	// Rate limiting (per client IP)
	RateBurst  int
	RatePerSec int

	// Enable debug behavior (confirmation links in /auth responses)
	Debug bool
}

// LoadConfig loads configuration from environment variables with sensible
// defaults.
func LoadConfig() *Config {
	return &Config{
		Environment:   getEnv("LETSAUTH_ENV", "development"),
		IdPListenAddr: getEnv("LETSAUTH_IDP_LISTEN_ADDR", ":4430"),
		IdPBaseURL:    getEnv("LETSAUTH_IDP_BASE_URL", "http://localhost:4430"),
		RPListenAddr:  getEnv("LETSAUTH_RP_LISTEN_ADDR", ":8080"),
		RPBaseURL:     getEnv("LETSAUTH_RP_BASE_URL", "http://localhost:8080"),
		KeyFile:       getEnv("LETSAUTH_KEY_FILE", ""),
		DataDir:       getEnv("LETSAUTH_DATA_DIR", ""),
		PendingTTL:    getEnvDuration("LETSAUTH_PENDING_TTL", 15*time.Minute),
		AssertionTTL:  getEnvDuration("LETSAUTH_ASSERTION_TTL", 10*time.Minute),
		ClockSkew:     getEnvDuration("LETSAUTH_CLOCK_SKEW", 5*time.Minute),
		JWKSCacheTTL:  getEnvDuration("LETSAUTH_JWKS_CACHE_TTL", 5*time.Minute),
		CORSOrigins:   getEnvList("LETSAUTH_CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:8080"}),
		RateBurst:     getEnvInt("LETSAUTH_RATE_BURST", 20),
		RatePerSec:    getEnvInt("LETSAUTH_RATE_PER_SEC", 10),
		Debug:         getEnvBool("LETSAUTH_DEBUG", false),
	}
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.ToLower(value) == "true" || value == "1"
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.Split(value, ",")
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}
