package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Mindburn-Labs/coherence/pkg/config"
)

var envKeys = []string{
	"LOG_LEVEL", "LOG_FORMAT", "DATABASE_URL", "SQLITE_PATH", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"CACHE_TTL", "WEIGHT_PROFILES_PATH", "REVIEW_POLICY", "GAMING_PENALTY", "EVENT_RATE_LIMIT",
	"OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_INSECURE",
}

// TestLoad_Defaults verifies that Load() returns sensible defaults
// when no environment variables are set.
func TestLoad_Defaults(t *testing.T) {
	for _, k := range envKeys {
		t.Setenv(k, "")
	}

	cfg := config.Load()

	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.True(t, cfg.LiteMode())
	assert.Equal(t, "data/coherence.db", cfg.SQLitePath)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.True(t, cfg.GamingPenalty)
	assert.Equal(t, 0.0, cfg.EventRateLimit)
	assert.False(t, cfg.OTelEnabled)
	assert.Equal(t, "localhost:4317", cfg.OTelEndpoint)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

// TestLoad_Overrides verifies that environment variables correctly
// override default values.
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("LOG_FORMAT", "JSON")
	t.Setenv("DATABASE_URL", "postgres://production:5432/db")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("REVIEW_POLICY", `severity == "CRITICAL"`)
	t.Setenv("GAMING_PENALTY", "false")
	t.Setenv("EVENT_RATE_LIMIT", "2.5")
	t.Setenv("OTEL_ENABLED", "true")

	cfg := config.Load()

	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.False(t, cfg.LiteMode())
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, 3, cfg.RedisDB)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, `severity == "CRITICAL"`, cfg.ReviewPolicy)
	assert.False(t, cfg.GamingPenalty)
	assert.Equal(t, 2.5, cfg.EventRateLimit)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("REDIS_DB", "abc")
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("EVENT_RATE_LIMIT", "fast")

	cfg := config.Load()
	assert.Equal(t, 0, cfg.RedisDB)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 0.0, cfg.EventRateLimit)
}
