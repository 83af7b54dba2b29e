package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 5, RefillInterval: time.Second}, cfg.RateLimit)
	assert.Equal(t, 54*time.Second, cfg.PingInterval)
	assert.Equal(t, 60*time.Second, cfg.PongWait)
	assert.Equal(t, 10*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestNewConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://chat.example.com, http://localhost:3000")
	t.Setenv("MAX_MESSAGE_SIZE", "1024")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2")
	t.Setenv("PING_INTERVAL", "20")
	t.Setenv("PONG_WAIT", "30")
	t.Setenv("WRITE_TIMEOUT", "5")
	t.Setenv("SHUTDOWN_TIMEOUT", "3")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"https://chat.example.com", "http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1024), cfg.MaxMessageSize)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.Equal(t, 2*time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 20*time.Second, cfg.PingInterval)
	assert.Equal(t, 30*time.Second, cfg.PongWait)
	assert.Equal(t, 5*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestNewConfigFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "huge")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "0")
	t.Setenv("PONG_WAIT", "soon")

	cfg := NewConfigFromEnv()
	defaults := NewConfig()

	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.PongWait, cfg.PongWait)
}

func TestNormalizePort(t *testing.T) {
	tests := map[string]string{
		"8080":           ":8080",
		":8080":          ":8080",
		" 9000 ":         ":9000",
		"127.0.0.1:8080": "127.0.0.1:8080",
		"":               "",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizePort(in), "input %q", in)
	}
}

func TestSanitizeConfig(t *testing.T) {
	t.Run("zero values become defaults", func(t *testing.T) {
		cfg := sanitizeConfig(Config{})
		defaults := defaultConfig()

		assert.Equal(t, defaults.Port, cfg.Port)
		assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
		assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
		assert.Equal(t, defaults.PongWait, cfg.PongWait)
		assert.Equal(t, defaults.WriteTimeout, cfg.WriteTimeout)
		assert.Equal(t, defaults.ShutdownTimeout, cfg.ShutdownTimeout)
		assert.Less(t, cfg.PingInterval, cfg.PongWait)
	})

	t.Run("ping interval is kept below pong wait", func(t *testing.T) {
		cfg := NewConfig()
		cfg.PingInterval = 30 * time.Second
		cfg.PongWait = 10 * time.Second

		got := sanitizeConfig(*cfg)

		assert.Equal(t, 9*time.Second, got.PingInterval)
		assert.Equal(t, 10*time.Second, got.PongWait)
	})

	t.Run("origins are copied", func(t *testing.T) {
		cfg := NewConfig()
		got := sanitizeConfig(*cfg)
		got.AllowedOrigins[0] = "http://evil.example"

		assert.Equal(t, "http://localhost:8080", cfg.AllowedOrigins[0])
	})
}
