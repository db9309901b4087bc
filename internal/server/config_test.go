package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080"}, cfg.AllowedOrigins)
	assert.Equal(t, 5, cfg.RateLimit.Burst)
	assert.Equal(t, time.Second, cfg.RateLimit.RefillInterval)
	assert.Equal(t, 24*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 100, cfg.RoomBufferSize)
	assert.Zero(t, cfg.RoomIdleTimeout)
	assert.Empty(t, cfg.JWTSecret)
	assert.Empty(t, cfg.RedisURL)
}

func TestConfig_Sanitize(t *testing.T) {
	cfg := Config{
		Port:            "9090",
		AllowedOrigins:  []string{" http://a.example ", "", "  "},
		MaxMessageSize:  -1,
		RateLimit:       RateLimitConfig{Burst: 0, RefillInterval: -time.Second},
		RoomIdleTimeout: -time.Minute,
	}.Sanitize()

	defaults := DefaultConfig()
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, []string{"http://a.example"}, cfg.AllowedOrigins)
	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.DatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, defaults.RoomBufferSize, cfg.RoomBufferSize)
	assert.Equal(t, defaults.ShutdownTimeout, cfg.ShutdownTimeout)
	assert.Zero(t, cfg.RoomIdleTimeout)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.ErrorIs(t, cfg.Validate(), ErrMissingJWTSecret)

	cfg.JWTSecret = "   "
	assert.ErrorIs(t, cfg.Validate(), ErrMissingJWTSecret)

	cfg.JWTSecret = "s3cret"
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "http://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("DATABASE_URL", "postgres://localhost/chat")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("ROOM_BUFFER_SIZE", "16")
	t.Setenv("ROOM_IDLE_TIMEOUT", "600")

	cfg := NewConfigFromEnv()

	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"http://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 10, RefillInterval: 3 * time.Second}, cfg.RateLimit)
	assert.Equal(t, "postgres://localhost/chat", cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
	assert.Equal(t, 2*time.Hour, cfg.JWTExpiration)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 16, cfg.RoomBufferSize)
	assert.Equal(t, 10*time.Minute, cfg.RoomIdleTimeout)
}

func TestNewConfigFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "huge")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "soon")
	t.Setenv("JWT_EXPIRATION_HOURS", "0")
	t.Setenv("CACHE_TTL", "forever")

	cfg := NewConfigFromEnv()
	defaults := DefaultConfig()

	assert.Equal(t, defaults.MaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, defaults.RateLimit, cfg.RateLimit)
	assert.Equal(t, defaults.JWTExpiration, cfg.JWTExpiration)
	assert.Equal(t, defaults.CacheTTL, cfg.CacheTTL)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roomchat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: ":7000"
allowed_origins:
  - "*"
jwt_secret: from-file
cache_ttl: 2m
rate_limit:
  burst: 3
  refill_interval: 500ms
room_idle_timeout: 1h
`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, LoadFile(path, &cfg))

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "from-file", cfg.JWTSecret)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, RateLimitConfig{Burst: 3, RefillInterval: 500 * time.Millisecond}, cfg.RateLimit)
	assert.Equal(t, time.Hour, cfg.RoomIdleTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, DefaultConfig().RoomBufferSize, cfg.RoomBufferSize)

	// Environment wins over the file.
	t.Setenv("JWT_SECRET", "from-env")
	ApplyEnv(&cfg)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoadFile_MissingAndInvalid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, LoadFile("", &cfg))
	assert.NoError(t, LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), &cfg))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("port: [unterminated"), 0o600))
	assert.Error(t, LoadFile(bad, &cfg))
}
