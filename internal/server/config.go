package server

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ErrMissingJWTSecret is returned by Validate when no signing secret is configured.
var ErrMissingJWTSecret = errors.New("JWT_SECRET must be set")

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `yaml:"port"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`

	DatabaseURL   string        `yaml:"database_url"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTExpiration time.Duration `yaml:"jwt_expiration"`
	RedisURL      string        `yaml:"redis_url"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	RoomBufferSize   int           `yaml:"room_buffer_size"`
	RoomIdleTimeout  time.Duration `yaml:"room_idle_timeout"`
	MaxContentLength int           `yaml:"max_content_length"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config populated with default values for all settings.
func DefaultConfig() Config {
	return Config{
		Port: ":8080",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 8192,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		DatabaseURL:      "roomchat.db",
		JWTExpiration:    24 * time.Hour,
		CacheTTL:         5 * time.Minute,
		RoomBufferSize:   100,
		MaxContentLength: 4096,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Sanitize replaces invalid or zero values with defaults and normalizes the
// origin list.
func (c Config) Sanitize() Config {
	defaults := DefaultConfig()

	if c.Port == "" {
		c.Port = defaults.Port
	}
	if !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaults.MaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaults.RateLimit.Burst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaults.RateLimit.RefillInterval
	}
	if c.DatabaseURL == "" {
		c.DatabaseURL = defaults.DatabaseURL
	}
	if c.JWTExpiration <= 0 {
		c.JWTExpiration = defaults.JWTExpiration
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = defaults.CacheTTL
	}
	if c.RoomBufferSize <= 0 {
		c.RoomBufferSize = defaults.RoomBufferSize
	}
	if c.RoomIdleTimeout < 0 {
		c.RoomIdleTimeout = 0
	}
	if c.MaxContentLength <= 0 {
		c.MaxContentLength = defaults.MaxContentLength
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaults.ShutdownTimeout
	}

	origins := make([]string, 0, len(c.AllowedOrigins))
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	c.AllowedOrigins = origins

	return c
}

// Validate reports configuration that cannot be defaulted.
func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return ErrMissingJWTSecret
	}
	return nil
}

// LoadFile overlays the YAML file at path onto cfg. A missing file is not an error.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() Config {
	cfg := DefaultConfig()
	ApplyEnv(&cfg)
	return cfg
}

// ApplyEnv overrides cfg with any recognised environment variables.
func ApplyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseSeconds(interval, cfg.RateLimit.RefillInterval)
	}

	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.JWTSecret = secret
	}

	if hours := os.Getenv("JWT_EXPIRATION_HOURS"); hours != "" {
		if h := parseIntValue(hours, 0); h > 0 {
			cfg.JWTExpiration = time.Duration(h) * time.Hour
		}
	}

	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.RedisURL = url
	}

	if ttl := os.Getenv("CACHE_TTL"); ttl != "" {
		cfg.CacheTTL = parseDuration("CACHE_TTL", ttl, cfg.CacheTTL)
	}

	if size := os.Getenv("ROOM_BUFFER_SIZE"); size != "" {
		cfg.RoomBufferSize = parseIntValue(size, cfg.RoomBufferSize)
	}

	if length := os.Getenv("MAX_CONTENT_LENGTH"); length != "" {
		cfg.MaxContentLength = parseIntValue(length, cfg.MaxContentLength)
	}

	if idle := os.Getenv("ROOM_IDLE_TIMEOUT"); idle != "" {
		cfg.RoomIdleTimeout = parseDuration("ROOM_IDLE_TIMEOUT", idle, cfg.RoomIdleTimeout)
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

// parseSeconds accepts a bare number of seconds.
func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

// parseDuration accepts Go duration syntax ("90s", "5m") or bare seconds.
func parseDuration(key, value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d >= 0 {
		return d
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	log.Warn().Str("key", key).Str("value", value).Dur("default", defaultValue).Msg("invalid duration, using default")
	return defaultValue
}
