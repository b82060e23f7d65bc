package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"payments-playground-api/services/auth"
)

const (
	DefaultServerPort = "8080"
	DefaultAPIBaseURL = "http://localhost:3000"
	DefaultUserID     = "user123"
	DefaultUserAgent  = "BasisTheory-React-Example/1.0.0"
)

type Config struct {
	Server    ServerConfig
	JWT       auth.Config
	API       APIConfig
	Defaults  DefaultsConfig
	Session   SessionConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port string
}

// APIConfig points at the external payments API the routes proxy to.
type APIConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// DefaultsConfig holds the identity used when a request does not name one.
type DefaultsConfig struct {
	UserID string
	Roles  []string
}

type SessionConfig struct {
	Secret string
	MaxAge int
	Secure bool
	Domain string
}

type RedisConfig struct {
	URL          string
	EventWorkers int
	EventsQueue  string
}

type RateLimitConfig struct {
	Enabled bool
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the .env file, if any, and builds the configuration from the
// environment. It never fails; call Validate before minting tokens.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getenv("SERVER_PORT", DefaultServerPort),
		},
		JWT: auth.Config{
			ProjectID:     os.Getenv("JWT_PROJECT_ID"),
			KeyID:         os.Getenv("JWT_KEY_ID"),
			PrivateKeyPEM: loadPrivateKey(),
			TTL:           getDuration("JWT_TTL", auth.DefaultTokenTTL),
		},
		API: APIConfig{
			BaseURL:   strings.TrimRight(getenv("API_BASE_URL", DefaultAPIBaseURL), "/"),
			Timeout:   getDuration("API_TIMEOUT", 30*time.Second),
			UserAgent: getenv("API_USER_AGENT", DefaultUserAgent),
		},
		Defaults: DefaultsConfig{
			UserID: getenv("DEFAULT_USER_ID", DefaultUserID),
			Roles:  splitList(getenv("DEFAULT_ROLES", auth.RolePublic)),
		},
		Session: SessionConfig{
			Secret: os.Getenv("SESSION_SECRET"),
			MaxAge: getInt("SESSION_MAX_AGE", 3600),
			Secure: getBool("SESSION_SECURE", false),
			Domain: os.Getenv("SESSION_DOMAIN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			EventWorkers: clamp(getInt("EVENT_WORKERS", 2), 1, 8),
			EventsQueue:  getenv("EVENTS_QUEUE", "playground_events"),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBool("RATE_LIMIT_ENABLED", true),
		},
		Log: LogConfig{
			Level:  getenv("LOG_LEVEL", "info"),
			Format: getenv("LOG_FORMAT", "text"),
		},
	}

	if len(cfg.Defaults.Roles) == 0 {
		cfg.Defaults.Roles = []string{auth.RolePublic}
	}

	return cfg
}

// Validate reports the first missing JWT setting.
func (c *Config) Validate() error {
	if err := auth.ValidateConfig(c.JWT); err != nil {
		return err
	}
	if c.API.BaseURL == "" {
		return errors.New("API_BASE_URL environment variable is required")
	}
	return nil
}

// RedisEnabled reports whether Redis-backed features should be started.
func (c *Config) RedisEnabled() bool {
	return c.Redis.URL != ""
}

func loadPrivateKey() string {
	if key := os.Getenv("JWT_PRIVATE_KEY"); key != "" {
		return unescapePEM(key)
	}

	path := os.Getenv("JWT_PRIVATE_KEY_FILE")
	if path == "" {
		return ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("reading JWT_PRIVATE_KEY_FILE", "path", path, "err", err)
		return ""
	}
	return string(data)
}

// unescapePEM turns the literal "\n" sequences that env files tend to carry
// back into newlines.
func unescapePEM(key string) string {
	key = strings.Trim(key, `"`)
	return strings.ReplaceAll(key, `\n`, "\n")
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn(fmt.Sprintf("invalid %s, using default", key), "value", v, "default", def)
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn(fmt.Sprintf("invalid %s, using default", key), "value", v, "default", def)
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn(fmt.Sprintf("invalid %s, using default", key), "value", v, "default", def)
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
