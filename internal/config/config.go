// config.go

// Environment variable loading and validation.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Config holds all env configuration vars for malauth.
type Config struct {
	// MyAnimeList application credentials. ClientID and ClientSecret are required.
	MALClientID     string
	MALClientSecret string
	MALCallbackURL  string
	MALPKCEMethod   string // empty means the strategy default (plain)

	Port     string
	LogLevel slog.Level

	// RedisURL is optional; empty keeps sessions in process memory.
	RedisURL string

	// DatabaseURL is optional; set to persist local user records.
	DatabaseURL string

	SessionTTL time.Duration

	// CookieInsecure drops the Secure flag so sessions work over plain-HTTP localhost.
	CookieInsecure bool
}

// LoadConfig reads environment variables and returns a validated Config.
// Returns an error if MAL_CLIENT_ID or MAL_CLIENT_SECRET is missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.MALClientID = os.Getenv("MAL_CLIENT_ID")
	if cfg.MALClientID == "" {
		return nil, fmt.Errorf("MAL_CLIENT_ID is required")
	}
	cfg.MALClientSecret = os.Getenv("MAL_CLIENT_SECRET")
	if cfg.MALClientSecret == "" {
		return nil, fmt.Errorf("MAL_CLIENT_SECRET is required")
	}

	cfg.MALCallbackURL = os.Getenv("MAL_CALLBACK_URL")
	if cfg.MALCallbackURL == "" {
		cfg.MALCallbackURL = "http://localhost:3000/auth/myanimelist/callback"
	}
	cfg.MALPKCEMethod = os.Getenv("MAL_PKCE_METHOD")

	// Attempt to get port num, default to 3000
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = "3000"
	}

	// Parse log level, default to info
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		cfg.LogLevel = slog.LevelDebug
	case "warn":
		cfg.LogLevel = slog.LevelWarn
	case "error":
		cfg.LogLevel = slog.LevelError
	default:
		cfg.LogLevel = slog.LevelInfo
	}

	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	cfg.SessionTTL = envDuration("SESSION_TTL", 24*time.Hour)

	// Default false -- only explicit "true" disables Secure cookies.
	cfg.CookieInsecure = os.Getenv("COOKIE_INSECURE") == "true"

	return cfg, nil
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
