// Package config loads the enricher configuration from the environment,
// with an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Auth modes selectable via ENRICHER_AUTH_MODE.
const (
	// AuthModeClient uses the client-credentials grant (app-only access).
	AuthModeClient = "client"

	// AuthModeUser runs the authorization-code flow with PKCE and caches
	// the granted token in TokenFile.
	AuthModeUser = "user"
)

// Config is the full enricher configuration.
type Config struct {
	// Spotify application credentials.
	SpotifyClientID     string
	SpotifyClientSecret string
	SpotifyRedirectURI  string

	// AuthMode selects the OAuth2 flow: AuthModeClient or AuthModeUser.
	AuthMode string

	// RedisAddr enables the shared rate-limit deadline and the feature
	// cache. Empty disables both.
	RedisAddr string

	// File layout.
	DataDir   string
	OutputDir string
	TokenFile string

	// Batch fetch tuning.
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
	Workers    int

	// Logging.
	LogLevel  string
	LogPretty bool

	// MetricsAddr serves Prometheus metrics when set, e.g. ":9100".
	MetricsAddr string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over file entries.
func Load() (*Config, error) {
	// Missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := &Config{
		SpotifyClientID:     os.Getenv("SPOTIFY_CLIENT_ID"),
		SpotifyClientSecret: os.Getenv("SPOTIFY_CLIENT_SECRET"),
		SpotifyRedirectURI:  getEnv("SPOTIFY_REDIRECT_URI", "http://127.0.0.1:8888/callback"),
		AuthMode:            getEnv("ENRICHER_AUTH_MODE", AuthModeClient),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		DataDir:             getEnv("ENRICHER_DATA_DIR", "data"),
		OutputDir:           getEnv("ENRICHER_OUTPUT_DIR", "output"),
		TokenFile:           getEnv("ENRICHER_TOKEN_FILE", ".spotify-token.json"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		LogPretty:           getBool("LOG_PRETTY", false),
		MetricsAddr:         os.Getenv("ENRICHER_METRICS_ADDR"),
	}

	var err error
	if cfg.BatchSize, err = getInt("ENRICHER_BATCH_SIZE", 100); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = getInt("ENRICHER_MAX_RETRIES", 3); err != nil {
		return nil, err
	}
	if cfg.Workers, err = getInt("ENRICHER_WORKERS", 2); err != nil {
		return nil, err
	}

	retryDelay, err := getInt("ENRICHER_RETRY_DELAY", 5)
	if err != nil {
		return nil, err
	}
	cfg.RetryDelay = time.Duration(retryDelay) * time.Second

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.SpotifyClientID == "" {
		return fmt.Errorf("SPOTIFY_CLIENT_ID is required")
	}
	if c.AuthMode != AuthModeClient && c.AuthMode != AuthModeUser {
		return fmt.Errorf("ENRICHER_AUTH_MODE must be %q or %q, got %q", AuthModeClient, AuthModeUser, c.AuthMode)
	}
	if c.AuthMode == AuthModeClient && c.SpotifyClientSecret == "" {
		return fmt.Errorf("SPOTIFY_CLIENT_SECRET is required")
	}
	if c.AuthMode == AuthModeUser {
		if c.SpotifyRedirectURI == "" {
			return fmt.Errorf("SPOTIFY_REDIRECT_URI is required in user auth mode")
		}
		if c.TokenFile == "" {
			return fmt.Errorf("ENRICHER_TOKEN_FILE is required in user auth mode")
		}
	}
	if c.BatchSize < 1 || c.BatchSize > 100 {
		return fmt.Errorf("ENRICHER_BATCH_SIZE must be between 1 and 100, got %d", c.BatchSize)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("ENRICHER_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if c.Workers < 1 {
		return fmt.Errorf("ENRICHER_WORKERS must be at least 1, got %d", c.Workers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not an integer", key, value)
	}
	return parsed, nil
}

func getBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
