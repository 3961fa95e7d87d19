package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sgriggs3/spotify-history-enricher/internal/config"
	"github.com/sgriggs3/spotify-history-enricher/pkg/auth"
	"github.com/sgriggs3/spotify-history-enricher/pkg/fetch"
	"github.com/sgriggs3/spotify-history-enricher/pkg/logging"
	"github.com/sgriggs3/spotify-history-enricher/pkg/spotify"
)

const userAgent = "spotify-history-enricher/0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Setup(logging.DefaultConfig())
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis is optional: without it the rate-limit deadline is process-local
	// and the feature cache is disabled.
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).
				Msg("Redis unreachable, continuing without cache")
			redisClient = nil
		} else {
			log.Info().Str("addr", cfg.RedisAddr).Msg("Connected to Redis")
		}
	}

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr)
	}

	httpClient, err := authenticate(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Spotify authentication failed")
	}

	client, err := spotify.New(spotify.Config{
		HTTPClient: httpClient,
		BaseURL:    spotify.DefaultBaseURL,
		UserAgent:  userAgent,
		Redis:      redisClient,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Spotify client")
	}

	fetcher := fetch.New(client.GetAudioFeatures, fetch.Config{
		BatchSize:  cfg.BatchSize,
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryDelay,
		Logger:     logging.NewLogger("fetch"),
	})

	pipeline := &Pipeline{
		Fetcher:   fetcher,
		DataDir:   cfg.DataDir,
		OutputDir: cfg.OutputDir,
		Workers:   cfg.Workers,
		Logger:    logging.NewLogger("pipeline"),
	}

	start := time.Now()
	if err := pipeline.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Enrichment failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Enrichment complete")
}

// authenticate builds the authorized HTTP client for the configured flow.
// User mode runs the authorization-code flow with PKCE on first use and
// reuses the cached token afterwards.
func authenticate(ctx context.Context, cfg *config.Config) (*http.Client, error) {
	if cfg.AuthMode == config.AuthModeUser {
		return auth.UserClient(ctx, auth.UserFlowConfig{
			ClientID:    cfg.SpotifyClientID,
			RedirectURI: cfg.SpotifyRedirectURI,
			Scopes:      []string{"user-read-recently-played"},
			TokenFile:   cfg.TokenFile,
		})
	}
	return auth.ClientCredentials(ctx, cfg.SpotifyClientID, cfg.SpotifyClientSecret)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := server.ListenAndServe(); err != nil {
		log.Warn().Err(err).Msg("Metrics server stopped")
	}
}
