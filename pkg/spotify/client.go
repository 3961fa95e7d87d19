// Package spotify provides the Spotify Web API client used as the remote
// lookup collaborator, with shared rate-limit gating, metadata caching, and
// error classification at the boundary.
package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sgriggs3/spotify-history-enricher/pkg/cache"
	"github.com/sgriggs3/spotify-history-enricher/pkg/fetch"
	"github.com/sgriggs3/spotify-history-enricher/pkg/ratelimit"
)

// Prometheus metrics for Spotify API operations.
var (
	apiRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_api_requests_total",
		Help: "Total Spotify API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	apiRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enricher_api_request_duration_seconds",
		Help:    "Spotify API request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	apiErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_api_errors_total",
		Help: "Total Spotify API errors by class",
	}, []string{"class"})
)

// DefaultBaseURL is the Spotify Web API root.
const DefaultBaseURL = "https://api.spotify.com/v1"

// MaxIDsPerRequest is the documented per-call maximum of the audio-features
// endpoint.
const MaxIDsPerRequest = 100

const defaultCacheTTL = 24 * time.Hour

// Client is the Spotify Web API client.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	userAgent   string
	rateLimiter *ratelimit.Tracker
	cache       *cache.Manager
	cacheTTL    time.Duration
	logger      zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// HTTPClient is the authenticated HTTP client (oauth2 token transport).
	HTTPClient *http.Client

	// BaseURL overrides the API root (tests).
	BaseURL string

	// UserAgent header sent on every request.
	UserAgent string

	// Redis enables the shared rate-limit deadline and the metadata cache.
	// With nil Redis the limiter is process-local and caching is disabled.
	Redis *redis.Client

	// CacheTTL for cached audio features. Features are immutable per track,
	// so the default is generous.
	CacheTTL time.Duration
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(httpClient *http.Client, userAgent string) Config {
	return Config{
		HTTPClient: httpClient,
		BaseURL:    DefaultBaseURL,
		UserAgent:  userAgent,
		CacheTTL:   defaultCacheTTL,
	}
}

// New creates a new Spotify client.
func New(cfg Config) (*Client, error) {
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}

	logger := log.With().Str("component", "spotify-client").Logger()

	var featureCache *cache.Manager
	if cfg.Redis != nil {
		featureCache = cache.NewManager(cfg.Redis)
	}

	return &Client{
		httpClient:  cfg.HTTPClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:   cfg.UserAgent,
		rateLimiter: ratelimit.NewTracker(cfg.Redis, logger),
		cache:       featureCache,
		cacheTTL:    cfg.CacheTTL,
		logger:      logger,
	}, nil
}

// GetAudioFeatures resolves up to MaxIDsPerRequest track IDs into audio
// feature records, one per requested ID in the same order. Unknown tracks
// come back nil. The call is single-shot: the retry policy belongs to the
// batch fetch core, this method only classifies its failures.
func (c *Client) GetAudioFeatures(ctx context.Context, ids []string) ([]*AudioFeatures, error) {
	if len(ids) == 0 {
		return []*AudioFeatures{}, nil
	}
	if len(ids) > MaxIDsPerRequest {
		return nil, &fetch.Error{
			Class: fetch.ClassFatal,
			Err:   fmt.Errorf("%d ids exceed the per-call maximum of %d", len(ids), MaxIDsPerRequest),
		}
	}

	// Honor any shared rate-limit deadline before touching the API.
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	out := make([]*AudioFeatures, len(ids))

	// Resolve what we can from the cache in one round trip.
	remaining := ids
	remainingIdx := make([]int, len(ids))
	for i := range ids {
		remainingIdx[i] = i
	}
	if c.cache != nil {
		remaining, remainingIdx = c.fillFromCache(ctx, ids, out)
		if len(remaining) == 0 {
			return out, nil
		}
	}

	fetched, err := c.fetchAudioFeatures(ctx, remaining)
	if err != nil {
		return nil, err
	}
	if len(fetched) != len(remaining) {
		return nil, &fetch.Error{
			Class: fetch.ClassRetryable,
			Err:   fmt.Errorf("got %d records for %d ids", len(fetched), len(remaining)),
		}
	}

	for i, features := range fetched {
		out[remainingIdx[i]] = features
	}
	c.storeInCache(ctx, fetched)

	return out, nil
}

// fillFromCache populates out with cached records and returns the ids (and
// their positions) still missing. Cache trouble degrades to a full fetch.
func (c *Client) fillFromCache(ctx context.Context, ids []string, out []*AudioFeatures) ([]string, []int) {
	keys := make([]cache.Key, len(ids))
	for i, id := range ids {
		keys[i] = cache.FeaturesKey(id)
	}

	entries, err := c.cache.GetMulti(ctx, keys)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Feature cache lookup failed")
		missedIdx := make([]int, len(ids))
		for i := range ids {
			missedIdx[i] = i
		}
		return ids, missedIdx
	}

	var missing []string
	var missingIdx []int
	for i, id := range ids {
		entry, ok := entries[id]
		if !ok {
			missing = append(missing, id)
			missingIdx = append(missingIdx, i)
			continue
		}
		var features AudioFeatures
		if err := json.Unmarshal(entry.Data, &features); err != nil {
			missing = append(missing, id)
			missingIdx = append(missingIdx, i)
			continue
		}
		out[i] = &features
	}

	c.logger.Debug().
		Int("requested", len(ids)).
		Int("cached", len(ids)-len(missing)).
		Msg("Feature cache lookup")

	return missing, missingIdx
}

// storeInCache persists freshly fetched records. Failures are logged only;
// caching is best effort.
func (c *Client) storeInCache(ctx context.Context, fetched []*AudioFeatures) {
	if c.cache == nil {
		return
	}

	entries := make(map[cache.Key]*cache.Entry, len(fetched))
	for _, features := range fetched {
		if !features.Valid() {
			continue
		}
		data, err := json.Marshal(features)
		if err != nil {
			continue
		}
		entries[cache.FeaturesKey(features.ID)] = cache.NewEntry(data, c.cacheTTL)
	}
	if len(entries) == 0 {
		return
	}

	if err := c.cache.SetMulti(ctx, entries); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to cache audio features")
	}
}

// fetchAudioFeatures performs the actual API call for the given ids.
func (c *Client) fetchAudioFeatures(ctx context.Context, ids []string) ([]*AudioFeatures, error) {
	const endpoint = "/audio-features"

	startTime := time.Now()
	defer func() {
		apiRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("ids", len(ids)).
		Msg("Executing Spotify request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		apiErrorsTotal.WithLabelValues(string(fetch.ClassRetryable)).Inc()
		apiRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		c.logger.Warn().Err(err).Str("endpoint", endpoint).Msg("HTTP request failed")
		return nil, &fetch.Error{Class: fetch.ClassRetryable, Err: err}
	}
	defer resp.Body.Close()

	apiRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode != http.StatusOK {
		retryAfter := parseRetryAfter(resp.Header)
		if resp.StatusCode == http.StatusTooManyRequests {
			if err := c.rateLimiter.ObserveRetryAfter(ctx, retryAfter); err != nil {
				c.logger.Warn().Err(err).Msg("Failed to record rate limit deadline")
			}
		}

		classified := classifyStatus(resp.StatusCode, retryAfter, &APIError{
			StatusCode: resp.StatusCode,
			Message:    resp.Status,
		})
		apiErrorsTotal.WithLabelValues(string(classified.Class)).Inc()

		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("error_class", string(classified.Class)).
			Msg("Spotify request error")

		return nil, classified
	}

	var payload audioFeaturesResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		apiErrorsTotal.WithLabelValues(string(fetch.ClassRetryable)).Inc()
		return nil, &fetch.Error{Class: fetch.ClassRetryable, Err: fmt.Errorf("decode response: %w", err)}
	}

	return payload.AudioFeatures, nil
}
