package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limit tracking.
var (
	retryUntilGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "enricher_rate_limit_retry_until_timestamp_seconds",
		Help: "Unix timestamp of the current rate limit deadline",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_rate_limit_waits_total",
		Help: "Total number of requests that waited on the rate limit deadline",
	})

	rateLimitObservedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "enricher_rate_limit_observations_total",
		Help: "Total number of Retry-After signals recorded",
	})
)

// Tracker monitors the shared rate limit deadline and gates requests.
// With a Redis client the deadline is shared across processes; without one
// the tracker falls back to process-local state.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	local State
}

// NewTracker creates a new rate limit tracker. redisClient may be nil.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// State retrieves the current rate limit state. With Redis configured the
// shared state wins; otherwise the process-local state is returned.
func (t *Tracker) State(ctx context.Context) (State, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.local, nil
	}

	retryUnix, err := t.redis.Get(ctx, RedisKeyRetryUntil).Int64()
	if err == redis.Nil {
		return State{}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("get retry deadline: %w", err)
	}

	updateUnix, err := t.redis.Get(ctx, RedisKeyLastUpdate).Int64()
	if err != nil && err != redis.Nil {
		return State{}, fmt.Errorf("get last update: %w", err)
	}

	return State{
		RetryUntil: time.Unix(retryUnix, 0),
		LastUpdate: time.Unix(updateUnix, 0),
	}, nil
}

// ObserveRetryAfter records a server-directed wait, extending the shared
// deadline. Shorter waits never shrink an existing deadline.
func (t *Tracker) ObserveRetryAfter(ctx context.Context, wait time.Duration) error {
	if wait <= 0 {
		return nil
	}

	now := time.Now()
	deadline := now.Add(wait)

	t.mu.Lock()
	if deadline.After(t.local.RetryUntil) {
		t.local = State{RetryUntil: deadline, LastUpdate: now}
	}
	effective := t.local.RetryUntil
	t.mu.Unlock()

	rateLimitObservedTotal.Inc()

	t.logger.Warn().
		Dur("retry_after", wait).
		Time("retry_until", deadline).
		Msg("Rate limit deadline recorded")

	if t.redis == nil {
		retryUntilGauge.Set(float64(effective.Unix()))
		return nil
	}

	// A shorter wait must not shrink a deadline another worker recorded;
	// the gauge tracks whichever deadline wins.
	if shared, err := t.State(ctx); err == nil && shared.RetryUntil.After(deadline) {
		retryUntilGauge.Set(float64(shared.RetryUntil.Unix()))
		return nil
	}

	// Keep the keys only as long as the deadline is relevant.
	ttl := wait + time.Minute
	pipe := t.redis.Pipeline()
	pipe.Set(ctx, RedisKeyRetryUntil, deadline.Unix(), ttl)
	pipe.Set(ctx, RedisKeyLastUpdate, now.Unix(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store rate limit state in redis: %w", err)
	}
	retryUntilGauge.Set(float64(deadline.Unix()))

	return nil
}

// Wait blocks until the current deadline passes, honoring context
// cancellation. Returns immediately when no deadline is active.
func (t *Tracker) Wait(ctx context.Context) error {
	state, err := t.State(ctx)
	if err != nil {
		return fmt.Errorf("get rate limit state: %w", err)
	}

	if !state.Blocked() {
		return nil
	}

	wait := state.WaitDuration()
	rateLimitWaitsTotal.Inc()
	t.logger.Warn().
		Dur("wait", wait).
		Time("retry_until", state.RetryUntil).
		Msg("Waiting on shared rate limit deadline")

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
