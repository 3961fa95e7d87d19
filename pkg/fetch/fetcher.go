package fetch

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for batch fetch operations.
var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_fetch_batches_total",
		Help: "Total resolved batches by outcome",
	}, []string{"outcome"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "enricher_fetch_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"class"})

	backoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "enricher_fetch_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"class"})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "enricher_fetch_rate_limit_wait_seconds",
		Help:    "Server-directed wait duration on rate-limited batches",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})
)

// MaxBatchSize is the per-call identifier maximum documented by the
// Spotify Web API for batch endpoints.
const MaxBatchSize = 100

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = 5 * time.Second
	defaultMultiplier = 2.0
	defaultMaxBackoff = 60 * time.Second
)

// LookupFunc is the collaborator-supplied remote capability. It resolves a
// batch of identifiers into one result per identifier, in the same order.
// Individual results may be nil when the remote source has no data for that
// identifier. Failures are classified via fetch.Error at the boundary.
type LookupFunc[T any] func(ctx context.Context, ids []string) ([]*T, error)

// Config holds fetcher configuration.
type Config struct {
	// BatchSize is the window size, capped at MaxBatchSize.
	BatchSize int

	// MaxRetries bounds lookup attempts per batch. Rate-limit waits do not
	// count against it.
	MaxRetries int

	// BaseDelay is the wait after a retryable failure and the fallback wait
	// when a rate-limit signal carries no server-directed duration.
	BaseDelay time.Duration

	// BackoffMultiplier scales BaseDelay per consumed attempt.
	BackoffMultiplier float64

	// MaxBackoff caps the scaled backoff.
	MaxBackoff time.Duration

	// Logger for per-batch events.
	Logger zerolog.Logger
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:         MaxBatchSize,
		MaxRetries:        defaultMaxRetries,
		BaseDelay:         defaultBaseDelay,
		BackoffMultiplier: defaultMultiplier,
		MaxBackoff:        defaultMaxBackoff,
	}
}

// Fetcher resolves identifier sequences into positionally aligned metadata
// via an injected lookup capability. Batches are independent: one batch
// exhausting its retries degrades to absent markers and never aborts the run.
type Fetcher[T any] struct {
	lookup LookupFunc[T]
	config Config
	logger zerolog.Logger
}

// New creates a fetcher around the given lookup capability.
func New[T any](lookup LookupFunc[T], cfg Config) *Fetcher[T] {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = defaultMultiplier
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	return &Fetcher[T]{
		lookup: lookup,
		config: cfg,
		logger: cfg.Logger,
	}
}

// Fetch resolves ids into a same-length sequence of optional metadata
// records. Empty identifiers are absent: they never reach the lookup and
// yield a nil slot directly. The only returned error is context
// cancellation; every other failure degrades to nil slots for the
// affected batch.
func (f *Fetcher[T]) Fetch(ctx context.Context, ids []string) ([]*T, error) {
	out := make([]*T, 0, len(ids))

	for start := 0; start < len(ids); start += f.config.BatchSize {
		end := min(start+f.config.BatchSize, len(ids))
		window, err := f.resolveWindow(ctx, start, ids[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, window...)
	}

	return out, nil
}

// batchState drives the per-batch retry state machine.
type batchState int

const (
	stateAttempting batchState = iota
	stateWaitingRateLimit
	stateWaitingBackoff
	stateSucceeded
	stateExhausted
	stateAbandoned
)

func (s batchState) String() string {
	switch s {
	case stateAttempting:
		return "attempting"
	case stateWaitingRateLimit:
		return "waiting_rate_limit"
	case stateWaitingBackoff:
		return "waiting_backoff"
	case stateSucceeded:
		return "succeeded"
	case stateExhausted:
		return "exhausted"
	case stateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// retryState holds per-batch counters. Created at batch start, discarded
// once the batch resolves.
type retryState struct {
	attempt   int
	wait      time.Duration
	lastClass Class
	lastErr   error
}

// resolveWindow resolves one window of the input sequence, preserving its
// span: positions holding absent identifiers map to nil without consuming
// any retry budget, and a window with no valid identifiers never triggers
// a remote call.
func (f *Fetcher[T]) resolveWindow(ctx context.Context, offset int, window []string) ([]*T, error) {
	valid := make([]string, 0, len(window))
	for _, id := range window {
		if id != "" {
			valid = append(valid, id)
		}
	}

	out := make([]*T, len(window))
	if len(valid) == 0 {
		return out, nil
	}

	results, state, err := f.resolveBatch(ctx, offset, valid)
	if err != nil {
		return nil, err
	}
	if state != stateSucceeded {
		// Whole-batch-absent on exhaustion or abandonment.
		return out, nil
	}

	next := 0
	for i, id := range window {
		if id == "" {
			continue
		}
		out[i] = results[next]
		next++
	}
	return out, nil
}

// resolveBatch runs the retry state machine for one batch of valid
// identifiers. It returns the lookup results only in the succeeded state;
// the error return is reserved for context cancellation.
func (f *Fetcher[T]) resolveBatch(ctx context.Context, offset int, ids []string) ([]*T, batchState, error) {
	rs := retryState{}
	state := stateAttempting
	var results []*T

	for {
		switch state {
		case stateAttempting:
			if rs.attempt >= f.config.MaxRetries {
				state = stateExhausted
				continue
			}

			res, err := f.lookup(ctx, ids)
			if err == nil && len(res) != len(ids) {
				err = fmt.Errorf("lookup returned %d results for %d identifiers", len(res), len(ids))
			}
			if err == nil {
				results = res
				state = stateSucceeded
				continue
			}

			class, retryAfter := Classify(err)
			rs.lastClass = class
			rs.lastErr = err

			switch class {
			case ClassRateLimited:
				rs.wait = retryAfter
				if rs.wait <= 0 {
					rs.wait = f.config.BaseDelay
				}
				state = stateWaitingRateLimit
			case ClassFatal:
				state = stateAbandoned
			default:
				rs.attempt++
				if rs.attempt >= f.config.MaxRetries {
					state = stateExhausted
					continue
				}
				rs.wait = f.backoff(rs.attempt)
				state = stateWaitingBackoff
			}

		case stateWaitingRateLimit:
			rateLimitWaitSeconds.Observe(rs.wait.Seconds())
			f.logger.Warn().
				Int("batch_start", offset).
				Int("batch_size", len(ids)).
				Dur("retry_after", rs.wait).
				Msg("Rate limit exceeded, honoring server wait")

			if err := sleepContext(ctx, rs.wait); err != nil {
				return nil, state, err
			}
			state = stateAttempting

		case stateWaitingBackoff:
			retriesTotal.WithLabelValues(string(rs.lastClass)).Inc()
			backoffSeconds.WithLabelValues(string(rs.lastClass)).Observe(rs.wait.Seconds())
			f.logger.Warn().
				Err(rs.lastErr).
				Int("batch_start", offset).
				Int("attempt", rs.attempt).
				Dur("backoff", rs.wait).
				Msg("Retrying batch after backoff")

			if err := sleepContext(ctx, rs.wait); err != nil {
				return nil, state, err
			}
			state = stateAttempting

		case stateSucceeded:
			batchesTotal.WithLabelValues(state.String()).Inc()
			if rs.attempt > 0 {
				f.logger.Info().
					Int("batch_start", offset).
					Int("attempt", rs.attempt+1).
					Msg("Batch succeeded after retry")
			}
			return results, state, nil

		case stateExhausted:
			batchesTotal.WithLabelValues(state.String()).Inc()
			f.logger.Warn().
				Err(rs.lastErr).
				Int("batch_start", offset).
				Int("batch_size", len(ids)).
				Int("max_retries", f.config.MaxRetries).
				Msg("Retry attempts exhausted, marking batch absent")
			return nil, state, nil

		case stateAbandoned:
			batchesTotal.WithLabelValues(state.String()).Inc()
			f.logger.Error().
				Err(rs.lastErr).
				Int("batch_start", offset).
				Int("batch_size", len(ids)).
				Msg("Batch abandoned, marking batch absent")
			return nil, state, nil
		}
	}
}

// backoff computes the wait before the given consumed attempt, scaled
// exponentially with jitter (±20%) and capped at MaxBackoff.
func (f *Fetcher[T]) backoff(attempt int) time.Duration {
	wait := f.config.BaseDelay
	for i := 1; i < attempt; i++ {
		wait = time.Duration(float64(wait) * f.config.BackoffMultiplier)
		if wait >= f.config.MaxBackoff {
			wait = f.config.MaxBackoff
			break
		}
	}

	jittered := time.Duration(float64(wait) * (0.8 + rand.Float64()*0.4))
	if jittered > f.config.MaxBackoff {
		jittered = f.config.MaxBackoff
	}
	return jittered
}

// sleepContext waits for d, aborting early when the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
