// Package metrics provides the centralized Prometheus metrics registry for
// the history enricher. All metrics are defined in their respective packages
// (fetch, spotify, cache, ratelimit) to maintain modularity and avoid
// circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the enricher.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Batch Fetch Metrics (pkg/fetch):
//   - enricher_fetch_batches_total{outcome} (Counter): Batches by terminal outcome (succeeded, exhausted, abandoned)
//   - enricher_fetch_retries_total{class} (Counter): Retry attempts by error class
//   - enricher_fetch_backoff_seconds{class} (Histogram): Backoff duration by error class
//   - enricher_fetch_rate_limit_wait_seconds (Histogram): Server-directed rate limit waits
//
// Request Metrics (pkg/spotify):
//   - enricher_api_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - enricher_api_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - enricher_api_errors_total{class} (Counter): API errors by class (rate_limited, retryable, fatal)
//
// Cache Metrics (pkg/cache):
//   - enricher_cache_hits_total (Counter): Metadata cache hits
//   - enricher_cache_misses_total (Counter): Metadata cache misses
//   - enricher_cache_size_bytes (Gauge): Bytes written to the cache
//   - enricher_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - enricher_rate_limit_retry_until_timestamp_seconds (Gauge): Unix time the shared deadline expires
//   - enricher_rate_limit_waits_total (Counter): Calls that blocked on the shared deadline
//   - enricher_rate_limit_observations_total (Counter): Server rate limit signals recorded
//
// Example Prometheus Queries:
//
//   # Batch Success Rate
//   sum(rate(enricher_fetch_batches_total{outcome="succeeded"}[5m])) /
//   sum(rate(enricher_fetch_batches_total[5m]))
//
//   # Cache Hit Rate
//   sum(rate(enricher_cache_hits_total[5m])) /
//   (sum(rate(enricher_cache_hits_total[5m])) + sum(rate(enricher_cache_misses_total[5m])))
//
//   # Time Spent Rate Limited
//   rate(enricher_fetch_rate_limit_wait_seconds_sum[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(enricher_api_request_duration_seconds_bucket[5m]))
