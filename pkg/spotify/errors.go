package spotify

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sgriggs3/spotify-history-enricher/pkg/fetch"
)

// APIError represents a Spotify Web API error response.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("spotify API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("spotify API error (status %d)", e.StatusCode)
}

// classifyStatus maps an HTTP failure status to the three-way fetch
// taxonomy. The fetch core branches on the class alone, so this is the only
// place that inspects transport-specific error shapes.
//
//   - 429 is backpressure: retried indefinitely with the server wait
//   - 401/403 and remaining 4xx are not recoverable by retrying
//   - 5xx is a transient server fault
func classifyStatus(statusCode int, retryAfter time.Duration, apiErr *APIError) *fetch.Error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &fetch.Error{Class: fetch.ClassRateLimited, RetryAfter: retryAfter, Err: apiErr}
	case statusCode >= 500:
		return &fetch.Error{Class: fetch.ClassRetryable, Err: apiErr}
	default:
		return &fetch.Error{Class: fetch.ClassFatal, Err: apiErr}
	}
}

// parseRetryAfter reads the Retry-After header, which Spotify sends as
// integer seconds but may also arrive as an HTTP date.
func parseRetryAfter(headers http.Header) time.Duration {
	value := headers.Get("Retry-After")
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	if when, err := http.ParseTime(value); err == nil {
		if until := time.Until(when); until > 0 {
			return until
		}
	}

	return 0
}
