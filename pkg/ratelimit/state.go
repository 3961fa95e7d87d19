// Package ratelimit tracks Spotify Web API backpressure and gates requests.
// Spotify applies a global per-application rate limit and signals violations
// with 429 responses carrying a Retry-After header. The tracker shares the
// resulting deadline across processes via Redis so parallel workers honor
// a single wait instead of each discovering the limit on their own.
package ratelimit

import (
	"time"
)

// Redis keys for rate limit state storage.
const (
	RedisKeyRetryUntil = "spotify:rate_limit:retry_until"
	RedisKeyLastUpdate = "spotify:rate_limit:last_update"
)

// State represents the current rate limit state.
// This state is shared across all client instances via Redis.
type State struct {
	// RetryUntil is the deadline before which no request should be sent.
	// Derived from the Retry-After header of the last 429 response.
	RetryUntil time.Time `json:"retry_until"`

	// LastUpdate is when this state was last updated.
	LastUpdate time.Time `json:"last_update"`
}

// Blocked returns true if requests should currently wait.
func (s *State) Blocked() bool {
	return time.Now().Before(s.RetryUntil)
}

// WaitDuration returns the time remaining until requests may resume.
// Returns 0 if the deadline has already passed.
func (s *State) WaitDuration() time.Duration {
	wait := time.Until(s.RetryUntil)
	if wait < 0 {
		return 0
	}
	return wait
}

// IsStale returns true if the state data is older than the given duration.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}
