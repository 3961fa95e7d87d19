package fetch

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the fetcher.
var (
	// ErrContextCancelled is returned when the context is cancelled during a wait.
	ErrContextCancelled = errors.New("context cancelled")
)

// Class is the three-way classification of remote lookup failures.
type Class string

const (
	// ClassRateLimited marks backpressure from the remote source. The batch
	// is retried after the server-directed wait and never consumes the
	// retry budget.
	ClassRateLimited Class = "rate_limited"

	// ClassRetryable marks a transient remote or transport fault. The batch
	// is retried with backoff up to the configured budget.
	ClassRetryable Class = "retryable"

	// ClassFatal marks a permission or authorization failure. The batch is
	// abandoned immediately without further attempts.
	ClassFatal Class = "fatal"
)

// Error is the tagged failure type produced by a collaborator's classifier
// at the lookup boundary. The fetch core branches on Class only and never
// inspects transport-specific error shapes.
type Error struct {
	Class      Class
	RetryAfter time.Duration // server-directed wait, rate-limited only
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s lookup error: %v", e.Class, e.Err)
	}
	return fmt.Sprintf("%s lookup error", e.Class)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify extracts the classification and server-directed wait from a
// lookup error. Errors that carry no classification (including collaborator
// timeouts) default to retryable.
func Classify(err error) (Class, time.Duration) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class, fe.RetryAfter
	}
	return ClassRetryable, 0
}
