// Package fetch implements batch resolution of per-item remote metadata
// with bounded retries, rate-limit backoff, and partial-failure tolerance.
//
// The fetcher walks an identifier sequence in fixed-size windows, drops
// absent identifiers before calling the injected lookup, and assembles a
// result sequence whose length and order always match the input. Each slot
// is either a metadata record or nil.
//
// Example usage:
//
//	fetcher := fetch.New(client.GetAudioFeatures, fetch.DefaultConfig())
//	features, err := fetcher.Fetch(ctx, trackIDs)
//
// Failure handling per batch:
//   - rate-limited: wait the server-directed duration, retry without
//     consuming the retry budget
//   - retryable: exponential backoff, bounded by MaxRetries, then the whole
//     batch degrades to nil slots
//   - fatal: abandon after a single call, whole batch degrades to nil slots
//
// No batch failure aborts the run; the caller decides whether an all-absent
// stretch warrants escalation.
package fetch
