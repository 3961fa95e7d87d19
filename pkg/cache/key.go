package cache

import "strings"

// keyPrefix namespaces all enricher entries in Redis.
const keyPrefix = "enricher"

// Key identifies one cached metadata record.
type Key struct {
	// Kind is the metadata namespace (e.g. "features").
	Kind string

	// ID is the remote item identifier.
	ID string
}

// FeaturesKey returns the cache key for a track's audio features.
func FeaturesKey(trackID string) Key {
	return Key{Kind: "features", ID: trackID}
}

// String generates a deterministic cache key string.
// Format: enricher:<kind>:<id>
func (k Key) String() string {
	return strings.Join([]string{keyPrefix, k.Kind, k.ID}, ":")
}
