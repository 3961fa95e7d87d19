package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or the entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	data, err := m.redis.Get(ctx, key.String()).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	entry, err := decodeEntry(data)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}
	if entry == nil {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

// GetMulti retrieves cache entries for many keys in one MGET round trip.
// Missing or expired entries are simply absent from the result map; no
// per-key error is reported.
func (m *Manager) GetMulti(ctx context.Context, keys []Key) (map[string]*Entry, error) {
	if len(keys) == 0 {
		return map[string]*Entry{}, nil
	}

	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = k.String()
	}

	values, err := m.redis.MGet(ctx, raw...).Result()
	if err != nil {
		CacheErrors.WithLabelValues("mget").Inc()
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	entries := make(map[string]*Entry, len(keys))
	for i, v := range values {
		if v == nil {
			CacheMisses.Inc()
			continue
		}
		s, ok := v.(string)
		if !ok {
			CacheErrors.WithLabelValues("mget").Inc()
			continue
		}
		entry, err := decodeEntry([]byte(s))
		if err != nil || entry == nil {
			CacheMisses.Inc()
			continue
		}
		CacheHits.Inc()
		entries[keys[i].ID] = entry
	}

	return entries, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// The entry will be automatically removed from Redis when it expires.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.Add(float64(len(data)))
	return nil
}

// SetMulti stores many entries in one pipelined round trip.
func (m *Manager) SetMulti(ctx context.Context, entries map[Key]*Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := m.redis.Pipeline()
	for key, entry := range entries {
		if entry == nil {
			continue
		}
		ttl := entry.TTL()
		if ttl <= 0 {
			continue
		}
		data, err := json.Marshal(entry)
		if err != nil {
			CacheErrors.WithLabelValues("set").Inc()
			return fmt.Errorf("marshal cache entry: %w", err)
		}
		pipe.Set(ctx, key.String(), data, ttl)
		CacheSize.Add(float64(len(data)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis pipeline set: %w", err)
	}
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// decodeEntry unmarshals an entry, returning nil for expired entries.
func decodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if entry.IsExpired() {
		return nil, nil
	}
	return &entry, nil
}
