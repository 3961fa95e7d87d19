// Package testutil provides testing utilities for the history enricher.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockSpotifyResponse defines the behavior for a mock Spotify endpoint response.
type MockSpotifyResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockSpotify is a configurable mock Spotify API server for testing.
type MockSpotify struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount      int
	RequestedIDs      [][]string
	LastRequestHeader http.Header
}

// NewMockSpotify creates a new mock Spotify API server.
func NewMockSpotify() *MockSpotify {
	mock := &MockSpotify{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestHeader = r.Header.Clone()
		if ids := r.URL.Query().Get("ids"); ids != "" {
			mock.RequestedIDs = append(mock.RequestedIDs, strings.Split(ids, ","))
		}
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockSpotify) URL() string {
	return m.server.URL
}

// Client returns an HTTP client configured for the mock server.
func (m *MockSpotify) Client() *http.Client {
	return m.server.Client()
}

// Close shuts down the mock server.
func (m *MockSpotify) Close() {
	m.server.Close()
}

// Reset clears all tracking state.
func (m *MockSpotify) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.RequestedIDs = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockSpotify) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockSpotify) SetResponse(path string, resp MockSpotifyResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetAudioFeaturesHandler configures the audio-features endpoint to echo
// back one well-formed record per requested ID.
func (m *MockSpotify) SetAudioFeaturesHandler() {
	m.SetHandler("/audio-features", func(w http.ResponseWriter, r *http.Request) {
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(AudioFeaturesBody(ids...)))
	})
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockSpotify) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequestedIDs returns the ids parameter of each request, in order.
func (m *MockSpotify) GetRequestedIDs() [][]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestedIDs
}

// defaultHandler returns an empty successful envelope.
func (m *MockSpotify) defaultHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"audio_features": []}`))
}

// AudioFeaturesBody builds an audio-features envelope with one record per
// ID. An empty ID produces a null entry, matching unknown tracks.
func AudioFeaturesBody(ids ...string) string {
	records := make([]string, len(ids))
	for i, id := range ids {
		if id == "" {
			records[i] = "null"
			continue
		}
		records[i] = fmt.Sprintf(
			`{"id":%q,"uri":"spotify:track:%s","danceability":0.6,"energy":0.8,"key":5,"loudness":-7.2,"mode":1,"speechiness":0.04,"acousticness":0.1,"instrumentalness":0.0,"liveness":0.12,"valence":0.5,"tempo":118.0,"duration_ms":201000,"time_signature":4}`,
			id, id)
	}
	return `{"audio_features":[` + strings.Join(records, ",") + `]}`
}

// NewAudioFeaturesResponse creates a 200 OK audio-features response.
func NewAudioFeaturesResponse(ids ...string) MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: http.StatusOK,
		Body:       AudioFeaturesBody(ids...),
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response with a
// Retry-After header.
func NewRateLimitResponse(retryAfter time.Duration) MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"error": {"status": 429, "message": "API rate limit exceeded"}}`,
		Headers: map[string]string{
			"Retry-After":  strconv.Itoa(int(retryAfter / time.Second)),
			"Content-Type": "application/json",
		},
	}
}

// NewForbiddenResponse creates a 403 Forbidden response.
func NewForbiddenResponse() MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: http.StatusForbidden,
		Body:       `{"error": {"status": 403, "message": "Forbidden"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockSpotifyResponse {
	return MockSpotifyResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error": {"status": 500, "message": "Internal server error"}}`,
		Headers: map[string]string{
			"Content-Type": "application/json",
		},
	}
}

// NewFlakyHandler fails the first n requests with 500 and succeeds after.
func NewFlakyHandler(n int) func(w http.ResponseWriter, r *http.Request) {
	var mu sync.Mutex
	var calls int
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		failing := calls <= n
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"error": {"status": 500, "message": "Internal server error"}}`))
			return
		}
		ids := strings.Split(r.URL.Query().Get("ids"), ",")
		w.Write([]byte(AudioFeaturesBody(ids...)))
	}
}
