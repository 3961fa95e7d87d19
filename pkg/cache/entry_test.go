package cache

import (
	"testing"
	"time"
)

func TestNewEntry(t *testing.T) {
	entry := NewEntry([]byte(`{"id":"abc"}`), time.Hour)

	if string(entry.Data) != `{"id":"abc"}` {
		t.Errorf("Data = %s, want record JSON", entry.Data)
	}
	if entry.IsExpired() {
		t.Error("Fresh entry should not be expired")
	}

	ttl := entry.TTL()
	if ttl <= 59*time.Minute || ttl > time.Hour {
		t.Errorf("TTL = %v, want close to 1h", ttl)
	}
}

func TestEntry_IsExpired(t *testing.T) {
	tests := []struct {
		name    string
		expires time.Time
		want    bool
	}{
		{name: "future expiry", expires: time.Now().Add(time.Minute), want: false},
		{name: "past expiry", expires: time.Now().Add(-time.Minute), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := &Entry{Expires: tt.expires}
			if got := entry.IsExpired(); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEntry_TTLExpired(t *testing.T) {
	entry := &Entry{Expires: time.Now().Add(-time.Minute)}
	if ttl := entry.TTL(); ttl != 0 {
		t.Errorf("TTL() = %v, want 0 for expired entry", ttl)
	}
}
