package ratelimit

import (
	"testing"
	"time"
)

func TestState_Blocked(t *testing.T) {
	tests := []struct {
		name       string
		retryUntil time.Time
		want       bool
	}{
		{name: "future deadline blocks", retryUntil: time.Now().Add(time.Minute), want: true},
		{name: "past deadline does not block", retryUntil: time.Now().Add(-time.Minute), want: false},
		{name: "zero deadline does not block", retryUntil: time.Time{}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &State{RetryUntil: tt.retryUntil}
			if got := s.Blocked(); got != tt.want {
				t.Errorf("Blocked() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestState_WaitDuration(t *testing.T) {
	s := &State{RetryUntil: time.Now().Add(30 * time.Second)}

	wait := s.WaitDuration()
	if wait <= 29*time.Second || wait > 30*time.Second {
		t.Errorf("WaitDuration() = %v, want approximately 30s", wait)
	}
}

func TestState_WaitDurationExpired(t *testing.T) {
	s := &State{RetryUntil: time.Now().Add(-time.Minute)}
	if wait := s.WaitDuration(); wait != 0 {
		t.Errorf("WaitDuration() = %v, want 0", wait)
	}
}

func TestState_IsStale(t *testing.T) {
	fresh := &State{LastUpdate: time.Now()}
	if fresh.IsStale(time.Minute) {
		t.Error("Fresh state should not be stale")
	}

	old := &State{LastUpdate: time.Now().Add(-time.Hour)}
	if !old.IsStale(time.Minute) {
		t.Error("Hour-old state should be stale")
	}
}
