package provider

import (
	"testing"
	"time"
)

func TestMonitorAccumulation(t *testing.T) {
	m := NewProviderMonitor()

	m.RecordRequest(100 * time.Millisecond)

	stats := m.GetStats()
	if stats.Requests != 1 {
		t.Errorf("Expected 1 request, got %d", stats.Requests)
	}

	for i := 0; i < 100; i++ {
		m.RecordRequest(50 * time.Millisecond)
	}

	stats = m.GetStats()
	if stats.Requests != 101 {
		t.Errorf("Expected 101 requests, got %d", stats.Requests)
	}
	// Latency window keeps only the last 100 samples
	if stats.AverageLatency != 50*time.Millisecond {
		t.Errorf("Expected 50ms average latency, got %v", stats.AverageLatency)
	}
}

func TestMonitorThrottle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewProviderMonitor()
	m.now = func() time.Time { return now }

	m.RecordThrottle(429, "30")
	if got := m.CheckProviderStatus(); got != StatusThrottled {
		t.Fatalf("status = %v, want throttled", got)
	}
	if got := m.GetRetryAfter(); got != 30*time.Second {
		t.Errorf("retry after = %v, want 30s", got)
	}

	now = now.Add(31 * time.Second)
	if got := m.CheckProviderStatus(); got != StatusHealthy {
		t.Errorf("status = %v, want healthy after retry-after elapsed", got)
	}

	m.RecordThrottle(403, "")
	if got := m.CheckProviderStatus(); got != StatusBlocked {
		t.Errorf("status = %v, want blocked", got)
	}
}

func TestMonitorDegradedOnSlowResponses(t *testing.T) {
	m := NewProviderMonitor()
	for i := 0; i < 11; i++ {
		m.RecordRequest(5 * time.Second)
	}
	if got := m.CheckProviderStatus(); got != StatusDegraded {
		t.Errorf("status = %v, want degraded", got)
	}
}

func TestDetectThrottlePattern(t *testing.T) {
	m := NewProviderMonitor()
	tests := []struct {
		msg  string
		want bool
	}{
		{"Rate limit exceeded for this key", true},
		{"Too Many Requests", true},
		{"tx (ABC) not found", false},
	}
	for _, tt := range tests {
		if got := m.DetectThrottlePattern(tt.msg); got != tt.want {
			t.Errorf("DetectThrottlePattern(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}
