package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if candidatesTotal == nil || discoveredTotal == nil || checkpointSkipsTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCandidate(t *testing.T) {
	Init()
	before := testutil.ToFloat64(candidatesTotal.WithLabelValues("failed", "timeout"))
	ObserveCandidate("failed", "timeout")
	ObserveCandidate("failed", "timeout")
	if got := testutil.ToFloat64(candidatesTotal.WithLabelValues("failed", "timeout")); got != before+2 {
		t.Errorf("expected failed/timeout to grow by 2, got %f -> %f", before, got)
	}
}

func TestObserveDiscoveredIgnoresZero(t *testing.T) {
	Init()
	before := testutil.ToFloat64(discoveredTotal.WithLabelValues("category"))
	ObserveDiscovered("category", 0)
	ObserveDiscovered("category", 7)
	if got := testutil.ToFloat64(discoveredTotal.WithLabelValues("category")); got != before+7 {
		t.Errorf("expected discovered to grow by 7, got %f -> %f", before, got)
	}
}

func TestObserveCheckpointSkip(t *testing.T) {
	Init()
	before := testutil.ToFloat64(checkpointSkipsTotal)
	ObserveCheckpointSkip()
	if got := testutil.ToFloat64(checkpointSkipsTotal); got != before+1 {
		t.Errorf("expected skip counter to grow by 1, got %f -> %f", before, got)
	}
}

func TestObserveHistogramsDoNotPanic(t *testing.T) {
	ObserveProfileFetch(1500 * time.Millisecond)
	ObserveStoreWrite("checkpoint", time.Millisecond)
	ObserveRateLimitDelay("www.tiktok.com", 2*time.Second)
	ObserveDiscoveryStop("stagnant")
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
