package reliability

import (
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{404, false},
		{408, true},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(2, base, capDur); got != 400*time.Millisecond {
		t.Fatalf("attempt 2 = %v, want %v", got, 400*time.Millisecond)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

func TestGateBacksOffUntilProgress(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	g := Gate{Base: 5 * time.Second, Cap: 12 * time.Second}
	if !g.Ready(start) {
		t.Fatalf("fresh gate is not ready")
	}

	g.Record(start, false)
	if g.Ready(start.Add(4 * time.Second)) {
		t.Fatalf("gate ready before first backoff elapsed")
	}
	if !g.Ready(start.Add(5 * time.Second)) {
		t.Fatalf("gate not ready once first backoff elapsed")
	}

	g.Record(start, false)
	g.Record(start, false)
	if g.Ready(start.Add(11 * time.Second)) {
		t.Fatalf("gate ready before capped backoff elapsed")
	}
	if !g.Ready(start.Add(12 * time.Second)) {
		t.Fatalf("backoff exceeded cap")
	}
	if g.Failures() != 3 {
		t.Fatalf("Failures() = %d, want 3", g.Failures())
	}

	g.Record(start, true)
	if !g.Ready(start) || g.Failures() != 0 {
		t.Fatalf("progress did not reset the gate")
	}
}

func TestZeroGateNeverWaits(t *testing.T) {
	var g Gate
	now := time.Now()
	g.Record(now, false)
	if !g.Ready(now) {
		t.Fatalf("zero gate blocked a round")
	}
}
