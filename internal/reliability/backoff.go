package reliability

import "time"

// IsRetryableHTTPStatus classifies status codes worth replaying later.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// Gate spaces out replay attempts after consecutive rounds that delivered
// nothing. A zero Base disables it. Not safe for concurrent use.
type Gate struct {
	Base time.Duration
	Cap  time.Duration

	failures int
	next     time.Time
}

// Ready reports whether a replay round may run at now.
func (g *Gate) Ready(now time.Time) bool {
	return !now.Before(g.next)
}

// Record notes the outcome of a round. Any progress resets the backoff.
func (g *Gate) Record(now time.Time, progressed bool) {
	if progressed {
		g.failures = 0
		g.next = time.Time{}
		return
	}
	if g.Base <= 0 {
		return
	}
	capDur := g.Cap
	if capDur < g.Base {
		capDur = g.Base
	}
	g.next = now.Add(ExponentialBackoff(g.failures, g.Base, capDur))
	g.failures++
}

// Failures returns how many consecutive rounds delivered nothing.
func (g *Gate) Failures() int { return g.failures }
