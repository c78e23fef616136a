package clock

import (
	"testing"
	"time"
)

func TestFakeTimerFiresOnAdvance(t *testing.T) {
	c := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	timer := c.NewTimer(10 * time.Second)

	c.Advance(9 * time.Second)
	select {
	case <-timer.C():
		t.Fatalf("timer fired before deadline")
	default:
	}

	c.Advance(time.Second)
	select {
	case <-timer.C():
	default:
		t.Fatalf("timer did not fire at deadline")
	}
	if c.PendingTimers() != 0 {
		t.Fatalf("PendingTimers() = %d, want 0", c.PendingTimers())
	}
}

func TestFakeTimerResetAndStop(t *testing.T) {
	c := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	timer := c.NewTimer(time.Second)
	c.Advance(time.Second)
	<-timer.C()

	if timer.Reset(5 * time.Second) {
		t.Fatalf("Reset() on fired timer = true, want false")
	}
	if c.PendingTimers() != 1 {
		t.Fatalf("PendingTimers() = %d, want 1", c.PendingTimers())
	}
	if !timer.Stop() {
		t.Fatalf("Stop() on armed timer = false, want true")
	}
	c.Advance(time.Minute)
	select {
	case <-timer.C():
		t.Fatalf("stopped timer fired")
	default:
	}
}
