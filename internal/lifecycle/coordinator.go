// Package lifecycle maps app foreground/background transitions onto the
// sampling loop without ever arming it twice.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/ent0n29/mcctrack/internal/observability"
)

type State string

const (
	StateForeground State = "foreground"
	StateBackground State = "background"
)

var ErrUnknownState = errors.New("unknown lifecycle state")

// ParseState accepts the state names case-insensitively, plus the common
// "active" and "inactive" aliases.
func ParseState(raw string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "foreground", "active":
		return StateForeground, nil
	case "background", "inactive":
		return StateBackground, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownState, raw)
	}
}

// Scheduler is the sampling loop as seen by the coordinator. Arm and Disarm
// must be idempotent and report whether they changed anything. A scheduler
// told it is backgrounded must refuse to arm a foreground-only session, even
// when the arming comes from elsewhere.
type Scheduler interface {
	Arm() bool
	Disarm() bool
	TrackInBackground() bool
	SetBackgrounded(background bool)
}

// Source emits lifecycle transitions.
type Source interface {
	Events() <-chan State
}

// Coordinator starts in the foreground.
type Coordinator struct {
	mu        sync.Mutex
	scheduler Scheduler
	state     State
}

func NewCoordinator(s Scheduler) *Coordinator {
	return &Coordinator{scheduler: s, state: StateForeground}
}

// State returns the last applied lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) OnForeground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateForeground {
		return
	}
	c.state = StateForeground
	c.scheduler.SetBackgrounded(false)
	if c.scheduler.Arm() {
		observability.Logf("lifecycle: foreground, sampling resumed")
	}
}

func (c *Coordinator) OnBackground() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateBackground {
		return
	}
	c.state = StateBackground
	c.scheduler.SetBackgrounded(true)
	if c.scheduler.TrackInBackground() {
		// Same timer keeps running; Arm only covers a loop that was never armed.
		c.scheduler.Arm()
		return
	}
	if c.scheduler.Disarm() {
		observability.Logf("lifecycle: background, sampling paused")
	}
}

// Apply dispatches s to OnForeground or OnBackground.
func (c *Coordinator) Apply(s State) error {
	switch s {
	case StateForeground:
		c.OnForeground()
	case StateBackground:
		c.OnBackground()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownState, s)
	}
	return nil
}

// Run applies transitions from src until ctx is done or src closes.
func (c *Coordinator) Run(ctx context.Context, src Source) {
	events := src.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-events:
			if !ok {
				return
			}
			if err := c.Apply(s); err != nil {
				observability.Logf("lifecycle: %v", err)
			}
		}
	}
}
