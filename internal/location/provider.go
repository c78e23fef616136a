// Package location supplies device positions to the tracking loop.
package location

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

var (
	// ErrPermissionDenied is fatal to a tracking session.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable skips a single sample.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrTimeout skips a single sample.
	ErrTimeout = errors.New("location request timed out")
)

// Provider returns the current device position on demand.
type Provider interface {
	CurrentPosition(ctx context.Context) (tracking.Position, error)
}

// IsFatal reports whether err must end the session rather than skip a tick.
func IsFatal(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return err
	}
	return nil
}

// FixedProvider always reports the same coordinates.
type FixedProvider struct {
	Latitude       float64
	Longitude      float64
	AccuracyMeters float64
	Clock          clock.Clock
}

func NewFixedProvider(lat, lng float64, clk clock.Clock) *FixedProvider {
	if clk == nil {
		clk = clock.Real{}
	}
	return &FixedProvider{Latitude: lat, Longitude: lng, AccuracyMeters: 10, Clock: clk}
}

func (p *FixedProvider) CurrentPosition(ctx context.Context) (tracking.Position, error) {
	if err := checkContext(ctx); err != nil {
		return tracking.Position{}, err
	}
	return tracking.Position{
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		AccuracyMeters: p.AccuracyMeters,
		CapturedAt:     p.Clock.Now(),
		Source:         tracking.SourceGPS,
	}, nil
}

// Step is one scripted provider response: either a position or an error.
type Step struct {
	Position tracking.Position
	Err      error
}

// ScriptedProvider replays a fixed sequence of steps. Once the script is
// exhausted it keeps returning the final step.
type ScriptedProvider struct {
	mu    sync.Mutex
	steps []Step
	next  int
	clock clock.Clock
}

func NewScriptedProvider(steps []Step, clk clock.Clock) *ScriptedProvider {
	if clk == nil {
		clk = clock.Real{}
	}
	return &ScriptedProvider{steps: steps, clock: clk}
}

func (p *ScriptedProvider) CurrentPosition(ctx context.Context) (tracking.Position, error) {
	if err := checkContext(ctx); err != nil {
		return tracking.Position{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.steps) == 0 {
		return tracking.Position{}, ErrPositionUnavailable
	}
	idx := p.next
	if idx >= len(p.steps) {
		idx = len(p.steps) - 1
	} else {
		p.next++
	}
	step := p.steps[idx]
	if step.Err != nil {
		return tracking.Position{}, step.Err
	}
	pos := step.Position
	if pos.CapturedAt.IsZero() {
		pos.CapturedAt = p.clock.Now()
	}
	if pos.Source == "" {
		pos.Source = tracking.SourceGPS
	}
	return pos, nil
}

// Calls returns how many script steps have been consumed.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}
