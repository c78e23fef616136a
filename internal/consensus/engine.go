// Package consensus picks the most likely merchant category for a location by
// weighted voting over a session's recent, nearby predictions.
package consensus

import (
	"math"
	"time"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/geo"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

const (
	// Window is the maximum prediction age that still votes.
	Window = 300_000 * time.Millisecond
	// RadiusMeters is the maximum distance from the query point that still votes.
	RadiusMeters = 100.0
	// MinWeight floors both decay factors.
	MinWeight = 0.1
	// MaxConfidence caps the reported confidence.
	MaxConfidence = 0.95
	// Method tags every consensus result.
	Method = "background_session_consensus"
)

// Result is the winning category.
type Result struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Vote is one history entry's contribution, exposed for diagnostics.
type Vote struct {
	Category       string  `json:"category"`
	AgeMS          float64 `json:"age_ms"`
	DistanceMeters float64 `json:"distance_meters"`
	Weight         float64 `json:"weight"`
}

type tally struct {
	score float64
	count int
}

// Engine evaluates consensus at the clock's current time.
type Engine struct {
	clock clock.Clock
}

func NewEngine(clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Engine{clock: clk}
}

// BestCategory returns the consensus category for current, or false when no
// recent nearby prediction supports any category.
func (e *Engine) BestCategory(s *tracking.Session, current tracking.Position) (Result, bool) {
	votes := e.Votes(s, current)
	if len(votes) == 0 {
		return Result{}, false
	}

	tallies := make(map[string]*tally)
	var order []string
	for _, v := range votes {
		t, ok := tallies[v.Category]
		if !ok {
			t = &tally{}
			tallies[v.Category] = t
			order = append(order, v.Category)
		}
		t.score += v.Weight
		t.count++
	}

	best := ""
	bestScore := 0.0
	for _, category := range order {
		t := tallies[category]
		final := t.score * math.Log(float64(t.count+1))
		if final > bestScore {
			best = category
			bestScore = final
		}
	}
	if best == "" {
		return Result{}, false
	}
	return Result{
		Category:   best,
		Confidence: math.Min(MaxConfidence, bestScore),
		Method:     Method,
	}, true
}

// Votes returns the weighted votes of every history entry that carries a
// prediction within Window and RadiusMeters of current, in history order.
func (e *Engine) Votes(s *tracking.Session, current tracking.Position) []Vote {
	if s == nil || len(s.History) == 0 {
		return nil
	}
	now := e.clock.Now()
	windowMS := float64(Window.Milliseconds())

	var votes []Vote
	for _, entry := range s.History {
		p := entry.Prediction
		if p == nil {
			continue
		}
		ageMS := float64(now.Sub(p.PredictedAt).Milliseconds())
		if ageMS > windowMS {
			continue
		}
		if ageMS < 0 {
			ageMS = 0
		}
		dist := entry.Position.DistanceTo(current)
		if dist > RadiusMeters {
			continue
		}
		timeWeight := geo.LinearDecay(ageMS, windowMS, MinWeight)
		distanceWeight := geo.LinearDecay(dist, RadiusMeters, MinWeight)
		votes = append(votes, Vote{
			Category:       p.Category,
			AgeMS:          ageMS,
			DistanceMeters: dist,
			Weight:         p.Confidence * timeWeight * distanceWeight,
		})
	}
	return votes
}
