package consensus

import (
	"math"
	"testing"
	"time"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/geo"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

var (
	now    = time.Date(2026, 7, 4, 13, 0, 0, 0, time.UTC)
	origin = tracking.Position{Latitude: 40.7411, Longitude: -73.9897, Source: tracking.SourceGPS}
)

func entry(category string, confidence, distanceM float64, age time.Duration) tracking.HistoryEntry {
	lat, lng := geo.OffsetMeters(origin.Latitude, origin.Longitude, distanceM, 0)
	return tracking.HistoryEntry{
		Position: tracking.Position{Latitude: lat, Longitude: lng},
		Prediction: &tracking.PredictionRecord{
			Category:    category,
			Confidence:  confidence,
			Method:      "terminal_match",
			PredictedAt: now.Add(-age),
		},
		RecordedAt: now.Add(-age),
	}
}

func newEngine() *Engine {
	return NewEngine(clock.NewFake(now))
}

func TestBestCategoryCorroborationBeatsSingleStrongVote(t *testing.T) {
	s := &tracking.Session{History: []tracking.HistoryEntry{
		entry("5411", 0.95, 95, 290*time.Second),
		entry("5812", 0.90, 5, 10*time.Second),
		entry("5812", 0.85, 8, 30*time.Second),
	}}

	got, ok := newEngine().BestCategory(s, origin)
	if !ok {
		t.Fatalf("BestCategory() ok = false, want true")
	}
	if got.Category != "5812" {
		t.Fatalf("Category = %q, want %q", got.Category, "5812")
	}
	if got.Method != Method {
		t.Fatalf("Method = %q, want %q", got.Method, Method)
	}
	// 5812 scores (0.9*0.9667*0.95 + 0.85*0.9*0.92) * ln 3 ≈ 1.68, capped.
	if got.Confidence != MaxConfidence {
		t.Fatalf("Confidence = %v, want cap %v", got.Confidence, MaxConfidence)
	}
}

func TestBestCategoryExactScore(t *testing.T) {
	s := &tracking.Session{History: []tracking.HistoryEntry{
		entry("5812", 0.8, 50, 150*time.Second),
	}}
	got, ok := newEngine().BestCategory(s, origin)
	if !ok {
		t.Fatalf("BestCategory() ok = false, want true")
	}
	want := 0.8 * 0.5 * 0.5 * math.Log(2)
	if math.Abs(got.Confidence-want) > 1e-3 {
		t.Fatalf("Confidence = %v, want %v", got.Confidence, want)
	}
}

func TestBestCategoryWeightFloors(t *testing.T) {
	s := &tracking.Session{History: []tracking.HistoryEntry{
		entry("5999", 1.0, 99.5, 299*time.Second),
	}}
	votes := newEngine().Votes(s, origin)
	if len(votes) != 1 {
		t.Fatalf("len(Votes) = %d, want 1", len(votes))
	}
	if math.Abs(votes[0].Weight-0.01) > 1e-9 {
		t.Fatalf("Weight = %v, want floored 0.1*0.1", votes[0].Weight)
	}
}

func TestBestCategoryNone(t *testing.T) {
	cases := map[string]*tracking.Session{
		"nil session":   nil,
		"empty history": {},
		"too old": {History: []tracking.HistoryEntry{
			entry("5812", 0.9, 5, 5*time.Minute+time.Second),
		}},
		"too far": {History: []tracking.HistoryEntry{
			entry("5812", 0.9, 101, time.Second),
		}},
		"no predictions": {History: []tracking.HistoryEntry{
			{Position: origin, RecordedAt: now},
		}},
		"zero confidence": {History: []tracking.HistoryEntry{
			entry("5812", 0, 5, time.Second),
		}},
	}
	for name, s := range cases {
		if got, ok := newEngine().BestCategory(s, origin); ok {
			t.Fatalf("%s: BestCategory() = %+v, want none", name, got)
		}
	}
}

func TestBestCategoryTieKeepsFirstSeen(t *testing.T) {
	s := &tracking.Session{History: []tracking.HistoryEntry{
		entry("5541", 0.6, 0, 0),
		entry("5814", 0.6, 0, 0),
	}}
	got, ok := newEngine().BestCategory(s, origin)
	if !ok || got.Category != "5541" {
		t.Fatalf("BestCategory() = %+v, %v, want 5541", got, ok)
	}
}

func TestVotesBoundaryIsInclusive(t *testing.T) {
	s := &tracking.Session{History: []tracking.HistoryEntry{
		entry("5812", 0.9, 10, Window),
	}}
	if votes := newEngine().Votes(s, origin); len(votes) != 1 {
		t.Fatalf("prediction exactly %v old: len(Votes) = %d, want 1", Window, len(votes))
	}
}
