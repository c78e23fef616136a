// Package tracking holds the background tracking data model: per-session
// configuration, sampled positions, predictions and the bounded session
// history, plus the displacement filter that admits new samples.
package tracking

import (
	"time"

	"github.com/ent0n29/mcctrack/internal/geo"
)

// Source identifies which positioning subsystem produced a sample.
type Source string

const (
	SourceGPS     Source = "gps"
	SourceNetwork Source = "network"
	SourcePassive Source = "passive"
)

// Position is a single device location sample.
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_meters"`
	Altitude       *float64  `json:"altitude,omitempty"`
	SpeedMps       *float64  `json:"speed_mps,omitempty"`
	HeadingDegrees *float64  `json:"heading_degrees,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
	Source         Source    `json:"source"`
}

// DistanceTo returns the great-circle distance in metres to o.
func (p Position) DistanceTo(o Position) float64 {
	return geo.HaversineMeters(p.Latitude, p.Longitude, o.Latitude, o.Longitude)
}

// PredictionRecord is a merchant category guess for a position.
type PredictionRecord struct {
	Category    string    `json:"category"`
	Confidence  float64   `json:"confidence"`
	Method      string    `json:"method"`
	PredictedAt time.Time `json:"predicted_at"`
}

// HistoryEntry is one accepted sample in a session history.
type HistoryEntry struct {
	Position       Position          `json:"position"`
	Prediction     *PredictionRecord `json:"prediction,omitempty"`
	RecordedAt     time.Time         `json:"recorded_at"`
	AccuracyMeters float64           `json:"accuracy_meters"`
}

// Session is a background tracking session. History is ordered oldest first.
type Session struct {
	ID            string         `json:"session_id"`
	UserID        string         `json:"user_id"`
	StartedAt     time.Time      `json:"started_at"`
	LastUpdatedAt time.Time      `json:"last_updated_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
	IsActive      bool           `json:"is_active"`
	History       []HistoryEntry `json:"history"`
	Config        Config         `json:"config"`
}

// ActiveAt reports whether the session is still running at now. A session
// is considered active through the exact instant of ExpiresAt.
func (s *Session) ActiveAt(now time.Time) bool {
	return s != nil && s.IsActive && !now.After(s.ExpiresAt)
}

// LastEntry returns the most recent history entry or nil.
func (s *Session) LastEntry() *HistoryEntry {
	if s == nil || len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// Append adds e to the history and drops the oldest entries so that at most
// max entries remain. It returns the number of entries dropped.
func (s *Session) Append(e HistoryEntry, max int) int {
	s.History = append(s.History, e)
	if max <= 0 || len(s.History) <= max {
		return 0
	}
	dropped := len(s.History) - max
	kept := make([]HistoryEntry, max)
	copy(kept, s.History[dropped:])
	s.History = kept
	return dropped
}

// Clone returns a copy that shares no mutable state with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.History = make([]HistoryEntry, len(s.History))
	for i, e := range s.History {
		if e.Prediction != nil {
			p := *e.Prediction
			e.Prediction = &p
		}
		c.History[i] = e
	}
	return &c
}
