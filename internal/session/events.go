package session

import (
	"time"

	"github.com/ent0n29/mcctrack/internal/tracking"
)

type EventType string

const (
	EventStarted          EventType = "started"
	EventRestored         EventType = "restored"
	EventPositionAccepted EventType = "position_accepted"
	EventPositionRejected EventType = "position_rejected"
	EventPrediction       EventType = "prediction"
	EventError            EventType = "error"
	EventExtended         EventType = "extended"
	EventExpired          EventType = "expired"
	EventStopped          EventType = "stopped"
)

// Event is delivered to subscribers as the session changes.
type Event struct {
	Type       EventType                  `json:"type"`
	SessionID  string                     `json:"session_id,omitempty"`
	Position   *tracking.Position         `json:"position,omitempty"`
	Prediction *tracking.PredictionRecord `json:"prediction,omitempty"`
	ExpiresAt  *time.Time                 `json:"expires_at,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Fatal      bool                       `json:"fatal,omitempty"`
	At         time.Time                  `json:"at"`
}

const subscriberBuffer = 64

// Subscribe returns a channel of session events and its unsubscribe func.
// Slow subscribers miss events rather than stall the sampling loop.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	m.subMu.Lock()
	m.nextSubID++
	id := m.nextSubID
	m.subscribers[id] = ch
	m.subMu.Unlock()

	return ch, func() {
		m.subMu.Lock()
		defer m.subMu.Unlock()
		if c, ok := m.subscribers[id]; ok {
			delete(m.subscribers, id)
			close(c)
		}
	}
}

func (m *Manager) publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = m.clock.Now()
	}
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- evt:
		default:
		}
	}
}

// SubscriberCount returns how many event subscribers are attached.
func (m *Manager) SubscriberCount() int {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	return len(m.subscribers)
}
