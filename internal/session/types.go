package session

import (
	"errors"
	"time"

	"github.com/ent0n29/mcctrack/internal/tracking"
)

var (
	ErrNoActiveSession = errors.New("no active tracking session")
	ErrSessionActive   = errors.New("tracking session already active")
	ErrUserRequired    = errors.New("user id is required")
)

// SnapshotKey is the persistence key of the current session snapshot.
const SnapshotKey = "background_tracking_session"

// Status is a point-in-time view of the manager for callers and health checks.
type Status struct {
	IsTracking       bool       `json:"is_tracking"`
	HasActiveSession bool       `json:"has_active_session"`
	SessionID        string     `json:"session_id,omitempty"`
	HistoryCount     int        `json:"history_count"`
	LastUpdatedAt    *time.Time `json:"last_updated_at,omitempty"`
}

// StartRequest defines payload for starting a tracking session. Config
// fields left out of the payload keep the value Config held before decoding.
type StartRequest struct {
	UserID string          `json:"user_id"`
	Config tracking.Config `json:"config"`
}

// ExtendRequest defines payload for replacing a session's expiry.
type ExtendRequest struct {
	Minutes int `json:"minutes"`
}

// SessionResponse returns session metadata without the history.
type SessionResponse struct {
	SessionID     string          `json:"session_id"`
	UserID        string          `json:"user_id"`
	IsActive      bool            `json:"is_active"`
	StartedAt     time.Time       `json:"started_at"`
	LastUpdatedAt time.Time       `json:"last_updated_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
	HistoryCount  int             `json:"history_count"`
	Config        tracking.Config `json:"config"`
}

// NewSessionResponse summarises s.
func NewSessionResponse(s *tracking.Session) SessionResponse {
	return SessionResponse{
		SessionID:     s.ID,
		UserID:        s.UserID,
		IsActive:      s.IsActive,
		StartedAt:     s.StartedAt,
		LastUpdatedAt: s.LastUpdatedAt,
		ExpiresAt:     s.ExpiresAt,
		HistoryCount:  len(s.History),
		Config:        s.Config,
	}
}
