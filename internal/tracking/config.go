package tracking

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a session configuration is rejected.
var ErrInvalidConfig = errors.New("invalid tracking config")

// Upper bounds keep duration arithmetic far from overflow.
const (
	MaxUpdateInterval  = 24 * time.Hour
	MaxSessionDuration = 7 * 24 * time.Hour
	MaxHistoryLimit    = 100000
)

// Config is fixed for the lifetime of a session.
type Config struct {
	UpdateInterval        time.Duration
	MinDistanceMeters     float64
	MaxHistorySize        int
	SessionDuration       time.Duration
	TrackWhenBackgrounded bool
}

// DefaultConfig returns the settings used when a caller supplies none.
func DefaultConfig() Config {
	return Config{
		UpdateInterval:        30 * time.Second,
		MinDistanceMeters:     10,
		MaxHistorySize:        50,
		SessionDuration:       60 * time.Minute,
		TrackWhenBackgrounded: true,
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c Config) Validate() error {
	switch {
	case c.UpdateInterval <= 0:
		return fmt.Errorf("%w: update interval must be positive", ErrInvalidConfig)
	case c.UpdateInterval > MaxUpdateInterval:
		return fmt.Errorf("%w: update interval must be <= %s", ErrInvalidConfig, MaxUpdateInterval)
	case c.MinDistanceMeters < 0:
		return fmt.Errorf("%w: min distance must be >= 0", ErrInvalidConfig)
	case c.MaxHistorySize <= 0:
		return fmt.Errorf("%w: max history size must be positive", ErrInvalidConfig)
	case c.MaxHistorySize > MaxHistoryLimit:
		return fmt.Errorf("%w: max history size must be <= %d", ErrInvalidConfig, MaxHistoryLimit)
	case c.SessionDuration <= 0:
		return fmt.Errorf("%w: session duration must be positive", ErrInvalidConfig)
	case c.SessionDuration > MaxSessionDuration:
		return fmt.Errorf("%w: session duration must be <= %s", ErrInvalidConfig, MaxSessionDuration)
	}
	return nil
}

// RetryCapacity is the bound applied to the offline telemetry queue.
func (c Config) RetryCapacity() int {
	return c.MaxHistorySize * 4
}

type configJSON struct {
	UpdateIntervalMS        int64   `json:"update_interval_ms"`
	MinDistanceFilterMeters float64 `json:"min_distance_filter_meters"`
	MaxHistorySize          int     `json:"max_history_size"`
	SessionDurationMinutes  float64 `json:"session_duration_minutes"`
	TrackWhenBackgrounded   bool    `json:"track_when_backgrounded"`
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(configJSON{
		UpdateIntervalMS:        c.UpdateInterval.Milliseconds(),
		MinDistanceFilterMeters: c.MinDistanceMeters,
		MaxHistorySize:          c.MaxHistorySize,
		SessionDurationMinutes:  c.SessionDuration.Minutes(),
		TrackWhenBackgrounded:   c.TrackWhenBackgrounded,
	})
}

// UnmarshalJSON overlays the fields present in data onto c, so callers can
// decode a partial config onto defaults.
func (c *Config) UnmarshalJSON(data []byte) error {
	raw := configJSON{
		UpdateIntervalMS:        c.UpdateInterval.Milliseconds(),
		MinDistanceFilterMeters: c.MinDistanceMeters,
		MaxHistorySize:          c.MaxHistorySize,
		SessionDurationMinutes:  c.SessionDuration.Minutes(),
		TrackWhenBackgrounded:   c.TrackWhenBackgrounded,
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	// Out-of-range values would wrap during conversion and could pass Validate.
	if raw.UpdateIntervalMS < 0 || raw.UpdateIntervalMS > MaxUpdateInterval.Milliseconds() {
		return fmt.Errorf("%w: update_interval_ms must be within [0, %d]", ErrInvalidConfig, MaxUpdateInterval.Milliseconds())
	}
	if raw.SessionDurationMinutes < 0 || raw.SessionDurationMinutes > MaxSessionDuration.Minutes() {
		return fmt.Errorf("%w: session_duration_minutes must be within [0, %g]", ErrInvalidConfig, MaxSessionDuration.Minutes())
	}
	c.UpdateInterval = time.Duration(raw.UpdateIntervalMS) * time.Millisecond
	c.MinDistanceMeters = raw.MinDistanceFilterMeters
	c.MaxHistorySize = raw.MaxHistorySize
	c.SessionDuration = time.Duration(raw.SessionDurationMinutes * float64(time.Minute))
	c.TrackWhenBackgrounded = raw.TrackWhenBackgrounded
	return nil
}
