// Package prediction talks to the remote merchant category prediction
// service and keeps telemetry flowing through connectivity loss.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/mcctrack/internal/tracking"
)

var (
	// ErrNetwork marks transport failures and retryable upstream statuses.
	ErrNetwork = errors.New("prediction network error")
	// ErrService marks requests the service rejected or answered badly.
	ErrService = errors.New("prediction service error")
)

// Prediction is the service's best guess for a position.
type Prediction struct {
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// Telemetry is one position push for a session.
type Telemetry struct {
	SessionID  string                     `json:"session_id"`
	UserID     string                     `json:"user_id"`
	Position   tracking.Position          `json:"position"`
	Prediction *tracking.PredictionRecord `json:"prediction,omitempty"`
	Timestamp  time.Time                  `json:"timestamp"`
}

// Service is the remote prediction boundary.
type Service interface {
	Predict(ctx context.Context, lat, lng, radiusMeters float64, enhancePrecision bool) (Prediction, error)
	PushUpdate(ctx context.Context, t Telemetry) error
}

// Config controls service construction.
type Config struct {
	Mode         string
	HTTPURL      string
	Timeout      time.Duration
	FallbackMock bool
}

func NewService(cfg Config) (Service, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return NewMockService(), nil
		}
		return withFallback(NewHTTPService(cfg.HTTPURL, cfg.Timeout), cfg), nil
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("prediction HTTP url is required for http mode")
		}
		return withFallback(NewHTTPService(cfg.HTTPURL, cfg.Timeout), cfg), nil
	case "mock":
		return NewMockService(), nil
	default:
		return nil, fmt.Errorf("unsupported prediction mode %q", cfg.Mode)
	}
}

func withFallback(primary Service, cfg Config) Service {
	if !cfg.FallbackMock {
		return primary
	}
	return NewFallbackService(primary, NewMockService())
}

// Kind returns a short label for err suitable for metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrService):
		return "service"
	default:
		return "unknown"
	}
}
