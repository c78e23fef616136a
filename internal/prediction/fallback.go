package prediction

import (
	"context"
	"errors"
	"fmt"
)

// FallbackService predicts with the primary service first and asks the
// fallback when it fails. Telemetry only ever goes to the primary.
type FallbackService struct {
	primary  Service
	fallback Service
}

func NewFallbackService(primary, fallback Service) *FallbackService {
	return &FallbackService{primary: primary, fallback: fallback}
}

func (s *FallbackService) Predict(ctx context.Context, lat, lng, radiusMeters float64, enhancePrecision bool) (Prediction, error) {
	if s.primary == nil {
		if s.fallback != nil {
			return s.fallback.Predict(ctx, lat, lng, radiusMeters, enhancePrecision)
		}
		return Prediction{}, fmt.Errorf("%w: fallback service misconfigured", ErrService)
	}
	p, err := s.primary.Predict(ctx, lat, lng, radiusMeters, enhancePrecision)
	if err == nil {
		return p, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || s.fallback == nil {
		return Prediction{}, err
	}
	fp, fallbackErr := s.fallback.Predict(ctx, lat, lng, radiusMeters, enhancePrecision)
	if fallbackErr != nil {
		return Prediction{}, fmt.Errorf("primary prediction error: %w; fallback prediction error: %v", err, fallbackErr)
	}
	fp.Method = "fallback_" + fp.Method
	return fp, nil
}

func (s *FallbackService) PushUpdate(ctx context.Context, t Telemetry) error {
	if s.primary == nil {
		return fmt.Errorf("%w: no primary service for telemetry", ErrNetwork)
	}
	return s.primary.PushUpdate(ctx, t)
}
