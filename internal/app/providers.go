package app

import (
	"fmt"
	"strings"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/config"
	"github.com/ent0n29/mcctrack/internal/location"
	"github.com/ent0n29/mcctrack/internal/prediction"
)

type providerSetup struct {
	location       location.Provider
	locationDetail string
	service        prediction.Service
	serviceDetail  string
}

func resolveProviders(cfg config.Config, clk clock.Clock) (providerSetup, error) {
	var setup providerSetup

	switch mode := strings.ToLower(strings.TrimSpace(cfg.LocationMode)); mode {
	case "", "fixed":
		setup.location = location.NewFixedProvider(cfg.LocationFixedLat, cfg.LocationFixedLng, clk)
		setup.locationDetail = fmt.Sprintf("fixed (%.5f, %.5f)", cfg.LocationFixedLat, cfg.LocationFixedLng)
	case "scripted":
		p, err := location.LoadScript(cfg.LocationScriptPath, clk)
		if err != nil {
			return providerSetup{}, fmt.Errorf("location script init failed: %w", err)
		}
		setup.location = p
		setup.locationDetail = "scripted (" + cfg.LocationScriptPath + ")"
	default:
		return providerSetup{}, fmt.Errorf("invalid LOCATION_MODE: %q (expected fixed|scripted)", cfg.LocationMode)
	}

	svc, err := prediction.NewService(prediction.Config{
		Mode:         cfg.PredictionMode,
		HTTPURL:      cfg.PredictionHTTPURL,
		Timeout:      cfg.PredictionTimeout,
		FallbackMock: cfg.PredictionFallbackMock,
	})
	if err != nil {
		return providerSetup{}, fmt.Errorf("prediction service init failed: %w", err)
	}
	setup.service = svc
	switch s := svc.(type) {
	case *prediction.MockService:
		setup.serviceDetail = "mock"
	case *prediction.FallbackService:
		setup.serviceDetail = "http with mock fallback (" + cfg.PredictionHTTPURL + ")"
	case *prediction.HTTPService:
		setup.serviceDetail = "http (" + cfg.PredictionHTTPURL + ")"
	default:
		setup.serviceDetail = fmt.Sprintf("%T", s)
	}
	return setup, nil
}
