package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/mcctrack/internal/tracking"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9090")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9090" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":9090")
	}
	if cfg.PredictionMode != "auto" || cfg.PredictionHTTPURL != "" {
		t.Fatalf("prediction defaults = %q %q, want auto and empty url", cfg.PredictionMode, cfg.PredictionHTTPURL)
	}
	if got, want := cfg.Tracking(), tracking.DefaultConfig(); got != want {
		t.Fatalf("Tracking() = %+v, want %+v", got, want)
	}
	if cfg.PersistenceURL != "" {
		t.Fatalf("PersistenceURL = %q, want empty default", cfg.PersistenceURL)
	}
}

func TestLoadTrackingOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TRACKING_UPDATE_INTERVAL", "10s")
	t.Setenv("TRACKING_MIN_DISTANCE_METERS", "25.5")
	t.Setenv("TRACKING_MAX_HISTORY", "20")
	t.Setenv("TRACKING_SESSION_DURATION", "2h")
	t.Setenv("TRACKING_WHEN_BACKGROUNDED", "off")
	t.Setenv("PERSISTENCE_URL", " sqlite:///tmp/mcctrack.db ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := tracking.Config{
		UpdateInterval:        10 * time.Second,
		MinDistanceMeters:     25.5,
		MaxHistorySize:        20,
		SessionDuration:       2 * time.Hour,
		TrackWhenBackgrounded: false,
	}
	if got := cfg.Tracking(); got != want {
		t.Fatalf("Tracking() = %+v, want %+v", got, want)
	}
	if cfg.PersistenceURL != "sqlite:///tmp/mcctrack.db" {
		t.Fatalf("PersistenceURL = %q, want trimmed value", cfg.PersistenceURL)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := []struct {
		key, value, want string
	}{
		{"TRACKING_MAX_HISTORY", "0", "max history"},
		{"TRACKING_UPDATE_INTERVAL", "soon", "TRACKING_UPDATE_INTERVAL parse error"},
		{"TRACKING_MIN_DISTANCE_METERS", "far", "TRACKING_MIN_DISTANCE_METERS parse error"},
		{"LOCATION_FIXED_LAT", "91", "LOCATION_FIXED_LAT"},
		{"LOCATION_MODE", "gps", "LOCATION_MODE"},
		{"LOCATION_MODE", "scripted", "LOCATION_SCRIPT_PATH"},
		{"APP_ALLOW_ANY_ORIGIN", "maybe", "expected bool"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestLoadInvalidTrackingWrapsSentinel(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("TRACKING_SESSION_DURATION", "-1m")
	if _, err := Load(); !errors.Is(err, tracking.ErrInvalidConfig) {
		t.Fatalf("Load() error = %v, want ErrInvalidConfig", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"TRACKING_UPDATE_INTERVAL",
		"TRACKING_MIN_DISTANCE_METERS",
		"TRACKING_MAX_HISTORY",
		"TRACKING_SESSION_DURATION",
		"TRACKING_WHEN_BACKGROUNDED",
		"PREDICTION_MODE",
		"PREDICTION_HTTP_URL",
		"PREDICTION_FALLBACK_MOCK",
		"PREDICTION_TIMEOUT",
		"PREDICTION_RADIUS_METERS",
		"PREDICTION_RETRY_BACKOFF_BASE",
		"PREDICTION_RETRY_BACKOFF_CAP",
		"PERSISTENCE_URL",
		"LOCATION_MODE",
		"LOCATION_FIXED_LAT",
		"LOCATION_FIXED_LNG",
		"LOCATION_SCRIPT_PATH",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
