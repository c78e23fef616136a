package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ent0n29/mcctrack/internal/tracking"
)

// Config contains all runtime settings for the background tracking service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	TrackingUpdateInterval time.Duration
	TrackingMinDistance    float64
	TrackingMaxHistory     int
	TrackingSessionTTL     time.Duration
	TrackWhenBackgrounded  bool

	PredictionMode         string
	PredictionHTTPURL      string
	PredictionFallbackMock bool
	PredictionTimeout      time.Duration
	PredictionRadiusMeters float64
	RetryBackoffBase       time.Duration
	RetryBackoffCap        time.Duration

	PersistenceURL string

	LocationMode       string
	LocationFixedLat   float64
	LocationFixedLng   float64
	LocationScriptPath string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	defaults := tracking.DefaultConfig()
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "mcctrack"),
		AllowAnyOrigin:   false,

		TrackingUpdateInterval: defaults.UpdateInterval,
		TrackingMinDistance:    defaults.MinDistanceMeters,
		TrackingMaxHistory:     defaults.MaxHistorySize,
		TrackingSessionTTL:     defaults.SessionDuration,
		TrackWhenBackgrounded:  defaults.TrackWhenBackgrounded,

		PredictionMode:    envOrDefault("PREDICTION_MODE", "auto"),
		PredictionHTTPURL: stringsTrimSpace("PREDICTION_HTTP_URL"),
		// Background calls use a conservative radius.
		PredictionRadiusMeters: 50,
		PredictionTimeout:      5 * time.Second,
		RetryBackoffBase:       5 * time.Second,
		RetryBackoffCap:        5 * time.Minute,

		PersistenceURL: stringsTrimSpace("PERSISTENCE_URL"),

		LocationMode:       envOrDefault("LOCATION_MODE", "fixed"),
		LocationFixedLat:   45.4642,
		LocationFixedLng:   9.1900,
		LocationScriptPath: stringsTrimSpace("LOCATION_SCRIPT_PATH"),

		ShutdownTimeout: 15 * time.Second,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	cfg.TrackingUpdateInterval, err = durationFromEnv("TRACKING_UPDATE_INTERVAL", cfg.TrackingUpdateInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.TrackingMinDistance, err = floatFromEnv("TRACKING_MIN_DISTANCE_METERS", cfg.TrackingMinDistance)
	if err != nil {
		return Config{}, err
	}
	cfg.TrackingMaxHistory, err = intFromEnv("TRACKING_MAX_HISTORY", cfg.TrackingMaxHistory)
	if err != nil {
		return Config{}, err
	}
	cfg.TrackingSessionTTL, err = durationFromEnv("TRACKING_SESSION_DURATION", cfg.TrackingSessionTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.TrackWhenBackgrounded, err = boolFromEnv("TRACKING_WHEN_BACKGROUNDED", cfg.TrackWhenBackgrounded)
	if err != nil {
		return Config{}, err
	}

	cfg.PredictionFallbackMock, err = boolFromEnv("PREDICTION_FALLBACK_MOCK", cfg.PredictionFallbackMock)
	if err != nil {
		return Config{}, err
	}
	cfg.PredictionTimeout, err = durationFromEnv("PREDICTION_TIMEOUT", cfg.PredictionTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.PredictionRadiusMeters, err = floatFromEnv("PREDICTION_RADIUS_METERS", cfg.PredictionRadiusMeters)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffBase, err = durationFromEnv("PREDICTION_RETRY_BACKOFF_BASE", cfg.RetryBackoffBase)
	if err != nil {
		return Config{}, err
	}
	cfg.RetryBackoffCap, err = durationFromEnv("PREDICTION_RETRY_BACKOFF_CAP", cfg.RetryBackoffCap)
	if err != nil {
		return Config{}, err
	}

	cfg.LocationFixedLat, err = floatFromEnv("LOCATION_FIXED_LAT", cfg.LocationFixedLat)
	if err != nil {
		return Config{}, err
	}
	cfg.LocationFixedLng, err = floatFromEnv("LOCATION_FIXED_LNG", cfg.LocationFixedLng)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Tracking().Validate(); err != nil {
		return Config{}, err
	}
	if cfg.PredictionRadiusMeters <= 0 {
		return Config{}, fmt.Errorf("PREDICTION_RADIUS_METERS must be positive")
	}
	if cfg.RetryBackoffBase < 0 || cfg.RetryBackoffCap < 0 {
		return Config{}, fmt.Errorf("PREDICTION_RETRY_BACKOFF_* must be >= 0")
	}
	if cfg.LocationFixedLat < -90 || cfg.LocationFixedLat > 90 {
		return Config{}, fmt.Errorf("LOCATION_FIXED_LAT must be within [-90, 90]")
	}
	if cfg.LocationFixedLng < -180 || cfg.LocationFixedLng > 180 {
		return Config{}, fmt.Errorf("LOCATION_FIXED_LNG must be within [-180, 180]")
	}
	switch strings.ToLower(cfg.LocationMode) {
	case "fixed":
	case "scripted":
		if cfg.LocationScriptPath == "" {
			return Config{}, fmt.Errorf("LOCATION_SCRIPT_PATH is required when LOCATION_MODE=scripted")
		}
	default:
		return Config{}, fmt.Errorf("LOCATION_MODE must be fixed or scripted, got %q", cfg.LocationMode)
	}

	return cfg, nil
}

// Tracking returns the default per-session tracking config.
func (c Config) Tracking() tracking.Config {
	return tracking.Config{
		UpdateInterval:        c.TrackingUpdateInterval,
		MinDistanceMeters:     c.TrackingMinDistance,
		MaxHistorySize:        c.TrackingMaxHistory,
		SessionDuration:       c.TrackingSessionTTL,
		TrackWhenBackgrounded: c.TrackWhenBackgrounded,
	}
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return trimSpace(os.Getenv(key))
}

func trimSpace(v string) string {
	for len(v) > 0 && (v[0] == ' ' || v[0] == '\n' || v[0] == '\t' || v[0] == '\r') {
		v = v[1:]
	}
	for len(v) > 0 {
		c := v[len(v)-1]
		if c == ' ' || c == '\n' || c == '\t' || c == '\r' {
			v = v[:len(v)-1]
			continue
		}
		break
	}
	return v
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return f, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
