package main

import (
	"bytes"
	"context"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ent0n29/mcctrack/internal/config"
	"github.com/ent0n29/mcctrack/internal/httpapi"
	"github.com/ent0n29/mcctrack/internal/location"
	"github.com/ent0n29/mcctrack/internal/observability"
	"github.com/ent0n29/mcctrack/internal/prediction"
	"github.com/ent0n29/mcctrack/internal/session"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

func TestEventsURL(t *testing.T) {
	cases := map[string]string{
		"http://127.0.0.1:8080":      "ws://127.0.0.1:8080/v1/tracking/events",
		"https://track.example/api/": "wss://track.example/api/v1/tracking/events",
	}
	for in, want := range cases {
		got, err := eventsURL(in)
		if err != nil {
			t.Fatalf("eventsURL(%q) error = %v", in, err)
		}
		if got != want {
			t.Fatalf("eventsURL(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := eventsURL("ftp://host"); err == nil {
		t.Fatalf("eventsURL(ftp) expected error")
	}
}

func TestValidateOptions(t *testing.T) {
	ok := options{baseURL: "http://x", samples: 1, updateIntervalMS: 100, timeout: time.Second}
	if err := ok.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}
	bad := ok
	bad.samples = 0
	if err := bad.validate(); err == nil {
		t.Fatalf("validate() expected error for samples=0")
	}
	bad = ok
	bad.updateIntervalMS = 1
	if err := bad.validate(); err == nil {
		t.Fatalf("validate() expected error for a 1ms interval")
	}
}

func TestRunAgainstLiveServer(t *testing.T) {
	metrics := observability.NewMetrics(fmt.Sprintf("test_perftrack_%d", time.Now().UnixNano()))
	client := prediction.NewClient(prediction.NewMockService(), prediction.ClientOptions{Metrics: metrics})
	sessions := session.NewManager(session.Deps{
		Provider: location.NewFixedProvider(45.4642, 9.19, nil),
		Client:   client,
		Metrics:  metrics,
	})
	defer sessions.Close()
	defaults := tracking.DefaultConfig()
	cfg := config.Config{
		TrackingUpdateInterval: defaults.UpdateInterval,
		TrackingMinDistance:    defaults.MinDistanceMeters,
		TrackingMaxHistory:     defaults.MaxHistorySize,
		TrackingSessionTTL:     defaults.SessionDuration,
		TrackWhenBackgrounded:  true,
	}
	ts := httptest.NewServer(httpapi.New(cfg, sessions, client, nil, metrics, "").Router())
	defer ts.Close()

	var out bytes.Buffer
	err := run(context.Background(), options{
		baseURL:          ts.URL,
		userID:           "perf",
		samples:          1,
		updateIntervalMS: 60000,
		timeout:          5 * time.Second,
		verbose:          true,
	}, &out)
	if err != nil {
		t.Fatalf("run() error = %v\noutput:\n%s", err, out.String())
	}
	got := out.String()
	for _, want := range []string{"event=position_accepted", "accepted=1", "tick_total", "best_category="} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if sessions.Status().HasActiveSession {
		t.Fatalf("run() left the session active")
	}
}
