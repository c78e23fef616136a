package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ent0n29/mcctrack/internal/observability"
	"github.com/ent0n29/mcctrack/internal/session"
)

type options struct {
	baseURL          string
	userID           string
	samples          int
	updateIntervalMS int64
	minDistance      float64
	timeout          time.Duration
	keepSession      bool
	verbose          bool
}

type startRequest struct {
	UserID string         `json:"user_id"`
	Config map[string]any `json:"config,omitempty"`
}

type bestCategory struct {
	Found      bool    `json:"found"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "perftrack: %v\n", err)
		os.Exit(2)
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout+30*time.Second)
	defer cancel()
	if err := run(ctx, cfg, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "perftrack: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() (options, error) {
	var cfg options
	var timeoutMS int

	flag.StringVar(&cfg.baseURL, "base-url", "http://127.0.0.1:8080", "tracking service base URL")
	flag.StringVar(&cfg.userID, "user-id", "perf-replay", "user_id for the synthetic session")
	flag.IntVar(&cfg.samples, "samples", 10, "number of sampling ticks to observe")
	flag.Int64Var(&cfg.updateIntervalMS, "update-interval-ms", 1000, "session update interval in milliseconds")
	flag.Float64Var(&cfg.minDistance, "min-distance-m", 0, "session displacement filter in metres")
	flag.IntVar(&timeoutMS, "timeout-ms", 120000, "overall timeout waiting for samples in milliseconds")
	flag.BoolVar(&cfg.keepSession, "keep-session", false, "leave the session running when done")
	flag.BoolVar(&cfg.verbose, "verbose", true, "print each session event")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	cfg.timeout = time.Duration(timeoutMS) * time.Millisecond
	return cfg, cfg.validate()
}

func (cfg options) validate() error {
	if cfg.baseURL == "" {
		return fmt.Errorf("base-url is required")
	}
	if cfg.samples <= 0 {
		return fmt.Errorf("samples must be > 0")
	}
	if cfg.updateIntervalMS < 10 {
		return fmt.Errorf("update-interval-ms must be >= 10")
	}
	if cfg.minDistance < 0 {
		return fmt.Errorf("min-distance-m must be >= 0")
	}
	if cfg.timeout <= 0 {
		return fmt.Errorf("timeout-ms must be > 0")
	}
	return nil
}

func run(ctx context.Context, cfg options, out io.Writer) error {
	httpClient := &http.Client{Timeout: 15 * time.Second}

	wsURL, err := eventsURL(cfg.baseURL)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()
	if err := awaitSubscribed(ctx, httpClient, cfg.baseURL); err != nil {
		return err
	}

	sampleCh := make(chan session.Event, 64)
	readErrCh := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go readLoop(conn, sampleCh, readErrCh, done)

	sessionID, err := startSession(ctx, httpClient, cfg)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if !cfg.keepSession {
		defer func() {
			_ = postJSON(context.Background(), httpClient, cfg.baseURL+"/v1/tracking/session/stop", nil, nil)
		}()
	}
	fmt.Fprintf(out, "perftrack: session=%s samples=%d interval_ms=%d\n", sessionID, cfg.samples, cfg.updateIntervalMS)

	deadline := time.NewTimer(cfg.timeout)
	defer deadline.Stop()
	counts := map[session.EventType]int{}
	for seen := 0; seen < cfg.samples; {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("timed out after %d/%d samples", seen, cfg.samples)
		case err := <-readErrCh:
			return fmt.Errorf("ws read: %w", err)
		case evt := <-sampleCh:
			if evt.SessionID != sessionID {
				continue
			}
			counts[evt.Type]++
			if cfg.verbose {
				fmt.Fprintf(out, "perftrack: event=%s%s\n", evt.Type, eventDetail(evt))
			}
			switch evt.Type {
			case session.EventPositionAccepted, session.EventPositionRejected:
				seen++
			case session.EventError:
				if evt.Fatal {
					return fmt.Errorf("session ended: %s", evt.Error)
				}
				seen++
			case session.EventExpired, session.EventStopped:
				return fmt.Errorf("session ended early after %d samples", seen)
			}
		}
	}
	fmt.Fprintf(out, "perftrack: accepted=%d rejected=%d errors=%d predictions=%d\n",
		counts[session.EventPositionAccepted], counts[session.EventPositionRejected], counts[session.EventError], counts[session.EventPrediction])

	var perf observability.TickReport
	if err := getJSON(ctx, httpClient, cfg.baseURL+"/v1/perf/ticks", &perf); err != nil {
		return fmt.Errorf("fetch tick stats: %w", err)
	}
	printStages(out, perf)

	var best bestCategory
	if err := getJSON(ctx, httpClient, cfg.baseURL+"/v1/tracking/best-category", &best); err != nil {
		return fmt.Errorf("fetch best category: %w", err)
	}
	if best.Found {
		fmt.Fprintf(out, "perftrack: best_category=%s confidence=%.3f method=%s\n", best.Category, best.Confidence, best.Method)
	} else {
		fmt.Fprintln(out, "perftrack: best_category=none")
	}
	return nil
}

func startSession(ctx context.Context, client *http.Client, cfg options) (string, error) {
	req := startRequest{
		UserID: cfg.userID,
		Config: map[string]any{
			"update_interval_ms":         cfg.updateIntervalMS,
			"min_distance_filter_meters": cfg.minDistance,
		},
	}
	var resp session.SessionResponse
	if err := postJSON(ctx, client, cfg.baseURL+"/v1/tracking/session", req, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.SessionID) == "" {
		return "", fmt.Errorf("missing session_id in response")
	}
	return resp.SessionID, nil
}

// awaitSubscribed polls readiness until the websocket subscription is live,
// so no event from the first synchronous tick is missed.
func awaitSubscribed(ctx context.Context, client *http.Client, baseURL string) error {
	for i := 0; i < 100; i++ {
		var ready struct {
			EventSubscribers int `json:"event_subscribers"`
		}
		if err := getJSON(ctx, client, baseURL+"/readyz", &ready); err != nil {
			return fmt.Errorf("readyz: %w", err)
		}
		if ready.EventSubscribers > 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	return fmt.Errorf("event stream never subscribed")
}

func eventsURL(baseURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base-url scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", fmt.Errorf("base-url host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/tracking/events"
	return u.String(), nil
}

func readLoop(conn *websocket.Conn, sampleCh chan<- session.Event, readErrCh chan<- error, done <-chan struct{}) {
	for {
		var evt session.Event
		if err := conn.ReadJSON(&evt); err != nil {
			select {
			case readErrCh <- err:
			default:
			}
			return
		}
		select {
		case sampleCh <- evt:
		case <-done:
			return
		}
	}
}

func eventDetail(evt session.Event) string {
	var b strings.Builder
	if evt.Position != nil {
		fmt.Fprintf(&b, " lat=%.6f lng=%.6f", evt.Position.Latitude, evt.Position.Longitude)
	}
	if evt.Prediction != nil {
		fmt.Fprintf(&b, " category=%s confidence=%.2f", evt.Prediction.Category, evt.Prediction.Confidence)
	}
	if evt.Error != "" {
		fmt.Fprintf(&b, " error=%q", evt.Error)
	}
	return b.String()
}

func printStages(out io.Writer, perf observability.TickReport) {
	fmt.Fprintf(out, "perftrack: tick stages (interval=%dms)\n", perf.UpdateIntervalMS)
	for _, s := range perf.Stages {
		mark := ""
		if s.OverBudget {
			mark = " OVER"
		}
		fmt.Fprintf(out, "  %-10s n=%-4d p50=%7.2fms p95=%7.2fms p99=%7.2fms budget=%.0fms%s\n",
			s.Stage, s.Samples, s.P50MS, s.P95MS, s.P99MS, s.BudgetMS, mark)
	}
	for _, o := range perf.Outcomes {
		fmt.Fprintf(out, "  outcome %-9s %d\n", o.Outcome, o.Count)
	}
}

func postJSON(ctx context.Context, client *http.Client, endpoint string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(client, req, out)
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return doJSON(client, req, out)
}

func doJSON(client *http.Client, req *http.Request, out any) error {
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, res.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(res.Body).Decode(out)
}
