package prediction

import (
	"context"
	"sync"
	"time"

	"github.com/ent0n29/mcctrack/internal/clock"
	"github.com/ent0n29/mcctrack/internal/observability"
	"github.com/ent0n29/mcctrack/internal/policy"
	"github.com/ent0n29/mcctrack/internal/reliability"
	"github.com/ent0n29/mcctrack/internal/tracking"
)

// DefaultSearchRadiusMeters is the conservative radius used for background
// predictions.
const DefaultSearchRadiusMeters = 50.0

const defaultRetryCapacity = 200

// ClientOptions tunes a Client. Zero values pick defaults.
type ClientOptions struct {
	SearchRadiusMeters float64
	RetryCapacity      int
	// DrainBackoffBase spaces out opportunistic drains after a drain in which
	// every replay failed. Zero drains on every call.
	DrainBackoffBase time.Duration
	DrainBackoffCap  time.Duration
	Clock            clock.Clock
	Metrics          *observability.Metrics
}

// Client wraps a Service for the sampling loop. Its methods never return
// errors: failed pushes land in a bounded retry queue.
type Client struct {
	service Service
	queue   *reliability.Queue[Telemetry]
	radius  float64
	clock   clock.Clock
	metrics *observability.Metrics

	mu   sync.Mutex
	gate reliability.Gate
}

func NewClient(service Service, opts ClientOptions) *Client {
	if opts.SearchRadiusMeters <= 0 {
		opts.SearchRadiusMeters = DefaultSearchRadiusMeters
	}
	if opts.RetryCapacity <= 0 {
		opts.RetryCapacity = defaultRetryCapacity
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	return &Client{
		service: service,
		queue:   reliability.NewQueue[Telemetry](opts.RetryCapacity),
		radius:  opts.SearchRadiusMeters,
		clock:   opts.Clock,
		metrics: opts.Metrics,
		gate:    reliability.Gate{Base: opts.DrainBackoffBase, Cap: opts.DrainBackoffCap},
	}
}

// RequestPrediction asks the service for the category at pos. On failure the
// position is queued as telemetry for sessionID and nil is returned.
func (c *Client) RequestPrediction(ctx context.Context, sessionID, userID string, pos tracking.Position) *tracking.PredictionRecord {
	started := c.clock.Now()
	p, err := c.service.Predict(ctx, pos.Latitude, pos.Longitude, c.radius, false)
	c.metrics.ObservePredictionLatency(c.clock.Now().Sub(started))
	if err != nil {
		observability.Logf("prediction failed session=%s: %s", sessionID, policy.ForLog(err.Error()))
		c.metrics.PredictionError("predict", Kind(err))
		c.enqueue(Telemetry{
			SessionID: sessionID,
			UserID:    userID,
			Position:  pos,
			Timestamp: c.clock.Now(),
		})
		return nil
	}
	return &tracking.PredictionRecord{
		Category:    p.Category,
		Confidence:  p.Confidence,
		Method:      p.Method,
		PredictedAt: c.clock.Now(),
	}
}

// PushTelemetry sends t and queues it for replay when the push fails.
func (c *Client) PushTelemetry(ctx context.Context, t Telemetry) bool {
	if c.push(ctx, t) {
		return true
	}
	c.enqueue(t)
	return false
}

func (c *Client) push(ctx context.Context, t Telemetry) bool {
	if err := c.service.PushUpdate(ctx, t); err != nil {
		observability.Logf("telemetry push failed session=%s: %s", t.SessionID, policy.ForLog(err.Error()))
		c.metrics.PredictionError("push", Kind(err))
		return false
	}
	return true
}

func (c *Client) enqueue(t Telemetry) {
	dropped := c.queue.Enqueue(t)
	if dropped > 0 {
		observability.Logf("retry queue full: dropped %d oldest telemetry payloads", dropped)
	}
	c.metrics.RetryQueue(c.queue.Len(), dropped)
}

// DrainRetries replays queued telemetry unless a recent drain failed
// completely and its backoff has not elapsed. It returns the queue length.
func (c *Client) DrainRetries(ctx context.Context) int {
	if c.queue.Len() == 0 {
		return 0
	}
	c.mu.Lock()
	ready := c.gate.Ready(c.clock.Now())
	c.mu.Unlock()
	if !ready {
		return c.queue.Len()
	}
	return c.DrainNow(ctx)
}

// DrainNow replays queued telemetry immediately.
func (c *Client) DrainNow(ctx context.Context) int {
	before := c.queue.Len()
	if before == 0 {
		return 0
	}
	delivered := 0
	remaining := c.queue.Drain(ctx, func(ctx context.Context, t Telemetry) bool {
		if c.push(ctx, t) {
			delivered++
			return true
		}
		return false
	})

	c.mu.Lock()
	c.gate.Record(c.clock.Now(), delivered > 0)
	c.mu.Unlock()

	c.metrics.RetryQueue(remaining, 0)
	return remaining
}

// SetRetryCapacity rebounds the retry queue, evicting the oldest payloads if
// it already holds more.
func (c *Client) SetRetryCapacity(n int) {
	if dropped := c.queue.SetCapacity(n); dropped > 0 {
		observability.Logf("retry queue resized to %d: dropped %d oldest telemetry payloads", n, dropped)
		c.metrics.RetryQueue(c.queue.Len(), dropped)
	}
}

// PendingRetries returns how many pushes wait for replay.
func (c *Client) PendingRetries() int {
	return c.queue.Len()
}

// PendingTelemetry returns a copy of the queued payloads, oldest first.
func (c *Client) PendingTelemetry() []Telemetry {
	return c.queue.Items()
}
