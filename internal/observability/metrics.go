package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	ActiveSessions    prometheus.Gauge
	SessionEvents     *prometheus.CounterVec
	TickOutcomes      *prometheus.CounterVec
	PredictionErrors  *prometheus.CounterVec
	PersistenceErrors *prometheus.CounterVec
	RetryQueueDepth   prometheus.Gauge
	RetryDropped      prometheus.Counter
	PredictionLatency prometheus.Histogram
	TickStageLatency  *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of active background tracking sessions.",
		}),
		SessionEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		TickOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tick_outcomes_total",
			Help:      "Sampling ticks by outcome.",
		}, []string{"outcome"}),
		PredictionErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prediction_errors_total",
			Help:      "Prediction service errors by operation and kind.",
		}, []string{"op", "kind"}),
		PersistenceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Persistence store errors by operation.",
		}, []string{"op"}),
		RetryQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retry_queue_depth",
			Help:      "Telemetry pushes waiting for replay.",
		}),
		RetryDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_queue_dropped_total",
			Help:      "Telemetry pushes evicted from a full retry queue.",
		}),
		PredictionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prediction_latency_ms",
			Help:      "Latency of prediction requests in milliseconds.",
			Buckets:   []float64{25, 50, 100, 200, 400, 800, 1600, 3200},
		}),
		TickStageLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_stage_latency_ms",
			Help:      "Duration of each sampling tick stage in milliseconds.",
			Buckets:   tickStageBucketsMS,
		}, []string{"stage"}),
	}
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) TickOutcome(outcome string) {
	if m == nil {
		return
	}
	m.TickOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PredictionError(op, kind string) {
	if m == nil {
		return
	}
	m.PredictionErrors.WithLabelValues(op, kind).Inc()
}

func (m *Metrics) PersistenceError(op string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) RetryQueue(depth int, dropped int) {
	if m == nil {
		return
	}
	m.RetryQueueDepth.Set(float64(depth))
	if dropped > 0 {
		m.RetryDropped.Add(float64(dropped))
	}
}

func (m *Metrics) ObservePredictionLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PredictionLatency.Observe(float64(d.Milliseconds()))
}

// ObserveTickStage records how long one stage of a sampling tick took.
func (m *Metrics) ObserveTickStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.TickStageLatency.WithLabelValues(stage).Observe(float64(d.Microseconds()) / 1000)
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
