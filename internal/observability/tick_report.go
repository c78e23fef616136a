package observability

import (
	"errors"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Tick stages, in the order a sampling tick runs them.
const (
	StageLocate    = "locate"
	StagePredict   = "predict"
	StagePersist   = "persist"
	StagePush      = "push"
	StageTickTotal = "tick_total"
)

// Tick outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
	OutcomeSkipped  = "skipped"
	OutcomeFatal    = "fatal"
	OutcomeExpired  = "expired"
)

var (
	tickStages   = []string{StageLocate, StagePredict, StagePersist, StagePush, StageTickTotal}
	tickOutcomes = []string{OutcomeAccepted, OutcomeRejected, OutcomeSkipped, OutcomeFatal, OutcomeExpired}

	// Share of the update interval a stage may take at p95 before the loop
	// falls behind its own cadence.
	stageBudgetShare = map[string]float64{
		StageLocate:    0.5,
		StagePredict:   0.2,
		StagePersist:   0.05,
		StagePush:      0.2,
		StageTickTotal: 1.0,
	}

	tickStageBucketsMS = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000}
)

type TickStageStats struct {
	Stage      string  `json:"stage"`
	Samples    uint64  `json:"samples"`
	AvgMS      float64 `json:"avg_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	P99MS      float64 `json:"p99_ms"`
	BudgetMS   float64 `json:"budget_ms,omitempty"`
	OverBudget bool    `json:"over_budget"`
}

type TickOutcomeCount struct {
	Outcome string `json:"outcome"`
	Count   uint64 `json:"count"`
}

// TickReport summarises tick latencies since process start, judged against
// the update interval of the session being sampled.
type TickReport struct {
	GeneratedAt      time.Time          `json:"generated_at"`
	UpdateIntervalMS int64              `json:"update_interval_ms"`
	Stages           []TickStageStats   `json:"stages"`
	Outcomes         []TickOutcomeCount `json:"outcomes,omitempty"`
}

// StageBudget is the p95 allowance for stage at the given update interval.
func StageBudget(stage string, interval time.Duration) time.Duration {
	share, ok := stageBudgetShare[stage]
	if !ok || interval <= 0 {
		return 0
	}
	return time.Duration(share * float64(interval))
}

// TickReport reads the tick histograms and outcome counters back out of
// the Prometheus instruments.
func (m *Metrics) TickReport(interval time.Duration) TickReport {
	report := TickReport{
		GeneratedAt:      time.Now().UTC(),
		UpdateIntervalMS: interval.Milliseconds(),
		Stages:           []TickStageStats{},
	}
	if m == nil {
		return report
	}

	for _, stage := range tickStages {
		h, err := readHistogram(m.TickStageLatency.WithLabelValues(stage))
		if err != nil || h.GetSampleCount() == 0 {
			continue
		}
		n := h.GetSampleCount()
		budget := float64(StageBudget(stage, interval).Microseconds()) / 1000
		p95 := round2(histogramQuantile(h, 0.95))
		report.Stages = append(report.Stages, TickStageStats{
			Stage:      stage,
			Samples:    n,
			AvgMS:      round2(h.GetSampleSum() / float64(n)),
			P50MS:      round2(histogramQuantile(h, 0.50)),
			P95MS:      p95,
			P99MS:      round2(histogramQuantile(h, 0.99)),
			BudgetMS:   budget,
			OverBudget: budget > 0 && p95 > budget,
		})
	}

	for _, outcome := range tickOutcomes {
		var pb dto.Metric
		if err := m.TickOutcomes.WithLabelValues(outcome).Write(&pb); err != nil {
			continue
		}
		if n := uint64(pb.GetCounter().GetValue()); n > 0 {
			report.Outcomes = append(report.Outcomes, TickOutcomeCount{Outcome: outcome, Count: n})
		}
	}
	return report
}

func readHistogram(o prometheus.Observer) (*dto.Histogram, error) {
	metric, ok := o.(prometheus.Metric)
	if !ok {
		return nil, errors.New("observer is not a collectable metric")
	}
	var pb dto.Metric
	if err := metric.Write(&pb); err != nil {
		return nil, err
	}
	return pb.GetHistogram(), nil
}

// histogramQuantile interpolates linearly inside the bucket holding rank
// q*count. Ranks past the last finite bound report that bound.
func histogramQuantile(h *dto.Histogram, q float64) float64 {
	total := float64(h.GetSampleCount())
	if total == 0 {
		return 0
	}
	rank := q * total
	lower, below := 0.0, 0.0
	for _, b := range h.GetBucket() {
		upper := b.GetUpperBound()
		cum := float64(b.GetCumulativeCount())
		if cum >= rank {
			if math.IsInf(upper, +1) {
				return lower
			}
			inBucket := cum - below
			if inBucket == 0 {
				return upper
			}
			return lower + (upper-lower)*(rank-below)/inBucket
		}
		lower, below = upper, cum
	}
	return lower
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
