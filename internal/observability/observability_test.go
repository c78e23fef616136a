package observability

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func newTestMetrics() *Metrics {
	return NewMetrics(fmt.Sprintf("test_obs_%d", time.Now().UnixNano()))
}

func TestTickReportFromHistograms(t *testing.T) {
	m := newTestMetrics()
	for i := 0; i < 10; i++ {
		m.ObserveTickStage(StagePredict, 30*time.Millisecond)
	}
	m.TickOutcome(OutcomeAccepted)
	m.TickOutcome(OutcomeAccepted)
	m.TickOutcome(OutcomeRejected)

	report := m.TickReport(time.Second)
	if report.UpdateIntervalMS != 1000 {
		t.Fatalf("UpdateIntervalMS = %d, want 1000", report.UpdateIntervalMS)
	}
	if len(report.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1: %+v", len(report.Stages), report.Stages)
	}
	s := report.Stages[0]
	if s.Stage != StagePredict || s.Samples != 10 || s.AvgMS != 30 {
		t.Fatalf("unexpected stage stats: %+v", s)
	}
	// All samples sit in the (25, 50] bucket.
	if s.P50MS != 37.5 || s.P95MS != 48.75 {
		t.Fatalf("P50MS = %.2f P95MS = %.2f, want 37.5, 48.75", s.P50MS, s.P95MS)
	}
	if s.BudgetMS != 200 || s.OverBudget {
		t.Fatalf("BudgetMS = %.2f OverBudget = %t, want 200, false", s.BudgetMS, s.OverBudget)
	}

	want := []TickOutcomeCount{{Outcome: OutcomeAccepted, Count: 2}, {Outcome: OutcomeRejected, Count: 1}}
	if len(report.Outcomes) != len(want) {
		t.Fatalf("Outcomes = %+v, want %+v", report.Outcomes, want)
	}
	for i := range want {
		if report.Outcomes[i] != want[i] {
			t.Fatalf("Outcomes = %+v, want %+v", report.Outcomes, want)
		}
	}
}

func TestTickReportBudgetFollowsInterval(t *testing.T) {
	m := newTestMetrics()
	for i := 0; i < 4; i++ {
		m.ObserveTickStage(StagePersist, 40*time.Millisecond)
	}
	if s := m.TickReport(10 * time.Second).Stages[0]; s.OverBudget || s.BudgetMS != 500 {
		t.Fatalf("10s interval: %+v, want a 500ms budget met", s)
	}
	if s := m.TickReport(200 * time.Millisecond).Stages[0]; !s.OverBudget || s.BudgetMS != 10 {
		t.Fatalf("200ms interval: %+v, want a 10ms budget exceeded", s)
	}
}

func TestTickReportClampsBeyondLastBucket(t *testing.T) {
	m := newTestMetrics()
	m.ObserveTickStage(StageLocate, 2*time.Minute)
	s := m.TickReport(30 * time.Second).Stages[0]
	if s.P99MS != 30000 {
		t.Fatalf("P99MS = %.2f, want 30000", s.P99MS)
	}
	if !s.OverBudget {
		t.Fatalf("two-minute locate within a 15s budget")
	}
}

func TestTickStagesExportedToPrometheus(t *testing.T) {
	ns := fmt.Sprintf("test_obs_export_%d", time.Now().UnixNano())
	m := NewMetrics(ns)
	m.ObserveTickStage(StageTickTotal, 12*time.Millisecond)

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	name := ns + "_tick_stage_latency_ms"
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "stage" && label.GetValue() == StageTickTotal && metric.GetHistogram().GetSampleCount() == 1 {
					return
				}
			}
		}
	}
	t.Fatalf("%s{stage=%q} not exported", name, StageTickTotal)
}

func TestStageBudget(t *testing.T) {
	if got := StageBudget(StageTickTotal, 30*time.Second); got != 30*time.Second {
		t.Fatalf("StageBudget(tick_total) = %v, want 30s", got)
	}
	if got := StageBudget("unknown", 30*time.Second); got != 0 {
		t.Fatalf("StageBudget(unknown) = %v, want 0", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.SessionEvent("started")
	m.TickOutcome(OutcomeAccepted)
	m.PredictionError("predict", "network")
	m.PersistenceError("save")
	m.RetryQueue(3, 1)
	m.ObservePredictionLatency(time.Millisecond)
	m.ObserveTickStage(StageLocate, time.Millisecond)
	if report := m.TickReport(time.Second); len(report.Stages) != 0 {
		t.Fatalf("nil metrics report has stages: %+v", report.Stages)
	}
}

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...any) { got = fmt.Sprintf(format, v...) })
	Logf("tick %d", 7)
	if got != "tick 7" {
		t.Fatalf("captured log = %q, want %q", got, "tick 7")
	}

	got = ""
	SetLogger(nil)
	Logf("muted")
	if got != "" {
		t.Fatalf("no-op logger forwarded %q", got)
	}
}
