package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetrics_RegistersWithoutPanicking(t *testing.T) {
	m := NewMetrics()
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}

func TestMetrics_CyclesTotal_Increments(t *testing.T) {
	m := NewMetrics()
	m.CyclesTotal.Inc()
	m.CyclesTotal.Inc()

	if got := counterValue(t, m.CyclesTotal); got != 2 {
		t.Errorf("CyclesTotal = %v, want 2", got)
	}
}

func TestMetrics_AgentProposalsTotal_LabelsByAgent(t *testing.T) {
	m := NewMetrics()
	m.AgentProposalsTotal.WithLabelValues("thermal").Inc()
	m.AgentProposalsTotal.WithLabelValues("power").Inc()
	m.AgentProposalsTotal.WithLabelValues("thermal").Inc()

	c, err := m.AgentProposalsTotal.GetMetricWithLabelValues("thermal")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	if got := counterValue(t, c); got != 2 {
		t.Errorf("thermal proposals = %v, want 2", got)
	}
}

func TestHealthStatusValue_MapsKnownStates(t *testing.T) {
	cases := map[string]float64{
		"Healthy":  1,
		"Degraded": 0.5,
		"Failed":   0,
		"unknown":  0,
	}
	for status, want := range cases {
		if got := HealthStatusValue(status); got != want {
			t.Errorf("HealthStatusValue(%q) = %v, want %v", status, got, want)
		}
	}
}
