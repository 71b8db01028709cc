package agent

import (
	"testing"

	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func TestBattery_Propose_NeverEmitsActions(t *testing.T) {
	b := NewBattery()
	prop := b.Propose(snapshot.Snapshot{DischargeBand: snapshot.DischargeHigh}, nil, nil)
	if len(prop.Actions) != 0 {
		t.Errorf("expected battery agent to never emit HAL actions, got %d", len(prop.Actions))
	}
}

func TestBattery_BandChanged_FirstObservationCounts(t *testing.T) {
	b := NewBattery()
	if !b.BandChanged(snapshot.Snapshot{DischargeBand: snapshot.DischargeLow}) {
		t.Error("expected the first observation to count as a change")
	}
}

func TestBattery_BandChanged_DetectsTransition(t *testing.T) {
	b := NewBattery()
	b.BandChanged(snapshot.Snapshot{DischargeBand: snapshot.DischargeLow})

	if b.BandChanged(snapshot.Snapshot{DischargeBand: snapshot.DischargeLow}) {
		t.Error("expected no change when the band stays the same")
	}
	if !b.BandChanged(snapshot.Snapshot{DischargeBand: snapshot.DischargeHigh}) {
		t.Error("expected a change when the band moves from Low to High")
	}
}
