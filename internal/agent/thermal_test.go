package agent

import (
	"testing"

	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func floatp(v float64) *float64 { return &v }

func TestThermal_Propose_NoTempReadingIsANoop(t *testing.T) {
	th := NewThermal()
	prop := th.Propose(snapshot.Snapshot{}, nil, nil)
	if len(prop.Actions) != 0 {
		t.Errorf("expected no actions without a temperature reading, got %d", len(prop.Actions))
	}
}

func TestThermal_Propose_CurveBelowFloorClampsToMinimum(t *testing.T) {
	th := NewThermal()
	prop := th.Propose(snapshot.Snapshot{CPUTempC: floatp(30)}, nil, nil)
	if len(prop.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(prop.Actions))
	}
	if v := prop.Actions[0].Value.(int); v != 20 {
		t.Errorf("expected duty clamped to curve floor 20%%, got %d", v)
	}
	if prop.Priority != snapshot.PriorityNormal {
		t.Errorf("expected Normal priority, got %v", prop.Priority)
	}
}

func TestThermal_Propose_CriticalTempTriggersFullSpeed(t *testing.T) {
	th := NewThermal()
	prop := th.Propose(snapshot.Snapshot{CPUTempC: floatp(92)}, nil, nil)

	if prop.Priority != snapshot.PriorityCritical {
		t.Fatalf("expected Critical priority at 92C, got %v", prop.Priority)
	}

	var sawFullSpeed bool
	for _, a := range prop.Actions {
		if a.Target == snapshot.TargetFanFullSpeed {
			sawFullSpeed = true
			if a.Priority != snapshot.PriorityCritical {
				t.Errorf("expected full-speed action to be Critical priority")
			}
		}
	}
	if !sawFullSpeed {
		t.Error("expected a FAN_FULL_SPEED action above the critical threshold")
	}
}

func TestThermal_Propose_GPUTempDominatesWhenHotter(t *testing.T) {
	th := NewThermal()
	prop := th.Propose(snapshot.Snapshot{CPUTempC: floatp(40), GPUTempC: floatp(90)}, nil, nil)
	if prop.Priority != snapshot.PriorityCritical {
		t.Errorf("expected GPU temp above its own critical threshold to drive priority, got %v", prop.Priority)
	}
}

func TestDutyForTemp_Interpolates(t *testing.T) {
	if d := dutyForTemp(50); d != 20 {
		t.Errorf("dutyForTemp(50) = %d, want 20", d)
	}
	if d := dutyForTemp(95); d != 100 {
		t.Errorf("dutyForTemp(95) = %d, want 100", d)
	}
	if d := dutyForTemp(110); d != 100 {
		t.Errorf("dutyForTemp(110) = %d, want clamped to 100", d)
	}
	mid := dutyForTemp(57.5)
	if mid <= 20 || mid >= 40 {
		t.Errorf("dutyForTemp(57.5) = %d, want strictly between 20 and 40", mid)
	}
}
