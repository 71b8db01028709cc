package agent

import (
	"testing"

	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func topologyWithOneEfficiencyCore() []hal.LogicalProcessor {
	return []hal.LogicalProcessor{
		{LPIndex: 0, EfficiencyClass: 1, AffinityBit: 1 << 0},
		{LPIndex: 1, EfficiencyClass: 0, AffinityBit: 1 << 1},
	}
}

func TestCoreParking_Propose_NoTopologyIsANoop(t *testing.T) {
	c := NewCoreParking(hal.NewProcessLister(), func() ([]hal.LogicalProcessor, error) { return nil, nil })
	prop := c.Propose(snapshot.Snapshot{}, nil, nil)
	if len(prop.Actions) != 0 {
		t.Errorf("expected no actions without cached topology, got %d", len(prop.Actions))
	}
}

func TestCoreParking_Propose_RestrictsToECoresOnLowBattery(t *testing.T) {
	c := NewCoreParking(hal.NewProcessLister(), nil)
	c.topology = topologyWithOneEfficiencyCore()
	c.processes = []hal.ProcessInfo{{PID: 100, Name: "chrome"}}

	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: false, Pct: 20}}
	prop := c.Propose(snap, nil, nil)

	if len(prop.Actions) != 1 {
		t.Fatalf("expected 1 action, got %d", len(prop.Actions))
	}
	v := prop.Actions[0].Value.(ProcessAffinityValue)
	if v.Mask != 1<<1 {
		t.Errorf("expected mask restricted to the E-core bit, got %b", v.Mask)
	}
}

func TestCoreParking_Propose_SkipsProtectedProcesses(t *testing.T) {
	c := NewCoreParking(hal.NewProcessLister(), nil)
	c.topology = topologyWithOneEfficiencyCore()
	c.processes = []hal.ProcessInfo{
		{PID: 4, Name: "lsass"},
		{PID: 100, Name: "chrome"},
	}

	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: false, Pct: 20}}
	prop := c.Propose(snap, nil, nil)

	if len(prop.Actions) != 1 {
		t.Fatalf("expected only the unprotected process to be masked, got %d actions", len(prop.Actions))
	}
	if prop.Actions[0].Value.(ProcessAffinityValue).PID != 100 {
		t.Error("expected the protected lsass process to be excluded")
	}
}

func TestCoreParking_Propose_OnACUsesAllCores(t *testing.T) {
	c := NewCoreParking(hal.NewProcessLister(), nil)
	c.topology = topologyWithOneEfficiencyCore()
	c.processes = []hal.ProcessInfo{{PID: 4, Name: "lsass"}, {PID: 100, Name: "chrome"}}

	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: true, Pct: 80}}
	prop := c.Propose(snap, nil, nil)

	if len(prop.Actions) != 2 {
		t.Fatalf("expected both processes masked on AC, got %d", len(prop.Actions))
	}
	for _, a := range prop.Actions {
		if a.Value.(ProcessAffinityValue).Mask != (1<<0 | 1<<1) {
			t.Errorf("expected all-cores mask on AC, got %b", a.Value.(ProcessAffinityValue).Mask)
		}
	}
}

func TestEOrAllCoreMask_FallsBackWhenNoEfficiencyCores(t *testing.T) {
	topo := []hal.LogicalProcessor{{LPIndex: 0, EfficiencyClass: 1, AffinityBit: 1}}
	if got := eCoreMask(topo); got == 0 {
		t.Error("expected eCoreMask to never return an empty mask")
	}
}
