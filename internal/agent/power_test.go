package agent

import (
	"testing"

	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func TestSelectPowerProfile_LowBatteryIsMaximumPowerSaving(t *testing.T) {
	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: false, Pct: 10}}
	if got := selectPowerProfile(snap); got != ProfileMaximumPowerSaving {
		t.Errorf("selectPowerProfile() = %v, want MaximumPowerSaving", got)
	}
}

func TestSelectPowerProfile_ModerateBatteryIsPowerSaving(t *testing.T) {
	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: false, Pct: 25}}
	if got := selectPowerProfile(snap); got != ProfilePowerSaving {
		t.Errorf("selectPowerProfile() = %v, want PowerSaving", got)
	}
}

func TestSelectPowerProfile_OnACHighUtilIsPerformance(t *testing.T) {
	util := 55.0
	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: true, Pct: 80}, CPUUtilPct: &util}
	if got := selectPowerProfile(snap); got != ProfilePerformance {
		t.Errorf("selectPowerProfile() = %v, want Performance", got)
	}
}

func TestSelectPowerProfile_DefaultIsBalanced(t *testing.T) {
	snap := snapshot.Snapshot{Battery: snapshot.Battery{Charging: true, Pct: 80}}
	if got := selectPowerProfile(snap); got != ProfileBalanced {
		t.Errorf("selectPowerProfile() = %v, want Balanced", got)
	}
}

func TestPower_Propose_EmitsAllFiveTargets(t *testing.T) {
	p := NewPower()
	prop := p.Propose(snapshot.Snapshot{Battery: snapshot.Battery{Charging: true, Pct: 80}}, nil, nil)

	want := map[snapshot.ActionTarget]bool{
		snapshot.TargetCoreParkMinPct: false,
		snapshot.TargetCoreParkMaxPct: false,
		snapshot.TargetCStateLimit:    false,
		snapshot.TargetWifiPsaveMode:  false,
		snapshot.TargetMemoryProfile:  false,
	}
	for _, a := range prop.Actions {
		want[a.Target] = true
	}
	for target, seen := range want {
		if !seen {
			t.Errorf("expected an action for target %s", target)
		}
	}
}
