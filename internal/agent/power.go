package agent

import (
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// power profile actuation values (§4.D, §6 GUIDs for core parking).
type powerProfileValues struct {
	coreParkMinPct int
	coreParkMaxPct int
	cstateLimit    int // -1 = unlimited
	wifiPsave      string
	memoryProfile  string
}

var powerProfiles = map[PowerProfile]powerProfileValues{
	ProfileMaximumPowerSaving: {coreParkMinPct: 25, coreParkMaxPct: 50, cstateLimit: -1, wifiPsave: "MaxPSP", memoryProfile: "MaxPowerSaving"},
	ProfilePowerSaving:        {coreParkMinPct: 25, coreParkMaxPct: 75, cstateLimit: -1, wifiPsave: "MaxPSP", memoryProfile: "Balanced"},
	ProfilePerformance:        {coreParkMinPct: 100, coreParkMaxPct: 100, cstateLimit: 0, wifiPsave: "Off", memoryProfile: "Performance"},
	ProfileBalanced:           {coreParkMinPct: 50, coreParkMaxPct: 100, cstateLimit: 1, wifiPsave: "Medium", memoryProfile: "Balanced"},
}

// Power proposes CSTATE_LIMIT / CORE_PARK_* / MEMORY_PROFILE / WIFI_PSAVE_MODE
// actions from the battery/AC profile-selection rules in §4.D.
type Power struct{}

// NewPower constructs the power agent.
func NewPower() *Power { return &Power{} }

// Name implements Agent.
func (p *Power) Name() string { return "power" }

// Propose implements Agent.
func (p *Power) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	profile := selectPowerProfile(snap)
	values := powerProfiles[profile]

	actions := []snapshot.Action{
		{Target: snapshot.TargetCoreParkMinPct, Value: values.coreParkMinPct, Priority: snapshot.PriorityNormal, OriginAgent: p.Name(), Rationale: string(profile)},
		{Target: snapshot.TargetCoreParkMaxPct, Value: values.coreParkMaxPct, Priority: snapshot.PriorityNormal, OriginAgent: p.Name(), Rationale: string(profile)},
		{Target: snapshot.TargetCStateLimit, Value: values.cstateLimit, Priority: snapshot.PriorityNormal, OriginAgent: p.Name(), Rationale: string(profile)},
		{Target: snapshot.TargetWifiPsaveMode, Value: values.wifiPsave, Priority: snapshot.PriorityNormal, OriginAgent: p.Name(), Rationale: string(profile)},
		{Target: snapshot.TargetMemoryProfile, Value: values.memoryProfile, Priority: snapshot.PriorityNormal, OriginAgent: p.Name(), Rationale: string(profile)},
	}

	return snapshot.Proposal{Agent: p.Name(), Actions: actions, Priority: snapshot.PriorityNormal}
}

// selectPowerProfile implements §4.D's exact ordered rule list.
func selectPowerProfile(snap snapshot.Snapshot) PowerProfile {
	onBattery := !snap.Battery.Charging
	switch {
	case onBattery && snap.Battery.Pct < 15:
		return ProfileMaximumPowerSaving
	case onBattery && snap.Battery.Pct < 30:
		return ProfilePowerSaving
	case !onBattery && snap.CPUUtilPct != nil && *snap.CPUUtilPct > 40:
		return ProfilePerformance
	default:
		return ProfileBalanced
	}
}
