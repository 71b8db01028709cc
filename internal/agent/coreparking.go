package agent

import (
	"context"
	"sync"

	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// protectedProcessNames is the fixed set from §4.D that is never
// affinity-masked regardless of battery state.
var protectedProcessNames = map[string]bool{
	"dwm":          true,
	"csrss":        true,
	"winlogon":     true,
	"services":     true,
	"lsass":        true,
	"smss":         true,
	"thermopilotd": true,
}

const coreParkHighCPUSecs = 300.0

// CoreParking applies an E-core affinity mask to unprotected user
// processes on battery, consuming per-process efficiency-class topology.
// Process and topology enumeration are refreshed out-of-band via Refresh
// (called on the slow tick) so Propose stays a pure function of its
// cached state and the snapshot, with no blocking I/O of its own.
type CoreParking struct {
	lister       *hal.ProcessLister
	topologyFunc func() ([]hal.LogicalProcessor, error)

	mu        sync.Mutex
	processes []hal.ProcessInfo
	topology  []hal.LogicalProcessor
}

// NewCoreParking constructs the core-parking agent over the given
// process lister and topology enumerator.
func NewCoreParking(lister *hal.ProcessLister, topologyFunc func() ([]hal.LogicalProcessor, error)) *CoreParking {
	return &CoreParking{lister: lister, topologyFunc: topologyFunc}
}

// Name implements Agent.
func (c *CoreParking) Name() string { return "coreparking" }

// Refresh re-enumerates processes and topology. Called on the slow tick.
func (c *CoreParking) Refresh(ctx context.Context) {
	procs, err := c.lister.List(ctx)
	topo, topoErr := c.topologyFunc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		c.processes = procs
	}
	if topoErr == nil {
		c.topology = topo
	}
}

// isProtected reports whether a process must never be affinity-masked
// (§4.D / §3 invariant 6: "never sets empty mask").
func isProtected(p hal.ProcessInfo) bool {
	if protectedProcessNames[p.Name] {
		return true
	}
	if p.Priority < 0 { // lower nice value => higher OS priority class
		return true
	}
	if p.CPUTimeSecs > coreParkHighCPUSecs {
		return true
	}
	return false
}

// eCoreMask builds an affinity mask restricted to efficiency-class
// logical processors. Falls back to the all-cores mask if the topology
// has no efficiency cores, since an empty mask is never permitted.
func eCoreMask(procs []hal.LogicalProcessor) uint64 {
	var mask uint64
	for _, p := range procs {
		if p.EfficiencyClass == 0 {
			mask |= p.AffinityBit
		}
	}
	if mask == 0 {
		return allCoresMask(procs)
	}
	return mask
}

func allCoresMask(procs []hal.LogicalProcessor) uint64 {
	var mask uint64
	for _, p := range procs {
		mask |= p.AffinityBit
	}
	return mask
}

// Propose implements Agent. On battery below 30%, masks unprotected
// processes to E-cores; on AC, resets affinity to all cores.
func (c *CoreParking) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	c.mu.Lock()
	topology := c.topology
	procs := c.processes
	c.mu.Unlock()

	if len(topology) == 0 {
		return snapshot.Proposal{Agent: c.Name()}
	}

	onBattery := !snap.Battery.Charging
	restrict := onBattery && snap.Battery.Pct < 30

	mask := allCoresMask(topology)
	if restrict {
		mask = eCoreMask(topology)
	}

	var actions []snapshot.Action
	for _, p := range procs {
		if restrict && isProtected(p) {
			continue
		}
		actions = append(actions, snapshot.Action{
			Target:      snapshot.TargetProcessAffinity,
			Value:       ProcessAffinityValue{PID: int(p.PID), Mask: mask},
			Priority:    snapshot.PriorityNormal,
			OriginAgent: c.Name(),
			Rationale:   "battery core-parking policy",
		})
	}

	return snapshot.Proposal{Agent: c.Name(), Actions: actions, Priority: snapshot.PriorityNormal}
}

// ProcessAffinityValue is the PROCESS_AFFINITY action's value shape.
type ProcessAffinityValue struct {
	PID  int
	Mask uint64
}
