package agent

import (
	"sync"

	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// Battery tracks the discharge-rate band (§4.D: "not a hardware
// actuator"). The aggressiveness dial itself is the snapshot's
// DischargeBand field, already computed by the context store and read
// directly by the other agents. This agent records each band transition
// in its private memory via BandChanged, but its proposal is the same
// action-free proposal on every tick; a transition is not reported in
// the proposal, in a log, or in history.
type Battery struct {
	mu       sync.Mutex
	lastBand snapshot.DischargeBand
	seen     bool
}

// NewBattery constructs the battery band-transition agent.
func NewBattery() *Battery { return &Battery{} }

// Name implements Agent.
func (b *Battery) Name() string { return "battery" }

// BandChanged reports whether the discharge band moved since the last
// call, updating the agent's private memory as a side effect.
func (b *Battery) BandChanged(snap snapshot.Snapshot) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := !b.seen || b.lastBand != snap.DischargeBand
	b.lastBand = snap.DischargeBand
	b.seen = true
	return changed
}

// Propose implements Agent. Always action-free: this agent's output is
// the snapshot's DischargeBand field itself, not a HAL actuation. A
// no-op Proposal is still returned every tick so the orchestrator's
// history and health bookkeeping see it run.
func (b *Battery) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	b.BandChanged(snap)
	return snapshot.Proposal{Agent: b.Name()}
}
