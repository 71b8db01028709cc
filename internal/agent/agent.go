// Package agent defines the domain agent contract (§4.D) and a
// read-only, explicitly-constructed lookup table over them.
//
// Contract (adapted from the contrib.AnomalyScorer plugin interface):
//   - Propose() must be goroutine-safe if the engine ever calls agents
//     concurrently in a future revision; today the orchestrator calls
//     them sequentially on its own tick goroutine.
//   - Propose() must not block on I/O — it reads the snapshot and the
//     override registry only (§4.D: "No blocking I/O inside propose").
//   - Propose() must not panic; an internal failure yields an empty
//     Proposal plus a health event, per §7.
//   - Name() must return a stable, unique string used in history,
//     metrics labels, and the CLI's `engine health` output.
//
// Construction: agents are built explicitly by cmd/thermopilotd and
// handed to the orchestrator as an ordered slice (SPEC_FULL §4.D.1 /
// §9 design note "Reflection/IoC → explicit construction"). There is no
// self-registering init()-based global registry; Registry below is a
// read-only lookup table built from that explicit slice, used only for
// diagnostics.
package agent

import (
	"fmt"

	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// History gives an agent read access to its own bounded action history
// so it can detect mode changes (e.g. the battery agent's "emit only on
// band change" rule) without external state.
type History interface {
	// Last returns the most recent action recorded for this agent
	// targeting the given control, if any.
	Last(target snapshot.ActionTarget) (snapshot.Action, bool)
}

// Agent proposes zero or more actions given the current snapshot,
// override registry, and its own history (§4.D).
type Agent interface {
	// Name returns a stable, unique identifier for this agent.
	Name() string

	// Propose computes this tick's proposal. Must not block and must
	// not panic.
	Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal
}

// Registry is a read-only lookup table over an explicitly constructed,
// fixed-order list of agents. It never self-registers and is never
// mutated after NewRegistry returns.
type Registry struct {
	ordered []Agent
	byName  map[string]Agent
}

// NewRegistry builds a Registry from an explicit, ordered agent slice.
// Panics if two agents share a name — a configuration bug, not a
// runtime condition to recover from.
func NewRegistry(agents []Agent) *Registry {
	byName := make(map[string]Agent, len(agents))
	for _, a := range agents {
		if _, exists := byName[a.Name()]; exists {
			panic(fmt.Sprintf("agent: duplicate agent name %q", a.Name()))
		}
		byName[a.Name()] = a
	}
	return &Registry{ordered: agents, byName: byName}
}

// Ordered returns the agents in their fixed construction order. The
// orchestrator iterates this slice every tick.
func (r *Registry) Ordered() []Agent { return r.ordered }

// Get returns the agent with the given name, for CLI/diagnostic lookup.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Names returns all registered agent names in construction order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, a := range r.ordered {
		names[i] = a.Name()
	}
	return names
}
