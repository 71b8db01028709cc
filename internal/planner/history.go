// Package planner implements the Conflict Planner (§4.E): it arbitrates
// between the domain agents' proposals each tick and produces an
// ordered list of accepted actions.
package planner

import (
	"sync"
	"time"

	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// entry is one accepted-action record kept for oscillation, dwell, and
// per-agent self-history checks.
type entry struct {
	action snapshot.Action
	at     time.Time
}

// History is a bounded per-target ring of accepted-action records, used
// by the oscillation guard, the minimum-dwell rule, and as the
// `self_history` collaborator each agent receives on Propose.
type History struct {
	mu       sync.Mutex
	size     int
	byTarget map[snapshot.ActionTarget][]entry
}

// NewHistory creates a History with the given per-target ring capacity.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{size: size, byTarget: make(map[snapshot.ActionTarget][]entry)}
}

// Record appends an accepted action to its target's ring, evicting the
// oldest entry once the ring is full.
func (h *History) Record(action snapshot.Action, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring := h.byTarget[action.Target]
	ring = append(ring, entry{action: action, at: at})
	if len(ring) > h.size {
		ring = ring[len(ring)-h.size:]
	}
	h.byTarget[action.Target] = ring
}

// ChangesSince counts how many of the given agent's recorded changes to
// target happened at or after `since` (§4.E oscillation guard).
func (h *History) ChangesSince(target snapshot.ActionTarget, agent string, since time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	count := 0
	for _, e := range h.byTarget[target] {
		if e.action.OriginAgent == agent && !e.at.Before(since) {
			count++
		}
	}
	return count
}

// LastChange returns the most recent recorded change to target, if any
// (§4.E minimum-dwell rule).
func (h *History) LastChange(target snapshot.ActionTarget) (time.Time, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ring := h.byTarget[target]
	if len(ring) == 0 {
		return time.Time{}, false
	}
	return ring[len(ring)-1].at, true
}

// ForAgent returns a per-agent view implementing agent.History's
// contract: Last(target) returns the most recent action recorded for
// that agent against that target.
func (h *History) ForAgent(name string) *AgentView {
	return &AgentView{h: h, agent: name}
}

// AgentView restricts History to one agent's own records, matching the
// `self_history` each domain agent receives on Propose (§4.D).
type AgentView struct {
	h     *History
	agent string
}

// Last returns the most recent action this agent recorded against
// target, if any.
func (v *AgentView) Last(target snapshot.ActionTarget) (snapshot.Action, bool) {
	v.h.mu.Lock()
	defer v.h.mu.Unlock()

	ring := v.h.byTarget[target]
	for i := len(ring) - 1; i >= 0; i-- {
		if ring[i].action.OriginAgent == v.agent {
			return ring[i].action, true
		}
	}
	return snapshot.Action{}, false
}
