package agent

import (
	"sync"
	"time"

	"github.com/thermopilot/thermopilot/internal/capture"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// refreshState is the adaptive refresh-rate agent's sub-state machine
// (§4.D: "Normal -> Static -> Normal").
type refreshState int

const (
	refreshStateNormal refreshState = iota
	refreshStateStatic
)

const (
	captureInterval  = 2 * time.Second
	staticWindow     = 10 * time.Second
	similarityFloor  = 0.99
	samplesForStatic = int(staticWindow / captureInterval) // 5
)

// Refresh runs the adaptive refresh-rate sub-state machine. Frame
// capture happens outside Propose (via Observe, called on the
// monitoring-interval tick) so Propose remains a pure function of
// snapshot and internal state, with no blocking I/O (§4.D contract).
type Refresh struct {
	mu           sync.Mutex
	state        refreshState
	lastFrame    *capture.Frame
	consecutive  int
	nativeHz     int
	lowestHz     int
}

// NewRefresh constructs the adaptive refresh-rate agent. nativeHz and
// lowestHz bound the rates this agent will ever propose.
func NewRefresh(nativeHz, lowestHz int) *Refresh {
	return &Refresh{state: refreshStateNormal, nativeHz: nativeHz, lowestHz: lowestHz}
}

// Name implements Agent.
func (r *Refresh) Name() string { return "refresh" }

// Observe feeds one downsampled capture into the sub-state machine.
// Called on the monitoring interval (2s), not on every orchestrator tick.
func (r *Refresh) Observe(frame capture.Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastFrame == nil {
		r.lastFrame = &frame
		return
	}

	sim := capture.Similarity(*r.lastFrame, frame)
	r.lastFrame = &frame

	if sim >= similarityFloor {
		r.consecutive++
		if r.consecutive >= samplesForStatic {
			r.state = refreshStateStatic
		}
		return
	}

	// any sample below the floor restores the native rate on the same
	// tick (§4.D).
	r.consecutive = 0
	r.state = refreshStateNormal
}

// Propose implements Agent. Respects the override registry for
// REFRESH_RATE_HZ (§4.D).
func (r *Refresh) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	if overrides != nil && overrides.IsInCoolingPeriod(string(snapshot.TargetRefreshRateHz)) {
		return snapshot.Proposal{Agent: r.Name()}
	}

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	hz := r.nativeHz
	rationale := "native rate"
	if state == refreshStateStatic {
		hz = r.lowestHz
		rationale = "static content for >=10s, collapsing to lowest available rate"
	}

	return snapshot.Proposal{
		Agent: r.Name(),
		Actions: []snapshot.Action{{
			Target:      snapshot.TargetRefreshRateHz,
			Value:       hz,
			Priority:    snapshot.PriorityNormal,
			OriginAgent: r.Name(),
			Rationale:   rationale,
		}},
	}
}
