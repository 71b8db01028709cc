// Package planner — planner.go
//
// The Conflict Planner arbitrates between a tick's domain-agent
// proposals (§4.E). Rules are applied in a fixed order; each rule
// either drops an action, clamps its value, or passes it through
// unchanged. The final accepted list is ordered per the equal-priority
// agent ordering: thermal > battery > power > gpu > display > others.
package planner

import (
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// Config holds the planner's dwell and oscillation-guard parameters.
type Config struct {
	GPUModeDwell          time.Duration
	OscillationWindow     time.Duration
	OscillationMaxChanges int
}

// agentRank implements the equal-priority ordering from §4.E: thermal >
// battery > power > gpu > display > others. Agents absent from this
// table sort after every named agent, in arrival order among themselves.
var agentRank = map[string]int{
	"thermal":     0,
	"battery":     1,
	"power":       2,
	"gpu":         3,
	"refresh":     4,
	"coreparking": 5,
	"predictor":   6,
}

func rankOf(agent string) int {
	if r, ok := agentRank[agent]; ok {
		return r
	}
	return len(agentRank)
}

// Rejection records why an action was dropped, for logging and the
// public API's diagnostic surface.
type Rejection struct {
	Action snapshot.Action
	Reason string
}

// Result is the planner's output for one tick.
type Result struct {
	Accepted []snapshot.Action
	Rejected []Rejection
}

// Planner applies the Conflict Planner's ordered rule set.
type Planner struct {
	cfg     Config
	history *History
	log     *zap.Logger
}

// New constructs a Planner over the given history ring and config.
func New(cfg Config, history *History, log *zap.Logger) *Planner {
	return &Planner{cfg: cfg, history: history, log: log}
}

// Plan arbitrates the tick's proposals into an ordered accepted list,
// applying §4.E's six rules in order.
func (p *Planner) Plan(proposals []snapshot.Proposal, overrides *override.Registry, now time.Time) Result {
	var candidates []snapshot.Action
	for _, prop := range proposals {
		candidates = append(candidates, prop.Actions...)
	}

	var result Result

	// Rule 1: override filter — drop any action whose target has an
	// unexpired override, unless the proposal priority is Critical.
	candidates = p.filterOverrides(candidates, overrides, &result)

	// Rule 2: priority floor — a Critical proposal targeting a control
	// discards any Normal/High proposal for that same control.
	candidates = p.applyPriorityFloor(candidates, &result)

	// Rule 3: minimum dwell — GPU_HYBRID_MODE rejected if the last
	// transition was less than GPUModeDwell ago (bypassed on Critical).
	candidates = p.applyMinimumDwell(candidates, now, &result)

	// Rule 4: oscillation guard — reject if the same agent changed this
	// target OscillationMaxChanges or more times within the window.
	candidates = p.applyOscillationGuard(candidates, now, &result)

	// Rule 5: cascading preview — logged only, never blocking.
	p.logCascadingPreview(candidates)

	// Rule 6: safety caps.
	candidates = p.applySafetyCaps(candidates, &result)

	orderAccepted(candidates)
	result.Accepted = candidates

	// History is recorded by the executor after an action actually
	// succeeds (§4.F), not here — a merely-accepted action that then
	// fails execution must not count toward dwell or oscillation state.

	return result
}

func (p *Planner) filterOverrides(actions []snapshot.Action, overrides *override.Registry, result *Result) []snapshot.Action {
	if overrides == nil {
		return actions
	}
	var kept []snapshot.Action
	for _, a := range actions {
		if a.Priority != snapshot.PriorityCritical && overrides.IsInCoolingPeriod(string(a.Target)) {
			result.Rejected = append(result.Rejected, Rejection{Action: a, Reason: "override active"})
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (p *Planner) applyPriorityFloor(actions []snapshot.Action, result *Result) []snapshot.Action {
	criticalTargets := make(map[snapshot.ActionTarget]bool)
	for _, a := range actions {
		if a.Priority == snapshot.PriorityCritical {
			criticalTargets[a.Target] = true
		}
	}

	var kept []snapshot.Action
	for _, a := range actions {
		if a.Priority != snapshot.PriorityCritical && criticalTargets[a.Target] {
			result.Rejected = append(result.Rejected, Rejection{Action: a, Reason: "priority floor: critical proposal present for this control"})
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

func (p *Planner) applyMinimumDwell(actions []snapshot.Action, now time.Time, result *Result) []snapshot.Action {
	var kept []snapshot.Action
	for _, a := range actions {
		if a.Target == snapshot.TargetGPUHybridMode && a.Priority != snapshot.PriorityCritical {
			if last, ok := p.history.LastChange(a.Target); ok && now.Sub(last) < p.cfg.GPUModeDwell {
				result.Rejected = append(result.Rejected, Rejection{Action: a, Reason: "minimum dwell not elapsed"})
				continue
			}
		}
		kept = append(kept, a)
	}
	return kept
}

func (p *Planner) applyOscillationGuard(actions []snapshot.Action, now time.Time, result *Result) []snapshot.Action {
	since := now.Add(-p.cfg.OscillationWindow)
	var kept []snapshot.Action
	for _, a := range actions {
		changes := p.history.ChangesSince(a.Target, a.OriginAgent, since)
		if changes >= p.cfg.OscillationMaxChanges {
			result.Rejected = append(result.Rejected, Rejection{Action: a, Reason: "oscillation guard tripped"})
			continue
		}
		kept = append(kept, a)
	}
	return kept
}

// cascadingEffect is a static, coarse prediction table keyed by target.
// Logged for operator visibility; never blocks a proposal (§4.E rule 5).
var cascadingEffect = map[snapshot.ActionTarget]string{
	snapshot.TargetFanFullSpeed:    "battery life -15%/hr, noise +high, temp -10C in 2min",
	snapshot.TargetGPUHybridMode:   "battery life delta depends on mode, temp delta +/-8C",
	snapshot.TargetCStateLimit:     "battery life delta -5%/hr if unlimited",
	snapshot.TargetRefreshRateHz:   "battery life +3%/hr if collapsed to lowest rate",
	snapshot.TargetProcessAffinity: "thermal headroom +, throughput -",
}

func (p *Planner) logCascadingPreview(actions []snapshot.Action) {
	for _, a := range actions {
		if effect, ok := cascadingEffect[a.Target]; ok {
			p.log.Debug("cascading effect preview",
				zap.String("target", string(a.Target)),
				zap.String("origin_agent", a.OriginAgent),
				zap.String("predicted_effect", effect),
			)
		}
	}
}

func (p *Planner) applySafetyCaps(actions []snapshot.Action, result *Result) []snapshot.Action {
	var kept []snapshot.Action
	for _, a := range actions {
		switch a.Target {
		case snapshot.TargetCoreParkMinPct:
			if v, ok := a.Value.(int); ok && v < 25 {
				a.Value = 25
			}
		case snapshot.TargetCoreParkMaxPct:
			min := 25
			if v, ok := a.Value.(int); ok && v < min {
				a.Value = min
			}
		case snapshot.TargetFanProfile, snapshot.TargetFanSpeedCPU, snapshot.TargetFanSpeedGPU:
			if v, ok := a.Value.(int); ok {
				if v < 0 {
					a.Value = 0
				} else if v > 100 {
					a.Value = 100
				}
			}
		}
		kept = append(kept, a)
	}
	_ = result
	return kept
}

// orderAccepted sorts the accepted actions by the equal-priority agent
// ordering (§4.E), highest Priority first, then agent rank, stable
// within rank.
func orderAccepted(actions []snapshot.Action) {
	for i := 1; i < len(actions); i++ {
		for j := i; j > 0 && less(actions[j], actions[j-1]); j-- {
			actions[j], actions[j-1] = actions[j-1], actions[j]
		}
	}
}

func less(a, b snapshot.Action) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return rankOf(a.OriginAgent) < rankOf(b.OriginAgent)
}
