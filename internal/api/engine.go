// Package api implements the Public API surface (§4.J) and the operator
// Unix domain socket that exposes the same operations over
// newline-delimited JSON (§6).
package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/executor"
	"github.com/thermopilot/thermopilot/internal/health"
	"github.com/thermopilot/thermopilot/internal/orchestrator"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/persistence"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// Engine wires the orchestrator, override registry, and health monitor
// into the operations named by §4.J. It is the single type both the
// in-process embedder and the operator socket server call through.
type Engine struct {
	orch      *orchestrator.Orchestrator
	store     *snapshot.Store
	overrides *override.Registry
	monitor   *health.Monitor

	overrideLog *persistence.OverrideLog
	prefLog     *persistence.PreferenceLog

	log *zap.Logger
}

// Config bundles Engine's collaborators. Journals are optional: a nil
// journal disables that persistence write without affecting control flow
// (§4.K is additive, not load-bearing).
type Config struct {
	Orchestrator *orchestrator.Orchestrator
	Store        *snapshot.Store
	Overrides    *override.Registry
	Monitor      *health.Monitor
	OverrideLog  *persistence.OverrideLog
	PreferenceLog *persistence.PreferenceLog
}

// New constructs an Engine.
func New(cfg Config, log *zap.Logger) *Engine {
	return &Engine{
		orch:        cfg.Orchestrator,
		store:       cfg.Store,
		overrides:   cfg.Overrides,
		monitor:     cfg.Monitor,
		overrideLog: cfg.OverrideLog,
		prefLog:     cfg.PreferenceLog,
		log:         log,
	}
}

// EngineStats is returned by Statistics (§4.J statistics()).
type EngineStats struct {
	State            string            `json:"state"`
	TotalCycles      uint64            `json:"total_cycles"`
	TotalActions     uint64            `json:"total_actions"`
	ActiveOverrides  int               `json:"active_overrides"`
	ComponentHealth  map[string]string `json:"component_health"`
}

// Snapshot returns the most recently published snapshot (§4.J snapshot()).
// Returns the zero value if the orchestrator has not yet completed a tick.
func (e *Engine) Snapshot() snapshot.Snapshot {
	if last := e.store.Last(); last != nil {
		return *last
	}
	return snapshot.Snapshot{}
}

// ActiveOverrides returns every currently unexpired override record
// (§4.J active_overrides()).
func (e *Engine) ActiveOverrides() []override.Record {
	return e.overrides.ActiveOverrides()
}

// Statistics returns engine-wide counters and component health (§4.J
// statistics()).
func (e *Engine) Statistics() EngineStats {
	stats := e.orch.Stats()
	health := make(map[string]string)
	if e.monitor != nil {
		for component, status := range e.monitor.AllStatuses() {
			health[component] = string(status)
		}
	}
	return EngineStats{
		State:           e.orch.State().String(),
		TotalCycles:     stats.TotalCycles,
		TotalActions:    stats.TotalActions,
		ActiveOverrides: len(e.overrides.ActiveOverrides()),
		ComponentHealth: health,
	}
}

// Start starts the orchestrator loop (§4.J start()). Idempotent.
func (e *Engine) Start(ctx context.Context) {
	e.orch.Start(ctx)
}

// Stop stops the orchestrator loop (§4.J stop()). Idempotent.
func (e *Engine) Stop() {
	e.orch.Stop()
}

// RecordUserChange records a manual override for control and journals
// the preference change for offline learning (§4.J
// record_user_change(), §4.K preferences.log).
func (e *Engine) RecordUserChange(control, value, scenarioHint string) error {
	prev, hadPrev := e.overrides.Lookup(control)
	rec := e.overrides.RecordOverride(control, value, scenarioHint)

	if e.overrideLog != nil {
		if err := e.overrideLog.RecordOverride(control, rec.Scenario, rec.Value); err != nil {
			e.log.Warn("overrides.log write failed", zap.Error(err))
		}
	}
	if e.prefLog != nil {
		oldValue := ""
		if hadPrev {
			oldValue = prev.Value
		}
		snapCtx := string(e.Snapshot().WorkloadClass)
		if err := e.prefLog.RecordChange(control, oldValue, value, snapCtx); err != nil {
			e.log.Warn("preferences.log write failed", zap.Error(err))
		}
	}
	return nil
}

// ClearCooling removes the override for control, unconditionally (§4.J
// clear_cooling()).
func (e *Engine) ClearCooling(control string) error {
	e.overrides.Clear(control)
	if e.overrideLog != nil {
		if err := e.overrideLog.ClearOverride(control); err != nil {
			e.log.Warn("overrides.log write failed", zap.Error(err))
		}
	}
	return nil
}

// ForceGPUMode issues a Critical-priority GPU_HYBRID_MODE action that
// bypasses the minimum-dwell rule and any active override for that
// control (§4.J force_gpu_mode(), §4.E rules 1/3 Critical bypass).
func (e *Engine) ForceGPUMode(ctx context.Context, mode, reason string) (executor.CycleResult, error) {
	switch snapshot.GPUMode(mode) {
	case snapshot.GPUModeOff, snapshot.GPUModeOn, snapshot.GPUModeIGPUOnly, snapshot.GPUModeAuto:
	default:
		return executor.CycleResult{}, fmt.Errorf("api: unknown gpu mode %q", mode)
	}

	action := snapshot.Action{
		Target:      snapshot.TargetGPUHybridMode,
		Value:       mode,
		Priority:    snapshot.PriorityCritical,
		OriginAgent: "operator",
		Rationale:   reason,
		DwellCheck:  true,
	}
	cycle := e.orch.ForceAction(ctx, action)
	if e.overrideLog != nil {
		if err := e.overrideLog.RecordOverride(string(snapshot.TargetGPUHybridMode), "operator:"+reason, mode); err != nil {
			e.log.Warn("overrides.log write failed", zap.Error(err))
		}
	}
	return cycle, nil
}
