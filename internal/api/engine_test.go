package api

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/agent"
	"github.com/thermopilot/thermopilot/internal/executor"
	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/health"
	"github.com/thermopilot/thermopilot/internal/orchestrator"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/persistence"
	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	history := planner.NewHistory(64)
	dispatch := executor.Dispatcher{
		snapshot.TargetGPUHybridMode: func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetRefreshRateHz: func(ctx context.Context, a snapshot.Action) error { return nil },
	}
	overrides := override.New(nil, time.Hour)
	store := snapshot.NewStore(0.3)
	orch := orchestrator.New(orchestrator.Config{
		Reader:    hal.NewReader(hal.Sources{}),
		Store:     store,
		Agents:    agent.NewRegistry([]agent.Agent{agent.NewThermal()}),
		Overrides: overrides,
		Planner:   planner.New(planner.Config{GPUModeDwell: 5 * time.Minute, OscillationWindow: time.Minute, OscillationMaxChanges: 3}, history, zap.NewNop()),
		History:   history,
		Executor:  executor.New(dispatch, 2*time.Second, history, zap.NewNop()),
	}, zap.NewNop())

	monitor := health.New(
		[]health.Probe{{Component: "fan", Check: func(ctx context.Context) error { return nil }}},
		nil,
		health.Config{ProbeInterval: time.Second, BackoffBase: time.Second, MaxBackoffAttempts: 3, EventHistorySize: 16},
		zap.NewNop(),
	)

	dir := t.TempDir()
	overrideLog, err := persistence.OpenOverrideLog(filepath.Join(dir, "overrides.log"))
	if err != nil {
		t.Fatalf("OpenOverrideLog: %v", err)
	}
	t.Cleanup(func() { overrideLog.Close() })
	prefLog, err := persistence.OpenPreferenceLog(filepath.Join(dir, "preferences.log"))
	if err != nil {
		t.Fatalf("OpenPreferenceLog: %v", err)
	}
	t.Cleanup(func() { prefLog.Close() })

	return New(Config{
		Orchestrator:  orch,
		Store:         store,
		Overrides:     overrides,
		Monitor:       monitor,
		OverrideLog:   overrideLog,
		PreferenceLog: prefLog,
	}, zap.NewNop())
}

func TestEngine_Snapshot_ZeroValueBeforeFirstTick(t *testing.T) {
	e := testEngine(t)
	snap := e.Snapshot()
	if !snap.Timestamp.IsZero() {
		t.Errorf("expected zero-value snapshot before any tick, got %+v", snap)
	}
}

func TestEngine_StartStop_DrivesOrchestratorState(t *testing.T) {
	e := testEngine(t)
	e.Start(context.Background())
	if got := e.Statistics().State; got != "Running" {
		t.Errorf("expected Running after Start, got %q", got)
	}
	e.Stop()
	if got := e.Statistics().State; got != "Stopped" {
		t.Errorf("expected Stopped after Stop, got %q", got)
	}
}

func TestEngine_RecordUserChange_CreatesActiveOverride(t *testing.T) {
	e := testEngine(t)
	if err := e.RecordUserChange("REFRESH_RATE_HZ", "90", "manual"); err != nil {
		t.Fatalf("RecordUserChange: %v", err)
	}

	overrides := e.ActiveOverrides()
	if len(overrides) != 1 || overrides[0].Control != "REFRESH_RATE_HZ" {
		t.Fatalf("expected one active override for REFRESH_RATE_HZ, got %+v", overrides)
	}
}

func TestEngine_ClearCooling_RemovesOverride(t *testing.T) {
	e := testEngine(t)
	e.RecordUserChange("REFRESH_RATE_HZ", "90", "manual")
	if err := e.ClearCooling("REFRESH_RATE_HZ"); err != nil {
		t.Fatalf("ClearCooling: %v", err)
	}
	if len(e.ActiveOverrides()) != 0 {
		t.Errorf("expected no active overrides after ClearCooling")
	}
}

func TestEngine_ForceGPUMode_RejectsUnknownMode(t *testing.T) {
	e := testEngine(t)
	if _, err := e.ForceGPUMode(context.Background(), "not-a-mode", "test"); err == nil {
		t.Error("expected error for unknown GPU mode")
	}
}

func TestEngine_ForceGPUMode_ExecutesDespiteActiveOverride(t *testing.T) {
	e := testEngine(t)
	// A non-critical override on GPU_HYBRID_MODE must not block the
	// Critical-priority forced action (§4.E rule 1 Critical bypass).
	e.overrides.RecordOverride("GPU_HYBRID_MODE", "Off", "manual")

	cycle, err := e.ForceGPUMode(context.Background(), "On", "gaming session")
	if err != nil {
		t.Fatalf("ForceGPUMode: %v", err)
	}
	if cycle.Executed != 1 {
		t.Errorf("expected forced action to execute, got Executed=%d Failed=%d", cycle.Executed, cycle.Failed)
	}
}

func TestEngine_Statistics_ReportsComponentHealth(t *testing.T) {
	e := testEngine(t)
	stats := e.Statistics()
	if status, ok := stats.ComponentHealth["fan"]; !ok || status != "Healthy" {
		t.Errorf("expected fan component Healthy, got %+v", stats.ComponentHealth)
	}
}
