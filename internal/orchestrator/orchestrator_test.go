package orchestrator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/agent"
	"github.com/thermopilot/thermopilot/internal/executor"
	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	history := planner.NewHistory(64)
	dispatch := executor.Dispatcher{
		snapshot.TargetFanProfile:    func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetCoreParkMinPct: func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetCoreParkMaxPct: func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetCStateLimit:    func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetWifiPsaveMode:  func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetMemoryProfile:  func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetGPUHybridMode:  func(ctx context.Context, a snapshot.Action) error { return nil },
		snapshot.TargetRefreshRateHz:  func(ctx context.Context, a snapshot.Action) error { return nil },
	}

	cfg := Config{
		Reader:    hal.NewReader(hal.Sources{}),
		Store:     snapshot.NewStore(0.3),
		Agents:    agent.NewRegistry([]agent.Agent{agent.NewThermal(), agent.NewPower(), agent.NewGPU(nil), agent.NewBattery(), agent.NewRefresh(120, 30)}),
		Overrides: override.New(nil, time.Hour),
		Planner:   planner.New(planner.Config{GPUModeDwell: 5 * time.Minute, OscillationWindow: 2 * time.Minute, OscillationMaxChanges: 3}, history, zap.NewNop()),
		History:   history,
		Executor:  executor.New(dispatch, 2*time.Second, history, zap.NewNop()),
	}
	return New(cfg, zap.NewNop())
}

func TestOrchestrator_Lifecycle_StartRunStop(t *testing.T) {
	o := testOrchestrator(t)
	if o.State() != StateStopped {
		t.Fatalf("expected initial state Stopped, got %v", o.State())
	}

	o.Start(context.Background())
	if o.State() != StateRunning {
		t.Fatalf("expected Running after Start, got %v", o.State())
	}

	o.Stop()
	if o.State() != StateStopped {
		t.Fatalf("expected Stopped after Stop, got %v", o.State())
	}
}

func TestOrchestrator_Start_IsIdempotent(t *testing.T) {
	o := testOrchestrator(t)
	o.Start(context.Background())
	o.Start(context.Background())
	if o.State() != StateRunning {
		t.Fatalf("expected Running after repeated Start, got %v", o.State())
	}
	o.Stop()
}

func TestOrchestrator_Stop_WhileStoppedIsANoop(t *testing.T) {
	o := testOrchestrator(t)
	o.Stop()
	if o.State() != StateStopped {
		t.Fatalf("expected Stopped, got %v", o.State())
	}
}

func TestOrchestrator_RunTick_RequiresRunningState(t *testing.T) {
	o := testOrchestrator(t)
	o.RunTick(context.Background(), nil)
	if o.Stats().TotalCycles != 0 {
		t.Error("expected RunTick to be a no-op while Stopped")
	}
}

func TestOrchestrator_RunTick_BuildsSnapshotAndIncrementsCycles(t *testing.T) {
	o := testOrchestrator(t)
	o.Start(context.Background())
	defer o.Stop()

	o.RunTick(context.Background(), nil)

	if o.Stats().TotalCycles != 1 {
		t.Fatalf("expected 1 cycle recorded, got %d", o.Stats().TotalCycles)
	}
	if o.store.Last() == nil {
		t.Error("expected a snapshot to have been published")
	}
}

func TestOrchestrator_TickInterval_ThrottlesOnLowBattery(t *testing.T) {
	o := testOrchestrator(t)
	o.lowBatteryThrottle = 2 * time.Second
	o.Start(context.Background())
	defer o.Stop()

	o.store.Build(hal.Reading{Battery: hal.BatteryReading{Pct: 10, Charging: false}}, nil)

	if got := o.TickInterval(500 * time.Millisecond); got != 2*time.Second {
		t.Errorf("TickInterval() = %v, want the low-battery throttle", got)
	}
}
