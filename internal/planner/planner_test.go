package planner

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func testConfig() Config {
	return Config{
		GPUModeDwell:          5 * time.Minute,
		OscillationWindow:     2 * time.Minute,
		OscillationMaxChanges: 3,
	}
}

func TestPlanner_Plan_OverrideFilterDropsNonCriticalAction(t *testing.T) {
	overrides := override.New(nil, 24*time.Hour)
	overrides.RecordOverride("FAN_PROFILE", "80", "manual")

	p := New(testConfig(), NewHistory(64), zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "thermal", Actions: []snapshot.Action{
			{Target: snapshot.TargetFanProfile, Value: 80, Priority: snapshot.PriorityHigh, OriginAgent: "thermal"},
		}},
	}

	result := p.Plan(proposals, overrides, time.Now())
	if len(result.Accepted) != 0 {
		t.Fatalf("expected action to be filtered by override, got %d accepted", len(result.Accepted))
	}
	if len(result.Rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %d", len(result.Rejected))
	}
}

func TestPlanner_Plan_CriticalBypassesOverride(t *testing.T) {
	overrides := override.New(nil, 24*time.Hour)
	overrides.RecordOverride("FAN_FULL_SPEED", "true", "manual")

	p := New(testConfig(), NewHistory(64), zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "thermal", Actions: []snapshot.Action{
			{Target: snapshot.TargetFanFullSpeed, Value: true, Priority: snapshot.PriorityCritical, OriginAgent: "thermal"},
		}},
	}

	result := p.Plan(proposals, overrides, time.Now())
	if len(result.Accepted) != 1 {
		t.Fatalf("expected critical action to bypass override, got %d accepted", len(result.Accepted))
	}
}

func TestPlanner_Plan_PriorityFloorDiscardsLowerPriority(t *testing.T) {
	p := New(testConfig(), NewHistory(64), zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "thermal", Actions: []snapshot.Action{
			{Target: snapshot.TargetFanProfile, Value: 100, Priority: snapshot.PriorityCritical, OriginAgent: "thermal"},
		}},
		{Agent: "power", Actions: []snapshot.Action{
			{Target: snapshot.TargetFanProfile, Value: 40, Priority: snapshot.PriorityNormal, OriginAgent: "power"},
		}},
	}

	result := p.Plan(proposals, nil, time.Now())
	if len(result.Accepted) != 1 {
		t.Fatalf("expected only the critical proposal to survive, got %d", len(result.Accepted))
	}
	if result.Accepted[0].OriginAgent != "thermal" {
		t.Errorf("expected thermal's action to win, got %s", result.Accepted[0].OriginAgent)
	}
}

func TestPlanner_Plan_MinimumDwellRejectsRapidGPUModeChange(t *testing.T) {
	hist := NewHistory(64)
	now := time.Now()
	hist.Record(snapshot.Action{Target: snapshot.TargetGPUHybridMode, OriginAgent: "gpu"}, now.Add(-1*time.Minute))

	p := New(testConfig(), hist, zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "gpu", Actions: []snapshot.Action{
			{Target: snapshot.TargetGPUHybridMode, Value: "On", Priority: snapshot.PriorityNormal, OriginAgent: "gpu"},
		}},
	}

	result := p.Plan(proposals, nil, now)
	if len(result.Accepted) != 0 {
		t.Fatalf("expected dwell to reject the change, got %d accepted", len(result.Accepted))
	}
}

func TestPlanner_Plan_MinimumDwellBypassedByCritical(t *testing.T) {
	hist := NewHistory(64)
	now := time.Now()
	hist.Record(snapshot.Action{Target: snapshot.TargetGPUHybridMode, OriginAgent: "gpu"}, now.Add(-1*time.Minute))

	p := New(testConfig(), hist, zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "gpu", Actions: []snapshot.Action{
			{Target: snapshot.TargetGPUHybridMode, Value: "On", Priority: snapshot.PriorityCritical, OriginAgent: "gpu"},
		}},
	}

	result := p.Plan(proposals, nil, now)
	if len(result.Accepted) != 1 {
		t.Fatalf("expected critical proposal to bypass dwell, got %d accepted", len(result.Accepted))
	}
}

func TestPlanner_Plan_OscillationGuardTrips(t *testing.T) {
	hist := NewHistory(64)
	now := time.Now()
	for i := 0; i < 3; i++ {
		hist.Record(snapshot.Action{Target: snapshot.TargetRefreshRateHz, OriginAgent: "refresh"}, now.Add(-time.Duration(i)*time.Second))
	}

	p := New(testConfig(), hist, zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "refresh", Actions: []snapshot.Action{
			{Target: snapshot.TargetRefreshRateHz, Value: 60, Priority: snapshot.PriorityNormal, OriginAgent: "refresh"},
		}},
	}

	result := p.Plan(proposals, nil, now)
	if len(result.Accepted) != 0 {
		t.Fatalf("expected oscillation guard to reject, got %d accepted", len(result.Accepted))
	}
}

func TestPlanner_Plan_SafetyCapsClampFanDuty(t *testing.T) {
	p := New(testConfig(), NewHistory(64), zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "thermal", Actions: []snapshot.Action{
			{Target: snapshot.TargetFanProfile, Value: 250, Priority: snapshot.PriorityNormal, OriginAgent: "thermal"},
		}},
	}

	result := p.Plan(proposals, nil, time.Now())
	if len(result.Accepted) != 1 {
		t.Fatalf("expected 1 accepted action, got %d", len(result.Accepted))
	}
	if v, ok := result.Accepted[0].Value.(int); !ok || v != 100 {
		t.Errorf("expected fan duty clamped to 100, got %v", result.Accepted[0].Value)
	}
}

func TestPlanner_Plan_OrdersAcceptedByAgentRank(t *testing.T) {
	p := New(testConfig(), NewHistory(64), zap.NewNop())
	proposals := []snapshot.Proposal{
		{Agent: "power", Actions: []snapshot.Action{
			{Target: snapshot.TargetCStateLimit, Value: 2, Priority: snapshot.PriorityNormal, OriginAgent: "power"},
		}},
		{Agent: "thermal", Actions: []snapshot.Action{
			{Target: snapshot.TargetFanProfile, Value: 50, Priority: snapshot.PriorityNormal, OriginAgent: "thermal"},
		}},
	}

	result := p.Plan(proposals, nil, time.Now())
	if len(result.Accepted) != 2 {
		t.Fatalf("expected 2 accepted actions, got %d", len(result.Accepted))
	}
	if result.Accepted[0].OriginAgent != "thermal" {
		t.Errorf("expected thermal first (higher rank), got %s", result.Accepted[0].OriginAgent)
	}
}
