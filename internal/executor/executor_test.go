package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func TestExecutor_Run_SuccessRecordsHistory(t *testing.T) {
	hist := planner.NewHistory(16)
	dispatch := Dispatcher{
		snapshot.TargetFanProfile: func(ctx context.Context, a snapshot.Action) error { return nil },
	}
	e := New(dispatch, time.Second, hist, zap.NewNop())

	result := planner.Result{Accepted: []snapshot.Action{
		{Target: snapshot.TargetFanProfile, OriginAgent: "thermal"},
	}}

	cycle := e.Run(context.Background(), 1, result)
	if cycle.Executed != 1 || cycle.Failed != 0 {
		t.Fatalf("expected 1 executed, 0 failed, got executed=%d failed=%d", cycle.Executed, cycle.Failed)
	}
	if _, ok := hist.LastChange(snapshot.TargetFanProfile); !ok {
		t.Error("expected successful action to be recorded in history")
	}
}

func TestExecutor_Run_FailureIsolatesSubsequentActions(t *testing.T) {
	hist := planner.NewHistory(16)
	dispatch := Dispatcher{
		snapshot.TargetFanProfile:    func(ctx context.Context, a snapshot.Action) error { return errors.New("ec write failed") },
		snapshot.TargetCStateLimit: func(ctx context.Context, a snapshot.Action) error { return nil },
	}
	e := New(dispatch, time.Second, hist, zap.NewNop())

	result := planner.Result{Accepted: []snapshot.Action{
		{Target: snapshot.TargetFanProfile, OriginAgent: "thermal"},
		{Target: snapshot.TargetCStateLimit, OriginAgent: "power"},
	}}

	cycle := e.Run(context.Background(), 1, result)
	if cycle.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", cycle.Failed)
	}
	if cycle.Executed != 1 {
		t.Errorf("expected the second action to still execute, got executed=%d", cycle.Executed)
	}
	if _, ok := hist.LastChange(snapshot.TargetFanProfile); ok {
		t.Error("expected failed action not to be recorded in history")
	}
}

func TestExecutor_Run_MissingDispatcherIsAFailure(t *testing.T) {
	hist := planner.NewHistory(16)
	e := New(Dispatcher{}, time.Second, hist, zap.NewNop())

	result := planner.Result{Accepted: []snapshot.Action{
		{Target: snapshot.TargetFanProfile, OriginAgent: "thermal"},
	}}

	cycle := e.Run(context.Background(), 1, result)
	if cycle.Failed != 1 {
		t.Errorf("expected missing dispatcher to count as a failure, got %d", cycle.Failed)
	}
}

func TestExecutor_Run_ActionTimesOut(t *testing.T) {
	hist := planner.NewHistory(16)
	dispatch := Dispatcher{
		snapshot.TargetFanProfile: func(ctx context.Context, a snapshot.Action) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	e := New(dispatch, 10*time.Millisecond, hist, zap.NewNop())

	result := planner.Result{Accepted: []snapshot.Action{
		{Target: snapshot.TargetFanProfile, OriginAgent: "thermal"},
	}}

	cycle := e.Run(context.Background(), 1, result)
	if cycle.Failed != 1 {
		t.Errorf("expected timeout to count as a failure, got %d", cycle.Failed)
	}
}
