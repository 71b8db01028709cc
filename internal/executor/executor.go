// Package executor implements the Action Executor (§4.F): it applies
// the Conflict Planner's ordered action list, one HAL primitive (or a
// tight composition) per action, under a per-action timeout. A failed
// action is isolated — the next action still runs.
package executor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// Apply executes one action against the HAL. Returns an error if the
// action failed; the caller records failure without aborting the cycle.
type Apply func(ctx context.Context, action snapshot.Action) error

// Dispatcher maps an ActionTarget to the Apply function responsible for
// it, constructed explicitly by cmd/thermopilotd and handed to the
// executor (consistent with §9's explicit-construction redesign).
type Dispatcher map[snapshot.ActionTarget]Apply

// Outcome records one action's execution result.
type Outcome struct {
	Action   snapshot.Action
	Err      error
	Duration time.Duration
}

// CycleResult is emitted as OptimizationCycleCompleted (§4.F).
type CycleResult struct {
	CycleID   uint64
	Accepted  int
	Rejected  int
	Executed  int
	Failed    int
	Duration  time.Duration
	Outcomes  []Outcome
}

// Executor applies accepted actions in order, under a per-action timeout.
type Executor struct {
	dispatch Dispatcher
	timeout  time.Duration
	history  *planner.History
	log      *zap.Logger
}

// New constructs an Executor. timeout is the per-action bound (§4.F
// default 15s).
func New(dispatch Dispatcher, timeout time.Duration, history *planner.History, log *zap.Logger) *Executor {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Executor{dispatch: dispatch, timeout: timeout, history: history, log: log}
}

// Run executes result.Accepted in order, recording a history entry
// after each success and reporting a CycleResult.
func (e *Executor) Run(ctx context.Context, cycleID uint64, result planner.Result) CycleResult {
	start := time.Now()
	cycle := CycleResult{
		CycleID:  cycleID,
		Accepted: len(result.Accepted),
		Rejected: len(result.Rejected),
	}

	for _, action := range result.Accepted {
		outcome := e.runOne(ctx, action)
		cycle.Outcomes = append(cycle.Outcomes, outcome)
		if outcome.Err != nil {
			cycle.Failed++
			e.log.Warn("action execution failed",
				zap.String("target", string(action.Target)),
				zap.String("origin_agent", action.OriginAgent),
				zap.Error(outcome.Err),
			)
			continue
		}
		cycle.Executed++
	}

	cycle.Duration = time.Since(start)
	e.log.Debug("optimization cycle completed",
		zap.Uint64("cycle_id", cycleID),
		zap.Int("accepted", cycle.Accepted),
		zap.Int("rejected", cycle.Rejected),
		zap.Int("executed", cycle.Executed),
		zap.Int("failed", cycle.Failed),
		zap.Duration("duration", cycle.Duration),
	)
	return cycle
}

func (e *Executor) runOne(ctx context.Context, action snapshot.Action) Outcome {
	apply, ok := e.dispatch[action.Target]
	if !ok {
		return Outcome{Action: action, Err: fmt.Errorf("executor: no dispatcher registered for target %q", action.Target)}
	}

	actionCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- apply(actionCtx, action)
	}()

	var err error
	select {
	case err = <-done:
	case <-actionCtx.Done():
		err = actionCtx.Err()
	}

	if err == nil {
		e.history.Record(action, time.Now())
	}

	return Outcome{Action: action, Err: err, Duration: time.Since(start)}
}
