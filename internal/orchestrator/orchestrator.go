// Package orchestrator implements the Orchestrator Loop (§4.G): the
// Stopped -> Starting -> Running -> Stopping -> Stopped state machine
// that drives one tick's worth of snapshot build, agent proposals,
// planning, and execution.
package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/agent"
	"github.com/thermopilot/thermopilot/internal/executor"
	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// State is the orchestrator's lifecycle state.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

// String renders the state for logs and the public API.
func (s State) String() string {
	switch s {
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	default:
		return "Stopped"
	}
}

// Orchestrator drives the per-tick sequence: build snapshot, call each
// agent's Propose in fixed order, hand the proposal bag to the
// planner, hand accepted actions to the executor.
type Orchestrator struct {
	reader    *hal.Reader
	store     *snapshot.Store
	agents    *agent.Registry
	overrides *override.Registry
	plan      *planner.Planner
	history   *planner.History
	exec      *executor.Executor
	log       *zap.Logger

	mu           sync.Mutex
	state        State
	cancel       context.CancelFunc
	totalCycles  atomic.Uint64
	totalActions atomic.Uint64

	lowBatteryThrottle time.Duration
}

// Config bundles the Orchestrator's collaborators.
type Config struct {
	Reader             *hal.Reader
	Store              *snapshot.Store
	Agents             *agent.Registry
	Overrides          *override.Registry
	Planner            *planner.Planner
	History            *planner.History
	Executor           *executor.Executor
	LowBatteryThrottle time.Duration // tick interval floor below 20% battery
}

// New constructs an Orchestrator in the Stopped state.
func New(cfg Config, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		reader:             cfg.Reader,
		store:              cfg.Store,
		agents:             cfg.Agents,
		overrides:          cfg.Overrides,
		plan:               cfg.Planner,
		history:            cfg.History,
		exec:               cfg.Executor,
		log:                log,
		lowBatteryThrottle: cfg.LowBatteryThrottle,
	}
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Stats returns the running cycle/action counters.
type Stats struct {
	TotalCycles  uint64
	TotalActions uint64
}

// Stats returns the current engine statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{TotalCycles: o.totalCycles.Load(), TotalActions: o.totalActions.Load()}
}

// Start transitions Stopped -> Starting -> Running. A no-op if already
// Running (§4.G: "transitions are idempotent").
func (o *Orchestrator) Start(parent context.Context) {
	o.mu.Lock()
	if o.state == StateRunning || o.state == StateStarting {
		o.mu.Unlock()
		return
	}
	o.state = StateStarting
	ctx, cancel := context.WithCancel(parent)
	o.cancel = cancel
	o.state = StateRunning
	o.mu.Unlock()

	o.log.Info("orchestrator starting")
	_ = ctx
}

// Stop transitions Running -> Stopping -> Stopped. A stop lets the
// current tick finish (bounded by executor timeouts) before
// terminating (§4.G).
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if o.state != StateRunning {
		o.mu.Unlock()
		return
	}
	o.state = StateStopping
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()
	o.log.Info("orchestrator stopped")
}

// TickInterval returns the orchestrator's desired cadence, throttled to
// lowBatteryThrottle when battery is below 20% (§4.G).
func (o *Orchestrator) TickInterval(nominal time.Duration) time.Duration {
	last := o.store.Last()
	if last == nil {
		return nominal
	}
	if !last.Battery.Charging && last.Battery.Pct < 20 && o.lowBatteryThrottle > nominal {
		return o.lowBatteryThrottle
	}
	return nominal
}

// RunTick executes one full orchestrator tick (§4.G steps 1-5). Safe to
// call only while Running; the caller (driven by the master tick
// service's FastTick) is responsible for cadence.
func (o *Orchestrator) RunTick(ctx context.Context, hints []string) {
	if o.State() != StateRunning {
		return
	}

	reading := o.reader.Read(ctx)
	snap := o.store.Build(reading, hints)

	var proposals []snapshot.Proposal
	for _, a := range o.agents.Ordered() {
		proposals = append(proposals, a.Propose(snap, o.overrides, o.history.ForAgent(a.Name())))
	}

	result := o.plan.Plan(proposals, o.overrides, time.Now())

	cycleID := o.totalCycles.Add(1)
	cycle := o.exec.Run(ctx, cycleID, result)
	o.totalActions.Add(uint64(cycle.Executed))
}

// ForceAction runs a single operator-issued action through the planner
// and executor outside the normal tick cadence, used by the public
// API's force_gpu_mode (§4.J: "Critical priority, bypasses dwell").
// Plan still applies; Critical priority is what actually bypasses the
// override filter and minimum-dwell rules, not this bypass of cadence.
func (o *Orchestrator) ForceAction(ctx context.Context, action snapshot.Action) executor.CycleResult {
	proposal := snapshot.Proposal{
		Agent:    action.OriginAgent,
		Actions:  []snapshot.Action{action},
		Priority: action.Priority,
	}
	result := o.plan.Plan([]snapshot.Proposal{proposal}, o.overrides, time.Now())

	cycleID := o.totalCycles.Add(1)
	cycle := o.exec.Run(ctx, cycleID, result)
	o.totalActions.Add(uint64(cycle.Executed))
	return cycle
}
