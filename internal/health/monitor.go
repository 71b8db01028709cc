package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// Status is a subsystem's current health state.
type Status string

const (
	StatusHealthy  Status = "Healthy"
	StatusFailed   Status = "Failed"
	StatusDegraded Status = "Degraded"
)

// Probe is a non-mutating check for one subsystem (§4.H).
type Probe struct {
	Component string
	Check     func(ctx context.Context) error
}

// Event is one entry in the bounded health-event history ring (§4.H).
type Event struct {
	Timestamp time.Time
	Component string
	Status    Status
	Message   string
}

// componentState tracks one subsystem's current status and backoff.
type componentState struct {
	status  Status
	backoff *Backoff
}

// Monitor runs the independent 5s probe schedule and the emergency
// thermal safety path (§4.H). It never shares a goroutine with the
// orchestrator loop.
type Monitor struct {
	probes   []Probe
	interval time.Duration

	ec              *hal.EC
	emergencyCfg    EmergencyConfig
	lastEmergencyAt time.Time

	mu     sync.Mutex
	states map[string]*componentState
	events []Event
	maxEvents int

	log *zap.Logger
}

// EmergencyConfig holds the emergency thermal path's trigger thresholds.
type EmergencyConfig struct {
	CPUTempC    float64
	GPUTempC    float64
	FanRPM      int
	MinInterval time.Duration
}

// Config holds Monitor construction parameters.
type Config struct {
	ProbeInterval       time.Duration
	BackoffBase         time.Duration
	MaxBackoffAttempts  int
	EventHistorySize    int
	Emergency           EmergencyConfig
}

// New constructs a Monitor over the given probes and EC primitive.
func New(probes []Probe, ec *hal.EC, cfg Config, log *zap.Logger) *Monitor {
	states := make(map[string]*componentState, len(probes))
	for _, p := range probes {
		states[p.Component] = &componentState{
			status:  StatusHealthy,
			backoff: NewBackoff(cfg.BackoffBase, cfg.MaxBackoffAttempts),
		}
	}
	maxEvents := cfg.EventHistorySize
	if maxEvents < 1 {
		maxEvents = 1000
	}
	return &Monitor{
		probes:       probes,
		interval:     cfg.ProbeInterval,
		ec:           ec,
		emergencyCfg: cfg.Emergency,
		states:       states,
		maxEvents:    maxEvents,
		log:          log,
	}
}

// Run executes the probe schedule until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	for _, probe := range m.probes {
		m.probeOne(ctx, probe)
	}
}

func (m *Monitor) probeOne(ctx context.Context, probe Probe) {
	err := probe.Check(ctx)

	m.mu.Lock()
	state := m.states[probe.Component]
	m.mu.Unlock()

	if err == nil {
		m.mu.Lock()
		changed := state.status != StatusHealthy
		state.status = StatusHealthy
		state.backoff.Reset()
		m.mu.Unlock()
		if changed {
			m.recordEvent(probe.Component, StatusHealthy, "probe recovered")
		}
		return
	}

	m.mu.Lock()
	state.status = StatusFailed
	m.mu.Unlock()
	m.recordEvent(probe.Component, StatusFailed, err.Error())

	delay, ok := state.backoff.NextDelay()
	if !ok {
		m.mu.Lock()
		state.status = StatusDegraded
		m.mu.Unlock()
		m.recordEvent(probe.Component, StatusDegraded, "recovery attempts exhausted, permanently degraded")
		return
	}

	state.backoff.RecordAttempt(time.Now())
	m.log.Warn("scheduling recovery attempt",
		zap.String("component", probe.Component),
		zap.Duration("delay", delay),
		zap.Int("attempt", state.backoff.Attempts()),
	)
}

// StatusOf returns the current status of a component.
func (m *Monitor) StatusOf(component string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.states[component]
	if !ok {
		return "", false
	}
	return state.status, true
}

// AllStatuses returns a snapshot of every tracked component's current
// status, keyed by component name.
func (m *Monitor) AllStatuses() map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]Status, len(m.states))
	for name, state := range m.states {
		out[name] = state.status
	}
	return out
}

// Events returns a snapshot of the bounded event history.
func (m *Monitor) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Monitor) recordEvent(component string, status Status, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, Event{
		Timestamp: time.Now(),
		Component: component,
		Status:    status,
		Message:   message,
	})
	if len(m.events) > m.maxEvents {
		m.events = m.events[len(m.events)-m.maxEvents:]
	}
}

// CheckEmergencyThermal implements the emergency thermal safety path
// (§4.H): independent of agents, overrides, and the planner. If
// CPU >= EmergencyCPUTempC or GPU >= EmergencyGPUTempC and both fans
// are below EmergencyFanRPM, writes 0xFF to both fan EC registers
// directly (when an EC is present). Rate-limited to MinInterval between
// triggers.
func (m *Monitor) CheckEmergencyThermal(ctx context.Context, snap snapshot.Snapshot) bool {
	if snap.CPUTempC == nil && snap.GPUTempC == nil {
		return false
	}

	overTemp := (snap.CPUTempC != nil && *snap.CPUTempC >= m.emergencyCfg.CPUTempC) ||
		(snap.GPUTempC != nil && *snap.GPUTempC >= m.emergencyCfg.GPUTempC)
	if !overTemp {
		return false
	}

	fansLow := (snap.Fan1RPM == nil || *snap.Fan1RPM < m.emergencyCfg.FanRPM) &&
		(snap.Fan2RPM == nil || *snap.Fan2RPM < m.emergencyCfg.FanRPM)
	if !fansLow {
		return false
	}

	m.mu.Lock()
	if time.Since(m.lastEmergencyAt) < m.emergencyCfg.MinInterval {
		m.mu.Unlock()
		return false
	}
	m.lastEmergencyAt = time.Now()
	m.mu.Unlock()

	m.log.Error("EMERGENCY THERMAL TRIGGER: forcing fans to full speed",
		zap.Float64p("cpu_temp_c", snap.CPUTempC),
		zap.Float64p("gpu_temp_c", snap.GPUTempC),
	)

	if m.ec != nil {
		_ = m.ec.WriteRegister(ctx, hal.RegFan1Duty, 0xFF)
		_ = m.ec.WriteRegister(ctx, hal.RegFan2Duty, 0xFF)
	}

	m.recordEvent("emergency-thermal", StatusFailed, "forced both fans to full speed")
	return true
}
