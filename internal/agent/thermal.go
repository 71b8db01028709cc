package agent

import (
	"fmt"

	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

// thermal fan curve breakpoints, keyed by temperature (°C) → fan duty (%).
// Piecewise-linear between points, clamped to the endpoints outside the
// table's range.
var fanCurve = []struct {
	tempC  float64
	dutyPc int
}{
	{50, 20},
	{65, 40},
	{75, 60},
	{85, 85},
	{95, 100},
}

// thresholds for Critical-priority escalation (§4.D).
const (
	thermalCriticalCPUTempC = 90.0
	thermalCriticalGPUTempC = 85.0
)

// Thermal proposes fan control actions from CPU/GPU temperature and trend.
type Thermal struct{}

// NewThermal constructs the thermal agent.
func NewThermal() *Thermal { return &Thermal{} }

// Name implements Agent.
func (t *Thermal) Name() string { return "thermal" }

// Propose implements Agent. One piecewise duty curve is applied to
// cpu_temp and to gpu_temp and the larger duty wins; the power mode is
// not an input. The trend (snapshot.CPUTempTrend, computed upstream by
// the context store's EWMA) only raises the priority to High; it does
// not change the duty.
func (t *Thermal) Propose(snap snapshot.Snapshot, overrides *override.Registry, hist History) snapshot.Proposal {
	if snap.CPUTempC == nil {
		return snapshot.Proposal{Agent: t.Name()}
	}

	cpuTemp := *snap.CPUTempC
	gpuTemp := 0.0
	if snap.GPUTempC != nil {
		gpuTemp = *snap.GPUTempC
	}

	priority := snapshot.PriorityNormal
	if cpuTemp >= thermalCriticalCPUTempC || gpuTemp >= thermalCriticalGPUTempC {
		priority = snapshot.PriorityCritical
	} else if snap.CPUTempTrend >= thermalCriticalCPUTempC-5 {
		priority = snapshot.PriorityHigh
	}

	duty := dutyForTemp(cpuTemp)
	if gpuDuty := dutyForTemp(gpuTemp); gpuDuty > duty {
		duty = gpuDuty
	}

	actions := []snapshot.Action{
		{
			Target:      snapshot.TargetFanProfile,
			Value:       duty,
			Priority:    priority,
			OriginAgent: t.Name(),
			Rationale:   fmt.Sprintf("cpu=%.1fC gpu=%.1fC trend=%.2f -> duty=%d%%", cpuTemp, gpuTemp, snap.CPUTempTrend, duty),
		},
	}

	if priority == snapshot.PriorityCritical {
		actions = append(actions, snapshot.Action{
			Target:      snapshot.TargetFanFullSpeed,
			Value:       true,
			Priority:    snapshot.PriorityCritical,
			OriginAgent: t.Name(),
			Rationale:   "temperature above critical hysteresis threshold",
		})
	}

	return snapshot.Proposal{Agent: t.Name(), Actions: actions, Priority: priority}
}

// dutyForTemp interpolates the fan curve for a single temperature reading.
func dutyForTemp(tempC float64) int {
	if tempC <= fanCurve[0].tempC {
		return fanCurve[0].dutyPc
	}
	last := fanCurve[len(fanCurve)-1]
	if tempC >= last.tempC {
		return last.dutyPc
	}
	for i := 1; i < len(fanCurve); i++ {
		lo, hi := fanCurve[i-1], fanCurve[i]
		if tempC <= hi.tempC {
			frac := (tempC - lo.tempC) / (hi.tempC - lo.tempC)
			return lo.dutyPc + int(frac*float64(hi.dutyPc-lo.dutyPc))
		}
	}
	return last.dutyPc
}
