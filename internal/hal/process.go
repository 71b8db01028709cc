// Package hal — process.go
//
// Process enumeration and per-process CPU time, used by the
// core-parking agent's "cumulative CPU time > 300 s" protected-process
// rule and by workload-hint derivation. Uses gopsutil's process
// enumeration afresh on every call; no collector is kept between calls.
package hal

import (
	"context"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is the subset of process state the engine's agents need.
type ProcessInfo struct {
	PID         int32
	Name        string
	CPUTimeSecs float64
	Priority    int32
}

// ProcessLister enumerates running processes on demand. Kept as a thin
// wrapper (rather than a cached collector) because the orchestrator
// already rate-limits calls via the tick cadence.
type ProcessLister struct{}

// NewProcessLister creates a ProcessLister.
func NewProcessLister() *ProcessLister { return &ProcessLister{} }

// List enumerates all running processes with name and cumulative CPU time.
func (p *ProcessLister) List(ctx context.Context) ([]ProcessInfo, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, newErr(KindHwTransient, "process.List", err)
	}

	out := make([]ProcessInfo, 0, len(procs))
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue
		}
		times, err := proc.TimesWithContext(ctx)
		var cpu float64
		if err == nil {
			cpu = times.User + times.System
		}
		prio, _ := proc.NiceWithContext(ctx)
		out = append(out, ProcessInfo{
			PID:         proc.Pid,
			Name:        name,
			CPUTimeSecs: cpu,
			Priority:    prio,
		})
	}
	return out, nil
}
