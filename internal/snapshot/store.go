// Package snapshot — store.go
//
// Context Store: single-writer, many-reader publication of the current
// Snapshot. The orchestrator's tick goroutine is the only writer; every
// other goroutine reads the most recently published reference via an
// atomic.Pointer, never a torn read (§3 invariant 3, §5 ordering
// guarantees).
package snapshot

import (
	"sync/atomic"

	"github.com/thermopilot/thermopilot/internal/hal"
)

// Store holds the published Snapshot and derives workload/trend fields.
type Store struct {
	current atomic.Pointer[Snapshot]

	trend     *EWMA
	subs      []chan Snapshot
}

// NewStore creates a Store whose CPU-temp trend uses the given EWMA alpha.
func NewStore(trendAlpha float64) *Store {
	return &Store{trend: NewEWMA(trendAlpha)}
}

// Last returns the most recently published snapshot, or nil before the
// first Build call. Synchronous, lock-free read (§4.B last_snapshot()).
func (s *Store) Last() *Snapshot {
	return s.current.Load()
}

// Subscribe registers a channel that receives every future published
// snapshot. Implements §4.B's snapshot_stream() for subscribers; the
// channel is buffered so a slow subscriber cannot block publication.
func (s *Store) Subscribe(buffer int) <-chan Snapshot {
	ch := make(chan Snapshot, buffer)
	s.subs = append(s.subs, ch)
	return ch
}

// Build assembles a new Snapshot from a HAL read and a process list,
// classifies the workload, derives CPUTempTrend and DischargeBand, and
// publishes it atomically. Must only be called from the orchestrator's
// tick goroutine.
func (s *Store) Build(reading hal.Reading, hints []string) Snapshot {
	snap := Snapshot{
		Timestamp:            reading.Timestamp,
		CPUTempC:             reading.CPUTempC,
		GPUTempC:             reading.GPUTempC,
		Fan1RPM:              reading.Fan1RPM,
		Fan2RPM:              reading.Fan2RPM,
		CPUUtilPct:           reading.CPUUtilPct,
		GPUUtilPct:           reading.GPUUtilPct,
		CPUFreqGHz:           reading.CPUFreqGHz,
		Battery:              fromHALBattery(reading.Battery),
		GPUMode:              GPUMode(reading.GPUMode),
		DisplayTopology:      DisplayTopology(reading.DisplayTopology),
		RunningWorkloadHints: hints,
		ThrottleFlags:        reading.ThrottleFlags,
		CStateResidency:      CStateResidency{Pct: reading.CStateResidencyPct},
		PowerSchemeGUID:      reading.PowerSchemeGUID,
	}

	if snap.CPUTempC != nil {
		snap.CPUTempTrend = s.trend.Update(*snap.CPUTempC)
	} else {
		snap.CPUTempTrend = s.trend.Value()
	}
	snap.DischargeBand = BandFor(snap.Battery.DischargeMW)
	snap.WorkloadClass = classify(snap, hints)

	s.current.Store(&snap)
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
		}
	}
	return snap
}

func fromHALBattery(b hal.BatteryReading) Battery {
	return Battery{
		Pct:         b.Pct,
		Charging:    b.Charging,
		DischargeMW: b.DischargeMW,
		DesignMWh:   b.DesignMWh,
		FullMWh:     b.FullMWh,
		Cycles:      b.Cycles,
		TempC:       b.TempC,
	}
}

// classify derives the workload class from process hints, C-state
// distribution, and utilization (§4.B).
func classify(s Snapshot, hints []string) WorkloadClass {
	for _, h := range hints {
		switch h {
		case "gaming":
			return WorkloadGaming
		case "media-playback":
			return WorkloadMediaPlayback
		case "ai-workload":
			return WorkloadAIWorkload
		case "compilation":
			return WorkloadCompilation
		case "video-conferencing":
			return WorkloadVideoConferencing
		}
	}
	if s.CPUUtilPct == nil {
		return WorkloadUnknown
	}
	active := 100.0 - s.CStateResidency.Sum()
	switch {
	case *s.CPUUtilPct < 5 && active < 10:
		return WorkloadIdle
	case *s.CPUUtilPct > 60:
		return WorkloadHeavyProductivity
	case *s.CPUUtilPct > 15:
		return WorkloadLightProductivity
	default:
		return WorkloadIdle
	}
}
