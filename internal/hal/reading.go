// Package hal — reading.go
//
// Reading bundles one tick's worth of raw HAL output before the context
// store (internal/snapshot) shapes it into a Snapshot. Kept in hal
// rather than snapshot so the snapshot package never imports hardware
// syscall machinery directly.
package hal

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Reading is the raw per-tick hardware read, prior to workload
// classification and trend derivation.
type Reading struct {
	Timestamp time.Time

	CPUTempC   *float64
	GPUTempC   *float64
	Fan1RPM    *int
	Fan2RPM    *int
	CPUUtilPct *float64
	GPUUtilPct *float64
	CPUFreqGHz *float64

	Battery BatteryReading

	GPUMode         string
	DisplayTopology Topology

	ThrottleFlags      uint32
	CStateResidencyPct [10]float64
	PowerSchemeGUID    string
}

// Sources groups the HAL primitives the Reader pulls from each tick.
type Sources struct {
	EC      *EC
	MSR     *MSR // nil if capability probe found no MSR access
	Battery *Battery
	Display *Display
	Power   *Power
	GPU     *GPU // nil unless Caps.HasNVAPI gated construction found a driver
	Caps    Capabilities
}

// Reader assembles one Reading per tick from the configured Sources.
// Missing sensors are allowed: fields are left nil rather than erroring
// the whole read (§4.B "missing sensors are allowed").
type Reader struct {
	src Sources
}

// NewReader creates a Reader over the given Sources.
func NewReader(src Sources) *Reader { return &Reader{src: src} }

// Read assembles one Reading. Individual primitive failures degrade
// gracefully: the corresponding field stays nil/zero rather than
// aborting the whole tick, matching §4.B's missing-sensor contract.
func (r *Reader) Read(ctx context.Context) Reading {
	reading := Reading{Timestamp: time.Now()}

	if r.src.MSR != nil {
		if raw, err := r.src.MSR.Read(0, MSRThermStatus); err == nil {
			ts := DecodeThermStatus(raw)
			v := float64(100 - ts.DigitalReadout)
			reading.CPUTempC = &v
		}
		if raw, err := r.src.MSR.Read(0, MSRPerfStatus); err == nil {
			ghz := DecodePerfStatusGHz(raw)
			reading.CPUFreqGHz = &ghz
		}
	}

	if r.src.Battery != nil {
		if b, err := r.src.Battery.Info(ctx); err == nil {
			reading.Battery = b
		}
	}

	if r.src.Display != nil {
		if topo, err := r.src.Display.EnumerateTopology(ctx); err == nil {
			reading.DisplayTopology = topo
		}
	}

	if r.src.Power != nil {
		if guid, err := r.src.Power.GetActiveScheme(ctx); err == nil {
			reading.PowerSchemeGUID = guid
		}
	}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		v := pcts[0]
		reading.CPUUtilPct = &v
	}

	if r.src.Caps.HasNVAPI && r.src.GPU != nil {
		if g, err := r.src.GPU.Read(ctx); err == nil {
			temp, util := g.TempC, g.UtilPct
			reading.GPUTempC = &temp
			reading.GPUUtilPct = &util
		}
	}

	if rpm1, err := readHwmonFanRPM(1); err == nil {
		reading.Fan1RPM = &rpm1
	}
	if rpm2, err := readHwmonFanRPM(2); err == nil {
		reading.Fan2RPM = &rpm2
	}

	return reading
}

// readHwmonFanRPM reads a fan tachometer from the generic Linux hwmon
// sysfs interface. Best-effort: the exact hwmonN path is vendor-specific
// and left to a udev symlink resolved at the call site in a full
// deployment; here the convention /sys/class/hwmon/hwmon0/fanN_input is
// assumed.
func readHwmonFanRPM(fan int) (int, error) {
	path := fmt.Sprintf("/sys/class/hwmon/hwmon0/fan%d_input", fan)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, newErr(KindHwUnavailable, "hal.readHwmonFanRPM", err)
	}
	var rpm int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &rpm); err != nil {
		return 0, newErr(KindHwInvalid, "hal.readHwmonFanRPM", err)
	}
	return rpm, nil
}
