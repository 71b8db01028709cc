// Package hal — battery.go
//
// Battery telemetry via the hybrid rule (§4.A): fast path reads the EC's
// discharge-rate registers; OS path reads the kernel's
// power_supply sysfs class for capacity/cycle-count/design-capacity,
// the Linux realization named in §4.A.1. Reported percentage is
// OS-derived (stable); reported discharge rate is EC-derived
// (real-time). If the EC path exceeds a configurable consecutive-
// failure threshold, a 30 s circuit breaker opens and OS-only data is
// served (§8 boundary test).
package hal

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/sensors"
)

// batterySysfsDir is the Linux power_supply sysfs path for the primary
// battery. Vendor-specific in general; BAT0 is the common case.
var batterySysfsDir = "/sys/class/power_supply/BAT0"

// BatteryReading mirrors Snapshot.Battery; duplicated here so the hal
// package has no dependency on internal/snapshot.
type BatteryReading struct {
	Pct         float64
	Charging    bool
	DischargeMW float64
	DesignMWh   float64
	FullMWh     float64
	Cycles      int
	TempC       *float64
}

// ECDischargeReader reads the EC's real-time discharge rate. Separated
// as an interface so tests can stub the EC path independently of the OS
// battery path.
type ECDischargeReader interface {
	ReadDischargeMW(ctx context.Context) (float64, error)
}

type ecDischargeReader struct{ ec *EC }

func (r ecDischargeReader) ReadDischargeMW(ctx context.Context) (float64, error) {
	// Discharge current register, little-endian 16-bit across two bytes
	// adjacent to the fan registers on this vendor's EC map; exact byte
	// assignment is vendor-opaque, values here drive the hybrid blend.
	if r.ec == nil {
		return 0, Unavailable("battery.ReadDischargeMW")
	}
	lo, err := r.ec.ReadRegister(ctx, 0xA0)
	if err != nil {
		return 0, err
	}
	hi, err := r.ec.ReadRegister(ctx, 0xA1)
	if err != nil {
		return 0, err
	}
	raw := uint16(hi)<<8 | uint16(lo)
	return float64(raw), nil
}

// Battery combines the EC discharge-rate fast path with the OS
// capacity/cycle-count path per the hybrid rule.
type Battery struct {
	mu            sync.Mutex
	ec            ECDischargeReader
	failures      int
	failThreshold int
	breakerUntil  time.Time
}

// NewBattery creates a Battery hybrid reader. failThreshold is the
// consecutive EC failure count that opens the breaker (default 5, §4.A).
func NewBattery(ec *EC, failThreshold int) *Battery {
	if failThreshold <= 0 {
		failThreshold = 5
	}
	return &Battery{ec: ecDischargeReader{ec: ec}, failThreshold: failThreshold}
}

// Info returns the blended battery reading. OS fields come from the
// power_supply sysfs class; DischargeMW comes from the EC unless the
// breaker is open.
func (b *Battery) Info(ctx context.Context) (BatteryReading, error) {
	reading, err := readBatterySysfs()

	if stats, sensErr := sensors.TemperaturesWithContext(ctx); sensErr == nil {
		for _, s := range stats {
			if strings.Contains(strings.ToLower(s.SensorKey), "batt") {
				t := s.Temperature
				reading.TempC = &t
				break
			}
		}
	}

	b.mu.Lock()
	breakerOpen := !b.breakerUntil.IsZero() && time.Now().Before(b.breakerUntil)
	b.mu.Unlock()

	if !breakerOpen {
		mw, ecErr := b.ec.ReadDischargeMW(ctx)
		b.mu.Lock()
		if ecErr != nil {
			b.failures++
			if b.failures >= b.failThreshold {
				b.breakerUntil = time.Now().Add(30 * time.Second)
			}
		} else {
			b.failures = 0
			reading.DischargeMW = mw
		}
		b.mu.Unlock()
	}

	if err != nil {
		return reading, newErr(KindHwTransient, "battery.Info", err)
	}
	return reading, nil
}

// BreakerOpen reports whether the EC discharge-rate circuit breaker is
// currently suppressing EC reads (used by tests and the health monitor).
func (b *Battery) BreakerOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.breakerUntil.IsZero() && time.Now().Before(b.breakerUntil)
}

// readBatterySysfs reads capacity, charging state, cycle count, and
// design/full energy from the kernel's power_supply sysfs class (§4.A.1).
// energy_full/energy_full_design are reported in µWh; converted to mWh.
func readBatterySysfs() (BatteryReading, error) {
	var reading BatteryReading

	capacity, err := readSysfsInt(batterySysfsDir + "/capacity")
	if err != nil {
		return reading, newErr(KindHwUnavailable, "battery.readSysfs", err)
	}
	reading.Pct = float64(capacity)

	if status, err := os.ReadFile(batterySysfsDir + "/status"); err == nil {
		reading.Charging = strings.TrimSpace(string(status)) == "Charging"
	}

	if cycles, err := readSysfsInt(batterySysfsDir + "/cycle_count"); err == nil {
		reading.Cycles = cycles
	}

	if uwh, err := readSysfsInt(batterySysfsDir + "/energy_full"); err == nil {
		reading.FullMWh = float64(uwh) / 1000
	}
	if uwh, err := readSysfsInt(batterySysfsDir + "/energy_full_design"); err == nil {
		reading.DesignMWh = float64(uwh) / 1000
	}

	return reading, nil
}

func readSysfsInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var v int
	if _, err := fmt.Sscanf(strings.TrimSpace(string(data)), "%d", &v); err != nil {
		return 0, err
	}
	return v, nil
}
