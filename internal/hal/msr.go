// Package hal — msr.go
//
// Model-specific register read/write via /dev/cpu/<N>/msr. Availability
// is probed once at startup (capability.go); a failed probe permanently
// disables MSR-dependent agents with a logged reason (§4.A).
//
// MSRs of interest (§6 hardware surface):
//
//	0x19C IA32_THERM_STATUS     bit 0 thermal, bit 1 prochot, bit 2
//	                            critical, bit 3 pkg-throttle, bits
//	                            22:16 digital readout offset from Tj_max.
//	0x198 IA32_PERF_STATUS      bits 15:8 current ratio; ratio*100MHz = freq.
//	0x199 IA32_PERF_CTL         bits 15:8 requested ratio, bit 32 turbo disable.
//	0xE2  MSR_PKG_C_STATE_LIMIT bits 2:0 limit code (0=no-limit, 7=C10).
package hal

import (
	"fmt"
	"os"
	"sync"
)

const (
	MSRThermStatus     = 0x19C
	MSRPerfStatus      = 0x198
	MSRPerfCtl         = 0x199
	MSRPkgCStateLimit  = 0xE2
)

// MSR provides per-logical-processor MSR access. One file descriptor is
// opened per CPU at startup and kept open for the engine's lifetime.
type MSR struct {
	mu    sync.Mutex
	files map[int]*os.File
}

// OpenMSR opens /dev/cpu/<N>/msr for each of the given logical processor
// indices. Returns Unavailable if any open fails — a failed probe
// permanently disables MSR-dependent agents per §4.A.
func OpenMSR(cpus []int) (*MSR, error) {
	m := &MSR{files: make(map[int]*os.File, len(cpus))}
	for _, cpu := range cpus {
		f, err := os.OpenFile(fmt.Sprintf("/dev/cpu/%d/msr", cpu), os.O_RDWR, 0)
		if err != nil {
			m.Close()
			return nil, newErr(KindHwUnavailable, "msr.Open", err)
		}
		m.files[cpu] = f
	}
	return m, nil
}

// Close releases all open MSR file descriptors.
func (m *MSR) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.files {
		_ = f.Close()
	}
	m.files = nil
}

// Read reads an 8-byte MSR value for the given logical processor.
func (m *MSR) Read(cpu int, msr int64) (uint64, error) {
	m.mu.Lock()
	f, ok := m.files[cpu]
	m.mu.Unlock()
	if !ok {
		return 0, Unavailable("msr.Read")
	}

	var buf [8]byte
	if _, err := f.ReadAt(buf[:], msr); err != nil {
		return 0, newErr(KindHwTransient, "msr.Read", err)
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// Write writes an 8-byte MSR value for the given logical processor.
func (m *MSR) Write(cpu int, msr int64, value uint64) error {
	m.mu.Lock()
	f, ok := m.files[cpu]
	m.mu.Unlock()
	if !ok {
		return Unavailable("msr.Write")
	}

	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(value >> (8 * i))
	}
	if _, err := f.WriteAt(buf[:], msr); err != nil {
		return newErr(KindHwTransient, "msr.Write", err)
	}
	return nil
}

// ThermStatus decodes IA32_THERM_STATUS bits used by the thermal agent.
type ThermStatus struct {
	ThermalStatus  bool
	ProchotActive  bool
	Critical       bool
	PkgThrottle    bool
	DigitalReadout int // offset from Tj_max, degrees C
}

// DecodeThermStatus decodes a raw IA32_THERM_STATUS value.
func DecodeThermStatus(raw uint64) ThermStatus {
	return ThermStatus{
		ThermalStatus:  raw&0x1 != 0,
		ProchotActive:  raw&0x2 != 0,
		Critical:       raw&0x4 != 0,
		PkgThrottle:    raw&0x8 != 0,
		DigitalReadout: int((raw >> 16) & 0x7F),
	}
}

// DecodePerfStatusGHz decodes IA32_PERF_STATUS into a frequency in GHz.
func DecodePerfStatusGHz(raw uint64) float64 {
	ratio := (raw >> 8) & 0xFF
	return float64(ratio) * 0.1 // ratio * 100MHz = frequency
}

// EncodeCStateLimit encodes a C-state limit code (0=no-limit, 7=C10)
// into an MSR_PKG_C_STATE_LIMIT write value.
func EncodeCStateLimit(code uint8) uint64 {
	return uint64(code & 0x7)
}
