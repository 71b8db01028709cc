// Package hal — capability.go
//
// Typed capability object computed once at startup (SPEC_FULL §9 design
// note: "P/Invoke + try/catch for availability probing → typed
// capability object"). Agents branch on Capabilities rather than
// re-probing hardware on every call.
package hal

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// Capabilities is a read-only snapshot of what this machine's HAL can do,
// probed once by Probe() and never mutated afterward.
type Capabilities struct {
	HasEC       bool
	HasMSR      bool
	HasNVAPI    bool
	IsHybridCPU bool
}

// Probe detects EC debugfs access, per-CPU MSR device files, an NVIDIA
// vendor interface, and hybrid (P-core/E-core) CPU topology. Every probe
// is best-effort: a failure simply clears the corresponding flag rather
// than aborting startup, per §4.A's "failed probe permanently disables
// MSR-dependent agents with a logged reason" contract — the caller logs
// the reason, Probe itself only reports the outcome.
func Probe() Capabilities {
	return Capabilities{
		HasEC:       probeEC(),
		HasMSR:      probeMSR(),
		HasNVAPI:    probeNVAPI(),
		IsHybridCPU: probeHybridCPU(),
	}
}

func probeEC() bool {
	_, err := os.Stat(ecDebugfsPath)
	return err == nil
}

func probeMSR() bool {
	_, err := os.Stat("/dev/cpu/0/msr")
	return err == nil
}

func probeNVAPI() bool {
	_, err := os.Stat("/proc/driver/nvidia/version")
	return err == nil
}

// probeHybridCPU inspects /sys/devices/system/cpu/cpu*/topology for more
// than one distinct physical_package_id/core grouping pattern consistent
// with big.LITTLE. This is a best-effort heuristic, not a full CPUID
// decode (SPEC_FULL §9 open question 3: CPUID intent left unresolved).
func probeHybridCPU() bool {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return false
	}
	entries, err := os.ReadDir("/sys/devices/system/cpu")
	if err != nil {
		return false
	}
	classes := map[string]struct{}{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "cpu") || len(name) < 4 {
			continue
		}
		data, err := os.ReadFile("/sys/devices/system/cpu/" + name + "/topology/core_cpus_list")
		if err != nil {
			continue
		}
		classes[string(data)] = struct{}{}
	}
	return len(classes) > 1
}
