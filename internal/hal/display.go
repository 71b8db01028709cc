// Package hal — display.go
//
// Refresh rate get/set/enumerate and display topology enumeration
// (§4.A). Refresh rate control shells out to the display server's mode
// control tool (xrandr-equivalent) with a timeout, matching the
// power-scheme invocation pattern below.
package hal

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Display wraps refresh-rate and topology primitives.
type Display struct {
	timeout time.Duration
	runner  func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewDisplay creates a Display primitive set with the given per-call
// timeout (§4.A: "each call has a 1 s timeout").
func NewDisplay(timeout time.Duration) *Display {
	return &Display{timeout: timeout, runner: runCommand}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	return cmd.Output()
}

// GetRefreshRate returns the primary display's current refresh rate in Hz.
func (d *Display) GetRefreshRate(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.runner(ctx, "xrandr", "--current")
	if err != nil {
		return 0, newErr(KindHwUnavailable, "display.GetRefreshRate", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(line, "*") {
			fields := strings.Fields(line)
			for _, f := range fields {
				if strings.HasSuffix(f, "*+") || strings.HasSuffix(f, "*") {
					hzStr := strings.TrimRight(f, "*+")
					if hz, err := strconv.ParseFloat(hzStr, 64); err == nil {
						return int(hz + 0.5), nil
					}
				}
			}
		}
	}
	return 0, Invalid("display.GetRefreshRate")
}

// SetRefreshRate sets the primary display's refresh rate. Swallows a
// non-zero exit with a logged warning at the caller, per §4.A.
func (d *Display) SetRefreshRate(ctx context.Context, hz int) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	if _, err := d.runner(ctx, "xrandr", "--rate", strconv.Itoa(hz)); err != nil {
		return newErr(KindHwTransient, "display.SetRefreshRate", err)
	}
	return nil
}

// EnumerateRefreshRates lists the refresh rates supported by the
// currently selected display mode.
func (d *Display) EnumerateRefreshRates(ctx context.Context) ([]int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.runner(ctx, "xrandr", "--current")
	if err != nil {
		return nil, newErr(KindHwUnavailable, "display.EnumerateRefreshRates", err)
	}
	var rates []int
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.HasPrefix(line, "   ") {
			continue
		}
		for _, f := range strings.Fields(line) {
			hzStr := strings.TrimRight(f, "*+")
			if hz, err := strconv.ParseFloat(hzStr, 64); err == nil {
				rates = append(rates, int(hz+0.5))
			}
		}
	}
	return rates, nil
}

// Topology reports external-display attachment relative to the dGPU.
type Topology struct {
	HasExternalOnDGPU bool
	DGPUDisplayCount  int
}

// EnumerateTopology counts connected displays via xrandr. The GPU binding
// is not inspected: every listed display counts toward DGPUDisplayCount,
// and HasExternalOnDGPU is set whenever more than one display is listed.
func (d *Display) EnumerateTopology(ctx context.Context) (Topology, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	out, err := d.runner(ctx, "xrandr", "--listmonitors")
	if err != nil {
		return Topology{}, newErr(KindHwUnavailable, "display.EnumerateTopology", err)
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	count := 0
	if len(lines) > 0 {
		count = len(lines) - 1 // first line is a "Monitors: N" header
	}
	return Topology{HasExternalOnDGPU: count > 1, DGPUDisplayCount: count}, nil
}
