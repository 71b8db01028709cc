// Package main — cmd/thermopilot-bench/main.go
//
// thermopilot-bench measures orchestrator.RunTick wall-clock latency:
// the fast-tick cadence (§4.A, default 500ms) must leave enough headroom
// for the daemon to stay responsive even when every agent proposes on
// every cycle.
//
// Method:
//  1. Builds an Orchestrator wired with the thermal, battery, power and
//     GPU agents (the GPU agent without a predictor) over a
//     zero-value hal.Sources (no real hardware access — this isolates
//     agent/planner/executor overhead from HAL I/O latency, which is
//     bounded separately by HAL.PrimitiveTimeout).
//  2. Calls RunTick in a tight loop, timing each call with
//     time.Now()/time.Since().
//  3. Writes per-iteration latency to a CSV file.
//  4. Reports p50/p95/p99 and fails if p99 exceeds the fast-tick budget.
//
// Output CSV columns: iteration, latency_us
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/thermopilot/thermopilot/internal/agent"
	"github.com/thermopilot/thermopilot/internal/executor"
	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/orchestrator"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/snapshot"
)

func main() {
	iterations := flag.Int("iterations", 10000, "Number of RunTick calls to measure")
	outputFile := flag.String("output", "tick_latency_raw.csv", "Output CSV file path")
	budgetUs := flag.Int("budget-us", 250000, "p99 latency budget in microseconds (default: half the 500ms fast-tick interval)")
	flag.Parse()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"iteration", "latency_us"})

	orch := buildOrchestrator()
	ctx := context.Background()
	orch.Start(ctx)
	defer orch.Stop()

	const histBuckets = 1_000_000 // 1s of microsecond resolution
	hist := make([]int, histBuckets)

	for i := 0; i < *iterations; i++ {
		start := time.Now()
		orch.RunTick(ctx, nil)
		latency := time.Since(start)

		latencyUs := int(latency.Microseconds())
		if latencyUs < len(hist) {
			hist[latencyUs]++
		} else {
			hist[len(hist)-1]++
		}

		_ = w.Write([]string{strconv.Itoa(i), strconv.Itoa(latencyUs)})
	}

	p50, p95, p99 := computePercentiles(hist, *iterations)

	fmt.Printf("Tick Latency Results (%d iterations)\n", *iterations)
	fmt.Printf("  p50: %dµs\n", p50)
	fmt.Printf("  p95: %dµs\n", p95)
	fmt.Printf("  p99: %dµs\n", p99)
	fmt.Printf("  Output: %s\n", *outputFile)

	if p99 > *budgetUs {
		fmt.Fprintf(os.Stderr, "FAIL: p99 %dµs exceeds %dµs budget\n", p99, *budgetUs)
		os.Exit(1)
	}
}

// buildOrchestrator wires the thermal, battery, power and GPU agents over a zero-value HAL
// reader, the same construction orchestrator_test.go uses to isolate
// control-loop overhead from real hardware access latency.
func buildOrchestrator() *orchestrator.Orchestrator {
	log := zap.NewNop()
	history := planner.NewHistory(256)

	noop := func(ctx context.Context, a snapshot.Action) error { return nil }
	dispatch := executor.Dispatcher{
		snapshot.TargetFanProfile:       noop,
		snapshot.TargetFanSpeedCPU:      noop,
		snapshot.TargetFanSpeedGPU:      noop,
		snapshot.TargetFanFullSpeed:     noop,
		snapshot.TargetGPUHybridMode:    noop,
		snapshot.TargetCPUPerfCtlRatio:  noop,
		snapshot.TargetCStateLimit:      noop,
		snapshot.TargetCoreParkMinPct:   noop,
		snapshot.TargetCoreParkMaxPct:   noop,
		snapshot.TargetRefreshRateHz:    noop,
		snapshot.TargetDisplayBrightness: noop,
		snapshot.TargetKbdBrightness:    noop,
		snapshot.TargetProcessAffinity:  noop,
		snapshot.TargetWifiPsaveMode:    noop,
		snapshot.TargetMemoryProfile:    noop,
	}

	return orchestrator.New(orchestrator.Config{
		Reader:    hal.NewReader(hal.Sources{}),
		Store:     snapshot.NewStore(0.3),
		Agents:    agent.NewRegistry([]agent.Agent{agent.NewThermal(), agent.NewBattery(), agent.NewPower(), agent.NewGPU(nil)}),
		Overrides: override.New(nil, 5*time.Minute),
		Planner:   planner.New(planner.Config{GPUModeDwell: 5 * time.Minute, OscillationWindow: time.Minute, OscillationMaxChanges: 3}, history, log),
		History:   history,
		Executor:  executor.New(dispatch, 2*time.Second, history, log),
	}, log)
}

func computePercentiles(hist []int, total int) (p50, p95, p99 int) {
	targets := []struct {
		pct float64
		out *int
	}{
		{0.50, &p50},
		{0.95, &p95},
		{0.99, &p99},
	}
	cumulative := 0
	ti := 0
	for i, count := range hist {
		cumulative += count
		for ti < len(targets) && float64(cumulative) >= targets[ti].pct*float64(total) {
			*targets[ti].out = i
			ti++
		}
		if ti == len(targets) {
			break
		}
	}
	return
}
