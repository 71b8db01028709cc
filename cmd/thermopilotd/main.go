// Package main — cmd/thermopilotd/main.go
//
// thermopilotd is the autonomous laptop power/thermal control engine.
//
// Startup sequence:
//  1. Load and validate config from /etc/thermopilot/config.yaml.
//  2. Initialise structured logger (zap, teed into the rotated health log).
//  3. Open on-disk persistence: patterns.bin, overrides.log, preferences.log.
//  4. Probe hardware capabilities (EC, MSR, NVAPI, hybrid CPU).
//  5. Construct HAL primitives over whatever the probe found.
//  6. Load the process-exec watcher (eBPF), if the kernel supports it.
//  7. Build the domain agents, the conflict planner, and the executor.
//  8. Start the Prometheus metrics server (127.0.0.1:9092).
//  9. Start the health monitor's independent probe schedule.
// 10. Start the master tick service, driving the orchestrator loop.
// 11. Start the operator Unix socket server.
// 12. Register SIGHUP handler for config hot-reload (log level only).
// 13. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Stop the orchestrator (later RunTick calls become no-ops).
//  2. Cancel root context (propagates to all goroutines).
//  3. Close the eBPF objects, MSR file descriptors, and persistence files.
//  4. Flush the logger.
//  5. Exit 0.
//
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thermopilot/thermopilot/internal/agent"
	"github.com/thermopilot/thermopilot/internal/api"
	"github.com/thermopilot/thermopilot/internal/capture"
	"github.com/thermopilot/thermopilot/internal/config"
	"github.com/thermopilot/thermopilot/internal/executor"
	"github.com/thermopilot/thermopilot/internal/hal"
	"github.com/thermopilot/thermopilot/internal/health"
	"github.com/thermopilot/thermopilot/internal/observability"
	"github.com/thermopilot/thermopilot/internal/orchestrator"
	"github.com/thermopilot/thermopilot/internal/override"
	"github.com/thermopilot/thermopilot/internal/persistence"
	"github.com/thermopilot/thermopilot/internal/planner"
	"github.com/thermopilot/thermopilot/internal/procwatch"
	"github.com/thermopilot/thermopilot/internal/snapshot"
	"github.com/thermopilot/thermopilot/internal/tick"
)

// knownWorkloadLaunchers is the daemon's own launcher set, separate from
// and larger than the GPU agent's; used here to derive per-tick workload
// hints from the running process list.
var knownWorkloadLaunchers = map[string]bool{
	"steam":              true,
	"epicgameslauncher":  true,
	"battlenet":          true,
	"gog galaxy":         true,
	"csgo":               true,
	"cyberpunk2077":      true,
	"blender":            true,
	"davinci":            true,
}

func main() {
	configPath := flag.String("config", "/etc/thermopilot/config.yaml", "Path to config.yaml")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Printf("thermopilotd %s (commit=%s built=%s)\n",
			config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	// ── Step 1: Load config ───────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	// ── Step 2: Logger ────────────────────────────────────────────────────────
	log, atomicLevel, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("thermopilotd starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("host_id", cfg.HostID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Step 3: Persistence ───────────────────────────────────────────────────
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		log.Fatal("failed to create data directory", zap.Error(err), zap.String("path", cfg.Storage.DataDir))
	}

	patterns, err := persistence.OpenPatternStore(cfg.Storage.PatternsDBPath)
	if err != nil {
		log.Warn("patterns store unavailable, continuing without it", zap.Error(err))
	} else {
		defer patterns.Close() //nolint:errcheck
		log.Info("patterns store opened", zap.String("path", cfg.Storage.PatternsDBPath))
	}

	overrideLog, err := persistence.OpenOverrideLog(filepath.Join(cfg.Storage.DataDir, "overrides.log"))
	if err != nil {
		log.Warn("overrides.log unavailable, continuing without it", zap.Error(err))
	} else {
		defer overrideLog.Close() //nolint:errcheck
	}

	prefLog, err := persistence.OpenPreferenceLog(filepath.Join(cfg.Storage.DataDir, "preferences.log"))
	if err != nil {
		log.Warn("preferences.log unavailable, continuing without it", zap.Error(err))
	} else {
		defer prefLog.Close() //nolint:errcheck
	}

	// ── Step 4: Capability probe ──────────────────────────────────────────────
	caps := hal.Probe()
	log.Info("hardware capabilities probed",
		zap.Bool("ec", caps.HasEC), zap.Bool("msr", caps.HasMSR),
		zap.Bool("nvapi", caps.HasNVAPI), zap.Bool("hybrid_cpu", caps.IsHybridCPU),
	)

	// ── Step 5: HAL primitives ────────────────────────────────────────────────
	var ec *hal.EC
	if caps.HasEC {
		ec = hal.NewEC(cfg.HAL.PrimitiveTimeout)
	}

	var msr *hal.MSR
	if caps.HasMSR {
		cpus := make([]int, runtime.NumCPU())
		for i := range cpus {
			cpus[i] = i
		}
		msr, err = hal.OpenMSR(cpus)
		if err != nil {
			log.Warn("MSR open failed, CPU ratio/C-state agents degrade to Unknown", zap.Error(err))
			msr = nil
		} else {
			defer msr.Close()
		}
	}

	battery := hal.NewBattery(ec, cfg.HAL.ECFailureThreshold)
	display := hal.NewDisplay(cfg.HAL.PrimitiveTimeout)
	power := hal.NewPower(cfg.HAL.PrimitiveTimeout)
	lister := hal.NewProcessLister()

	var gpu *hal.GPU
	if caps.HasNVAPI {
		gpu = hal.NewGPU(cfg.HAL.PrimitiveTimeout)
	}

	reader := hal.NewReader(hal.Sources{
		EC: ec, MSR: msr, Battery: battery, Display: display, Power: power, GPU: gpu, Caps: caps,
	})

	// ── Step 6: process-exec watcher (eBPF) ───────────────────────────────────
	var predictor *agent.Predictor
	if err := procwatch.Available(); err != nil {
		log.Warn("process-exec watcher unavailable, GPU predictor degrades to Unknown-only", zap.Error(err))
	} else {
		objs, err := procwatch.Load()
		if err != nil {
			log.Warn("process-exec watcher load failed, GPU predictor degrades to Unknown-only", zap.Error(err))
		} else {
			defer objs.Close() //nolint:errcheck
			predictor = agent.NewPredictor()
			processor := procwatch.NewProcessor(objs, log, 256)
			events, err := processor.Run(ctx)
			if err != nil {
				log.Warn("process-exec watcher failed to start", zap.Error(err))
			} else {
				go predictor.Consume(events)
				log.Info("process-exec watcher running")
			}
		}
	}

	// ── Step 7: domain agents, planner, executor ──────────────────────────────
	store := snapshot.NewStore(0.3)
	overrides := override.New(nil, cfg.Override.DefaultTTL)

	coreParking := agent.NewCoreParking(lister, hal.EnumerateLogicalProcessors)
	refresh := agent.NewRefresh(nativeRefreshHz, lowestRefreshHz)

	agents := agent.NewRegistry([]agent.Agent{
		agent.NewThermal(),
		agent.NewBattery(),
		agent.NewPower(),
		agent.NewGPU(predictor),
		refresh,
		coreParking,
	})

	history := planner.NewHistory(cfg.Planner.HistoryRingSize)
	plan := planner.New(planner.Config{
		GPUModeDwell:          cfg.Planner.GPUModeDwell,
		OscillationWindow:     cfg.Planner.OscillationWindow,
		OscillationMaxChanges: cfg.Planner.OscillationMaxChanges,
	}, history, log)

	dispatch := buildDispatcher(ec, msr, power, display)
	exec := executor.New(dispatch, 15*time.Second, history, log)

	orch := orchestrator.New(orchestrator.Config{
		Reader:             reader,
		Store:              store,
		Agents:             agents,
		Overrides:          overrides,
		Planner:            plan,
		History:            history,
		Executor:           exec,
		LowBatteryThrottle: 3 * cfg.Tick.Fast,
	}, log)

	// ── Step 8: metrics ────────────────────────────────────────────────────────
	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	// ── Step 9: health monitor ─────────────────────────────────────────────────
	monitor := health.New(buildProbes(caps, ec, msr, battery, display, power, gpu), ec, health.Config{
		ProbeInterval:      cfg.Health.ProbeInterval,
		BackoffBase:        time.Second,
		MaxBackoffAttempts: cfg.Health.MaxBackoffAttempts,
		EventHistorySize:   cfg.Health.EventHistorySize,
		Emergency: health.EmergencyConfig{
			CPUTempC:    cfg.Health.EmergencyCPUTempC,
			GPUTempC:    cfg.Health.EmergencyGPUTempC,
			FanRPM:      cfg.Health.EmergencyFanRPM,
			MinInterval: cfg.Health.EmergencyMinInterval,
		},
	}, log)
	go monitor.Run(ctx)

	// ── Step 10: master tick service ──────────────────────────────────────────
	ticker := tick.New(tick.Config{FastInterval: cfg.Tick.Fast})
	ticker.Subscribe(tick.FastTick, func(ctx context.Context, at time.Time) {
		hints := workloadHints(ctx, lister)
		orch.RunTick(ctx, hints)
		metrics.CyclesTotal.Inc()
		metrics.ActiveOverrides.Set(float64(len(overrides.ActiveOverrides())))
		if last := store.Last(); last != nil {
			if last.CPUTempC != nil {
				metrics.CPUTempC.Set(*last.CPUTempC)
			}
			if last.GPUTempC != nil {
				metrics.GPUTempC.Set(*last.GPUTempC)
			}
			if monitor.CheckEmergencyThermal(ctx, *last) {
				metrics.EmergencyThermalTriggersTotal.Inc()
			}
		}
		for component, status := range monitor.AllStatuses() {
			metrics.ComponentHealthStatus.WithLabelValues(component).Set(observability.HealthStatusValue(string(status)))
		}
	})
	ticker.Subscribe(tick.SlowTick, func(ctx context.Context, at time.Time) {
		coreParking.Refresh(ctx)
	})
	go ticker.Run(ctx)

	go runCaptureLoop(ctx, refresh)

	orch.Start(ctx)
	log.Info("orchestrator running", zap.Duration("fast_tick", cfg.Tick.Fast))

	// ── Step 11: operator socket ──────────────────────────────────────────────
	if cfg.API.Enabled {
		engine := api.New(api.Config{
			Orchestrator:  orch,
			Store:         store,
			Overrides:     overrides,
			Monitor:       monitor,
			OverrideLog:   overrideLog,
			PreferenceLog: prefLog,
		}, log)
		server := api.NewServer(cfg.API.SocketPath, engine, log)
		go func() {
			if err := server.ListenAndServe(ctx); err != nil {
				log.Error("operator socket server error", zap.Error(err))
			}
		}()
	}

	// ── Step 12: SIGHUP hot-reload ─────────────────────────────────────────────
	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			var lvl zapcore.Level
			if err := lvl.UnmarshalText([]byte(newCfg.Observability.LogLevel)); err == nil {
				atomicLevel.SetLevel(lvl)
			}
			log.Info("config hot-reload applied (log level only; other fields require restart)",
				zap.String("log_level", newCfg.Observability.LogLevel))
		}
	}()

	// ── Step 13: wait for shutdown signal ─────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	orch.Stop()
	cancel()
	time.Sleep(200 * time.Millisecond) // let subscriber goroutines observe cancellation

	log.Info("thermopilotd shutdown complete")
}

// Display hardware limits (§4.D). A full deployment would read these
// from EnumerateRefreshRates at startup; hardcoded here as the common
// native/lowest pair for the target hardware class.
const (
	nativeRefreshHz = 165
	lowestRefreshHz = 60
)

// workloadHints derives the running-process hint list the GPU agent's
// launcher detection and the orchestrator's snapshot builder consume,
// by intersecting the current process list with the known launcher set.
func workloadHints(ctx context.Context, lister *hal.ProcessLister) []string {
	procs, err := lister.List(ctx)
	if err != nil {
		return nil
	}
	var hints []string
	for _, p := range procs {
		if knownWorkloadLaunchers[p.Name] {
			hints = append(hints, p.Name)
		}
	}
	return hints
}

// runCaptureLoop feeds the adaptive refresh-rate agent's sub-state
// machine on the monitoring interval (§4.D: 2s). Frame capture is
// platform-specific and not implemented by the HAL layer (internal/hal
// has no framebuffer primitive); captureScreen shells out to a
// screenshot tool the way display.go shells out to xrandr, producing
// the downsampled buffer capture.NewFrame expects.
func runCaptureLoop(ctx context.Context, refresh *agent.Refresh) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			frame, err := captureScreen(ctx)
			if err != nil {
				continue
			}
			refresh.Observe(frame)
		}
	}
}

// captureScreen grabs a downsampled 320x200 24bpp RGB frame via an
// external screenshot tool. Best-effort: a failure just skips this
// sample, the static-content detector simply sees one fewer data point.
func captureScreen(ctx context.Context) (capture.Frame, error) {
	cctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	out, err := exec.CommandContext(cctx, "screencap-equivalent",
		"--width", "320", "--height", "200", "--format", "rgb24", "--stdout").Output()
	if err != nil {
		return capture.Frame{}, err
	}
	return capture.NewFrame(out)
}

// buildDispatcher wires every ActionTarget named in §3 to a concrete HAL
// call. Targets without a dedicated HAL primitive (display/keyboard
// brightness, Wi-Fi power-save, memory profile, GPU hybrid mode) shell
// out to a vendor-specific tool, matching display.go's and power.go's
// runCommand convention since internal/hal exposes no primitive for them.
func buildDispatcher(ec *hal.EC, msr *hal.MSR, power *hal.Power, display *hal.Display) executor.Dispatcher {
	shim := func(ctx context.Context, timeout time.Duration, name string, args ...string) error {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		_, err := exec.CommandContext(cctx, name, args...).Output()
		return err
	}

	return executor.Dispatcher{
		snapshot.TargetFanProfile: func(ctx context.Context, a snapshot.Action) error {
			if ec == nil {
				return hal.Unavailable("dispatch.FanProfile")
			}
			pct, _ := a.Value.(int)
			duty := hal.FanPctToByte(pct)
			if err := ec.WriteRegister(ctx, hal.RegFan1Duty, duty); err != nil {
				return err
			}
			return ec.WriteRegister(ctx, hal.RegFan2Duty, duty)
		},
		snapshot.TargetFanSpeedCPU: func(ctx context.Context, a snapshot.Action) error {
			if ec == nil {
				return hal.Unavailable("dispatch.FanSpeedCPU")
			}
			pct, _ := a.Value.(int)
			return ec.WriteRegister(ctx, hal.RegFan1Duty, hal.FanPctToByte(pct))
		},
		snapshot.TargetFanSpeedGPU: func(ctx context.Context, a snapshot.Action) error {
			if ec == nil {
				return hal.Unavailable("dispatch.FanSpeedGPU")
			}
			pct, _ := a.Value.(int)
			return ec.WriteRegister(ctx, hal.RegFan2Duty, hal.FanPctToByte(pct))
		},
		snapshot.TargetFanFullSpeed: func(ctx context.Context, a snapshot.Action) error {
			if ec == nil {
				return hal.Unavailable("dispatch.FanFullSpeed")
			}
			if err := ec.WriteRegister(ctx, hal.RegFan1Duty, 0xFF); err != nil {
				return err
			}
			return ec.WriteRegister(ctx, hal.RegFan2Duty, 0xFF)
		},
		snapshot.TargetGPUHybridMode: func(ctx context.Context, a snapshot.Action) error {
			mode, _ := a.Value.(string)
			return shim(ctx, 2*time.Second, "gpu-switch-equivalent", "--mode", mode)
		},
		snapshot.TargetCPUPerfCtlRatio: func(ctx context.Context, a snapshot.Action) error {
			if msr == nil {
				return hal.Unavailable("dispatch.CPUPerfCtlRatio")
			}
			ratio, _ := a.Value.(int)
			return msr.Write(0, hal.MSRPerfCtl, uint64(ratio)<<8)
		},
		snapshot.TargetCStateLimit: func(ctx context.Context, a snapshot.Action) error {
			if msr == nil {
				return hal.Unavailable("dispatch.CStateLimit")
			}
			limit, _ := a.Value.(int)
			if limit < 0 {
				limit = 0
			}
			return msr.Write(0, hal.MSRPkgCStateLimit, hal.EncodeCStateLimit(uint8(limit)))
		},
		snapshot.TargetCoreParkMinPct: func(ctx context.Context, a snapshot.Action) error {
			pct, _ := a.Value.(int)
			return power.SetSchemeValue(ctx, hal.GUIDCoreParkingSubgroup, hal.GUIDCoreParkMinPct, pct, hal.PowerModeAC)
		},
		snapshot.TargetCoreParkMaxPct: func(ctx context.Context, a snapshot.Action) error {
			pct, _ := a.Value.(int)
			return power.SetSchemeValue(ctx, hal.GUIDCoreParkingSubgroup, hal.GUIDCoreParkMaxPct, pct, hal.PowerModeAC)
		},
		snapshot.TargetRefreshRateHz: func(ctx context.Context, a snapshot.Action) error {
			hz, _ := a.Value.(int)
			return display.SetRefreshRate(ctx, hz)
		},
		snapshot.TargetDisplayBrightness: func(ctx context.Context, a snapshot.Action) error {
			pct, _ := a.Value.(int)
			return shim(ctx, time.Second, "backlight-equivalent", "--set", fmt.Sprint(pct))
		},
		snapshot.TargetKbdBrightness: func(ctx context.Context, a snapshot.Action) error {
			pct, _ := a.Value.(int)
			return shim(ctx, time.Second, "kbd-backlight-equivalent", "--set", fmt.Sprint(pct))
		},
		snapshot.TargetProcessAffinity: func(ctx context.Context, a snapshot.Action) error {
			v, ok := a.Value.(agent.ProcessAffinityValue)
			if !ok {
				return hal.Invalid("dispatch.ProcessAffinity")
			}
			return power.SetProcessAffinity(v.PID, v.Mask)
		},
		snapshot.TargetWifiPsaveMode: func(ctx context.Context, a snapshot.Action) error {
			mode, _ := a.Value.(string)
			return shim(ctx, time.Second, "wifi-psave-equivalent", "--mode", mode)
		},
		snapshot.TargetMemoryProfile: func(ctx context.Context, a snapshot.Action) error {
			profile, _ := a.Value.(string)
			return shim(ctx, time.Second, "memory-profile-equivalent", "--profile", profile)
		},
	}
}

// buildProbes constructs the health monitor's independent subsystem
// checks (§4.H), one per HAL primitive the capability probe found.
func buildProbes(caps hal.Capabilities, ec *hal.EC, msr *hal.MSR, battery *hal.Battery, display *hal.Display, power *hal.Power, gpu *hal.GPU) []health.Probe {
	var probes []health.Probe
	if caps.HasEC {
		probes = append(probes, health.Probe{Component: "ec", Check: func(ctx context.Context) error {
			_, err := ec.ReadRegister(ctx, hal.RegFan1Duty)
			return err
		}})
	}
	if caps.HasMSR && msr != nil {
		probes = append(probes, health.Probe{Component: "msr", Check: func(ctx context.Context) error {
			_, err := msr.Read(0, hal.MSRThermStatus)
			return err
		}})
	}
	probes = append(probes, health.Probe{Component: "battery", Check: func(ctx context.Context) error {
		_, err := battery.Info(ctx)
		return err
	}})
	probes = append(probes, health.Probe{Component: "display", Check: func(ctx context.Context) error {
		_, err := display.EnumerateTopology(ctx)
		return err
	}})
	probes = append(probes, health.Probe{Component: "power", Check: func(ctx context.Context) error {
		_, err := power.GetActiveScheme(ctx)
		return err
	}})
	if caps.HasNVAPI && gpu != nil {
		probes = append(probes, health.Probe{Component: "gpu", Check: func(ctx context.Context) error {
			_, err := gpu.Read(ctx)
			return err
		}})
	}
	return probes
}

// buildLogger constructs the engine's zap.Logger, teeing a JSON core
// into the rotated health.log alongside the primary console/JSON core,
// and returns the atomic level so SIGHUP can adjust verbosity in place.
func buildLogger(cfg *config.Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(cfg.Observability.LogLevel)); err != nil {
		return nil, zap.AtomicLevel{}, fmt.Errorf("invalid log level %q: %w", cfg.Observability.LogLevel, err)
	}
	atomicLevel := zap.NewAtomicLevelAt(zapLevel)

	var primaryCfg zap.Config
	if cfg.Observability.LogFormat == "console" {
		primaryCfg = zap.NewDevelopmentConfig()
	} else {
		primaryCfg = zap.NewProductionConfig()
	}
	primaryCfg.Level = atomicLevel

	primaryLogger, err := primaryCfg.Build()
	if err != nil {
		return nil, zap.AtomicLevel{}, err
	}

	healthLogPath := filepath.Join(cfg.Storage.DataDir, "health.log")
	healthCore := persistence.NewHealthLogCore(persistence.HealthLogConfig{
		Path:       healthLogPath,
		MaxSizeMB:  cfg.Storage.HealthLogMaxSizeMB,
		MaxBackups: cfg.Storage.HealthLogMaxBackups,
	})

	teed := primaryLogger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, healthCore)
	}))

	return teed, atomicLevel, nil
}
