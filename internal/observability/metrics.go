// Package observability — metrics.go
//
// Prometheus metrics for the thermopilot engine.
//
// Endpoint: GET /metrics on 127.0.0.1:9092 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback only — no external exposure.
//
// Metric naming convention: thermopilot_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
//
// Cardinality control:
//   - agent/component labels use the fixed, small set of registered
//     agent and subsystem names.
//   - PID is NOT used as a label (unbounded cardinality); per-process
//     core-parking actions are aggregated before recording.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the engine.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Orchestrator / tick cycle ───────────────────────────────────────────

	// CyclesTotal counts completed orchestrator tick cycles.
	CyclesTotal prometheus.Counter

	// CycleDuration records per-cycle wall-clock duration.
	CycleDuration prometheus.Histogram

	// ─── Agents ───────────────────────────────────────────────────────────────

	// AgentProposalsTotal counts proposals emitted, by agent.
	AgentProposalsTotal *prometheus.CounterVec

	// AgentActionsProposedTotal counts individual actions proposed, by agent.
	AgentActionsProposedTotal *prometheus.CounterVec

	// ─── Conflict planner ─────────────────────────────────────────────────────

	// PlannerAcceptedTotal counts actions the planner accepted, by target.
	PlannerAcceptedTotal *prometheus.CounterVec

	// PlannerRejectedTotal counts actions the planner rejected, by reason.
	PlannerRejectedTotal *prometheus.CounterVec

	// ─── Action executor ──────────────────────────────────────────────────────

	// ExecutorActionsExecutedTotal counts successfully executed actions, by target.
	ExecutorActionsExecutedTotal *prometheus.CounterVec

	// ExecutorActionsFailedTotal counts failed action executions, by target.
	ExecutorActionsFailedTotal *prometheus.CounterVec

	// ExecutorActionDuration records per-action execution latency.
	ExecutorActionDuration prometheus.Histogram

	// ─── Health monitor ───────────────────────────────────────────────────────

	// ComponentHealthStatus is 1 for Healthy, 0.5 for Degraded, 0 for Failed,
	// by component.
	ComponentHealthStatus *prometheus.GaugeVec

	// EmergencyThermalTriggersTotal counts emergency fan-override triggers.
	EmergencyThermalTriggersTotal prometheus.Counter

	// ─── Overrides ────────────────────────────────────────────────────────────

	// ActiveOverrides is the current number of unexpired override records.
	ActiveOverrides prometheus.Gauge

	// ─── Sensor reads ─────────────────────────────────────────────────────────

	// CPUTempC is the most recently read CPU temperature.
	CPUTempC prometheus.Gauge

	// GPUTempC is the most recently read GPU temperature.
	GPUTempC prometheus.Gauge

	// ─── Engine ───────────────────────────────────────────────────────────────

	// EngineUptimeSeconds is the number of seconds since the engine started.
	EngineUptimeSeconds prometheus.Gauge

	// startTime records when the engine started (for uptime calculation).
	startTime time.Time
}

// NewMetrics creates and registers all thermopilot Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "orchestrator",
			Name:      "cycles_total",
			Help:      "Total orchestrator tick cycles completed.",
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "thermopilot",
			Subsystem: "orchestrator",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of one orchestrator tick cycle.",
			Buckets:   prometheus.DefBuckets,
		}),

		AgentProposalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "agent",
			Name:      "proposals_total",
			Help:      "Total proposals emitted, by agent.",
		}, []string{"agent"}),

		AgentActionsProposedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "agent",
			Name:      "actions_proposed_total",
			Help:      "Total individual actions proposed, by agent.",
		}, []string{"agent"}),

		PlannerAcceptedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "planner",
			Name:      "accepted_total",
			Help:      "Total actions accepted by the conflict planner, by target.",
		}, []string{"target"}),

		PlannerRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "planner",
			Name:      "rejected_total",
			Help:      "Total actions rejected by the conflict planner, by reason.",
		}, []string{"reason"}),

		ExecutorActionsExecutedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "executor",
			Name:      "actions_executed_total",
			Help:      "Total actions successfully executed, by target.",
		}, []string{"target"}),

		ExecutorActionsFailedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "executor",
			Name:      "actions_failed_total",
			Help:      "Total action executions that failed, by target.",
		}, []string{"target"}),

		ExecutorActionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "thermopilot",
			Subsystem: "executor",
			Name:      "action_duration_seconds",
			Help:      "Per-action execution latency in seconds.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 15},
		}),

		ComponentHealthStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "thermopilot",
			Subsystem: "health",
			Name:      "component_status",
			Help:      "Component health status: 1=Healthy, 0.5=Degraded, 0=Failed.",
		}, []string{"component"}),

		EmergencyThermalTriggersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "thermopilot",
			Subsystem: "health",
			Name:      "emergency_thermal_triggers_total",
			Help:      "Total emergency thermal fan-override triggers.",
		}),

		ActiveOverrides: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermopilot",
			Subsystem: "override",
			Name:      "active_records",
			Help:      "Current number of unexpired override records.",
		}),

		CPUTempC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermopilot",
			Subsystem: "sensor",
			Name:      "cpu_temp_c",
			Help:      "Most recently read CPU temperature in Celsius.",
		}),

		GPUTempC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermopilot",
			Subsystem: "sensor",
			Name:      "gpu_temp_c",
			Help:      "Most recently read GPU temperature in Celsius.",
		}),

		EngineUptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "thermopilot",
			Subsystem: "engine",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the engine started.",
		}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.AgentProposalsTotal,
		m.AgentActionsProposedTotal,
		m.PlannerAcceptedTotal,
		m.PlannerRejectedTotal,
		m.ExecutorActionsExecutedTotal,
		m.ExecutorActionsFailedTotal,
		m.ExecutorActionDuration,
		m.ComponentHealthStatus,
		m.EmergencyThermalTriggersTotal,
		m.ActiveOverrides,
		m.CPUTempC,
		m.GPUTempC,
		m.EngineUptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// HealthStatusValue maps a health.Status string to the gauge's numeric
// encoding (1=Healthy, 0.5=Degraded, 0=Failed).
func HealthStatusValue(status string) float64 {
	switch status {
	case "Healthy":
		return 1
	case "Degraded":
		return 0.5
	default:
		return 0
	}
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.EngineUptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}
