// Package config provides configuration loading, validation, and hot-reload
// for the thermopilot daemon.
//
// Configuration file: /etc/thermopilot/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Daemon listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - Only the log level is applied; every other field (thresholds, dwell
//     times, patterns DB path, operator socket path) requires a restart.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The daemon does NOT crash on invalid hot-reload config.
//
// Validation:
//   - schema_version, host_id, data_dir and patterns_db_path must be set.
//   - Numeric ranges enforced (e.g., tick cadences ordered and > 0,
//     max_backoff_attempts ∈ [1,10], thresholds ≥ 1).
//   - File paths are checked for emptiness only, not for being absolute.
//   - Invalid config on startup: daemon refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected by the Makefile via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for thermopilot.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// HostID is a unique identifier for this machine. Used in log lines
	// and in the patterns store key, not for clustering.
	// Default: hostname.
	HostID string `yaml:"host_id"`

	// Tick configures the master tick service cadences.
	Tick TickConfig `yaml:"tick"`

	// HAL configures hardware access primitives.
	HAL HALConfig `yaml:"hal"`

	// Override configures the cooling-period / override registry.
	Override OverrideConfig `yaml:"override"`

	// Planner configures the conflict planner's dwell and oscillation rules.
	Planner PlannerConfig `yaml:"planner"`

	// Health configures the health monitor and emergency thermal path.
	Health HealthConfig `yaml:"health"`

	// Storage configures on-disk persistence.
	Storage StorageConfig `yaml:"storage"`

	// Observability configures metrics and logging.
	Observability ObservabilityConfig `yaml:"observability"`

	// API configures the operator Unix socket.
	API APIConfig `yaml:"api"`
}

// TickConfig holds the master tick service's four cadences.
type TickConfig struct {
	Fast     time.Duration `yaml:"fast"`
	Medium   time.Duration `yaml:"medium"`
	Slow     time.Duration `yaml:"slow"`
	VerySlow time.Duration `yaml:"very_slow"`
}

// HALConfig holds hardware access layer parameters.
type HALConfig struct {
	// WMIQueryTTL is the default TTL for cached WMI queries.
	// Default: 5m.
	WMIQueryTTL time.Duration `yaml:"wmi_query_ttl"`

	// WMISweepInterval is the background cache janitor interval.
	// Default: 60s.
	WMISweepInterval time.Duration `yaml:"wmi_sweep_interval"`

	// ECFailureThreshold is consecutive EC failures before the battery
	// hybrid rule falls back to OS-reported percentage only. Default: 5.
	ECFailureThreshold int `yaml:"ec_failure_threshold"`

	// PrimitiveTimeout bounds any single HAL primitive call. Default: 1s.
	PrimitiveTimeout time.Duration `yaml:"primitive_timeout"`
}

// OverrideConfig holds cooling-period/override registry parameters.
type OverrideConfig struct {
	// DefaultTTL is applied when a scenario has no specific entry in the
	// TTL table. Default: 5m.
	DefaultTTL time.Duration `yaml:"default_ttl"`
}

// PlannerConfig holds the conflict planner's minimum-dwell and
// oscillation-guard parameters.
type PlannerConfig struct {
	// GPUModeDwell is the minimum time between GPU mode switches. Default: 5m.
	GPUModeDwell time.Duration `yaml:"gpu_mode_dwell"`

	// OscillationWindow is the lookback window for the oscillation guard.
	// Default: 2m.
	OscillationWindow time.Duration `yaml:"oscillation_window"`

	// OscillationMaxChanges is the change count within OscillationWindow
	// that trips the guard for a given (agent, target) pair. Default: 3.
	OscillationMaxChanges int `yaml:"oscillation_max_changes"`

	// HistoryRingSize bounds the per-(agent,target) action history ring.
	// Default: 50.
	HistoryRingSize int `yaml:"history_ring_size"`
}

// HealthConfig holds health monitor and emergency-path parameters.
type HealthConfig struct {
	// ProbeInterval is the independent health probe schedule. Default: 5s.
	ProbeInterval time.Duration `yaml:"probe_interval"`

	// MaxBackoffAttempts caps exponential backoff before a subsystem is
	// marked permanently Degraded. Default: 5.
	MaxBackoffAttempts int `yaml:"max_backoff_attempts"`

	// CircuitBreakerFailures is consecutive HAL primitive failures before
	// the breaker opens. Default: 3.
	CircuitBreakerFailures int `yaml:"circuit_breaker_failures"`

	// CircuitBreakerCooldown is how long the breaker stays open. Default: 30s.
	CircuitBreakerCooldown time.Duration `yaml:"circuit_breaker_cooldown"`

	// EmergencyCPUTempC triggers the emergency thermal path. Default: 95.0.
	EmergencyCPUTempC float64 `yaml:"emergency_cpu_temp_c"`

	// EmergencyGPUTempC triggers the emergency thermal path when fans are
	// also below EmergencyFanRPM. Default: 87.0.
	EmergencyGPUTempC float64 `yaml:"emergency_gpu_temp_c"`

	// EmergencyFanRPM is the fan-speed floor that, combined with
	// EmergencyGPUTempC, triggers the emergency path. Default: 500.
	EmergencyFanRPM int `yaml:"emergency_fan_rpm"`

	// EmergencyMinInterval is the minimum time between emergency triggers.
	// Default: 60s.
	EmergencyMinInterval time.Duration `yaml:"emergency_min_interval"`

	// EventHistorySize bounds the health event ring. Default: 1000.
	EventHistorySize int `yaml:"event_history_size"`
}

// StorageConfig holds on-disk persistence parameters.
type StorageConfig struct {
	// DataDir is the root directory for all persisted state.
	// Default: /var/lib/thermopilot.
	DataDir string `yaml:"data_dir"`

	// PatternsDBPath is the absolute path to the BoltDB patterns store.
	// Default: /var/lib/thermopilot/patterns.bin.
	PatternsDBPath string `yaml:"patterns_db_path"`

	// HealthLogMaxSizeMB is the lumberjack rotation threshold. Default: 10.
	HealthLogMaxSizeMB int `yaml:"health_log_max_size_mb"`

	// HealthLogMaxBackups is the lumberjack generation count. Default: 5.
	HealthLogMaxBackups int `yaml:"health_log_max_backups"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9092.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// APIConfig holds operator Unix socket parameters.
type APIConfig struct {
	// SocketPath is the Unix domain socket path for thermopilotctl.
	// Permissions: 0600, owned by root. Default: /run/thermopilot/engine.sock.
	SocketPath string `yaml:"socket_path"`

	// Enabled controls whether the operator socket is active. Default: true.
	Enabled bool `yaml:"enabled"`
}

// DefaultPatternsDBPath mirrors the persistence package default.
const DefaultPatternsDBPath = "/var/lib/thermopilot/patterns.bin"

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		HostID:        hostname,
		Tick: TickConfig{
			Fast:     500 * time.Millisecond,
			Medium:   1 * time.Second,
			Slow:     3 * time.Second,
			VerySlow: 10 * time.Second,
		},
		HAL: HALConfig{
			WMIQueryTTL:        5 * time.Minute,
			WMISweepInterval:   60 * time.Second,
			ECFailureThreshold: 5,
			PrimitiveTimeout:   1 * time.Second,
		},
		Override: OverrideConfig{
			DefaultTTL: 5 * time.Minute,
		},
		Planner: PlannerConfig{
			GPUModeDwell:          5 * time.Minute,
			OscillationWindow:     2 * time.Minute,
			OscillationMaxChanges: 3,
			HistoryRingSize:       50,
		},
		Health: HealthConfig{
			ProbeInterval:          5 * time.Second,
			MaxBackoffAttempts:     5,
			CircuitBreakerFailures: 3,
			CircuitBreakerCooldown: 30 * time.Second,
			EmergencyCPUTempC:      95.0,
			EmergencyGPUTempC:      87.0,
			EmergencyFanRPM:        500,
			EmergencyMinInterval:   60 * time.Second,
			EventHistorySize:       1000,
		},
		Storage: StorageConfig{
			DataDir:             "/var/lib/thermopilot",
			PatternsDBPath:      DefaultPatternsDBPath,
			HealthLogMaxSizeMB:  10,
			HealthLogMaxBackups: 5,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9092",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		API: APIConfig{
			Enabled:    true,
			SocketPath: "/run/thermopilot/engine.sock",
		},
	}
}

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.HostID == "" {
		errs = append(errs, "host_id must not be empty")
	}
	if cfg.Tick.Fast <= 0 || cfg.Tick.Medium <= 0 || cfg.Tick.Slow <= 0 || cfg.Tick.VerySlow <= 0 {
		errs = append(errs, "all tick cadences must be > 0")
	}
	if cfg.Tick.Fast >= cfg.Tick.Medium || cfg.Tick.Medium >= cfg.Tick.Slow || cfg.Tick.Slow >= cfg.Tick.VerySlow {
		errs = append(errs, "tick cadences must satisfy fast < medium < slow < very_slow")
	}
	if cfg.HAL.ECFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("hal.ec_failure_threshold must be >= 1, got %d", cfg.HAL.ECFailureThreshold))
	}
	if cfg.HAL.PrimitiveTimeout <= 0 {
		errs = append(errs, "hal.primitive_timeout must be > 0")
	}
	if cfg.Planner.OscillationMaxChanges < 1 {
		errs = append(errs, fmt.Sprintf("planner.oscillation_max_changes must be >= 1, got %d", cfg.Planner.OscillationMaxChanges))
	}
	if cfg.Planner.HistoryRingSize < 1 {
		errs = append(errs, fmt.Sprintf("planner.history_ring_size must be >= 1, got %d", cfg.Planner.HistoryRingSize))
	}
	if cfg.Health.MaxBackoffAttempts < 1 || cfg.Health.MaxBackoffAttempts > 10 {
		errs = append(errs, fmt.Sprintf("health.max_backoff_attempts must be in [1, 10], got %d", cfg.Health.MaxBackoffAttempts))
	}
	if cfg.Health.CircuitBreakerFailures < 1 {
		errs = append(errs, fmt.Sprintf("health.circuit_breaker_failures must be >= 1, got %d", cfg.Health.CircuitBreakerFailures))
	}
	if cfg.Health.EmergencyCPUTempC <= 0 || cfg.Health.EmergencyGPUTempC <= 0 {
		errs = append(errs, "health.emergency_cpu_temp_c and emergency_gpu_temp_c must be > 0")
	}
	if cfg.Health.EventHistorySize < 1 {
		errs = append(errs, fmt.Sprintf("health.event_history_size must be >= 1, got %d", cfg.Health.EventHistorySize))
	}
	if cfg.Storage.DataDir == "" {
		errs = append(errs, "storage.data_dir must not be empty")
	}
	if cfg.Storage.PatternsDBPath == "" {
		errs = append(errs, "storage.patterns_db_path must not be empty")
	}
	if cfg.Storage.HealthLogMaxSizeMB < 1 {
		errs = append(errs, fmt.Sprintf("storage.health_log_max_size_mb must be >= 1, got %d", cfg.Storage.HealthLogMaxSizeMB))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s",
			joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}
