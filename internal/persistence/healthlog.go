package persistence

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// HealthLogConfig configures the rotated health.log (§4.K: "rotated
// after 10 MiB, keeps last 5 files").
type HealthLogConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
}

// DefaultHealthLogConfig returns the spec's defaults.
func DefaultHealthLogConfig(path string) HealthLogConfig {
	return HealthLogConfig{Path: path, MaxSizeMB: 10, MaxBackups: 5}
}

// NewHealthLogCore builds a zapcore.Core writing JSON-encoded health
// events to a lumberjack-rotated file, suitable for teeing alongside the
// engine's primary zap core via zapcore.NewTee.
func NewHealthLogCore(cfg HealthLogConfig) zapcore.Core {
	rotator := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   false,
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.AddSync(rotator),
		zapcore.InfoLevel,
	)
}
