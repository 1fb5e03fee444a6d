package observability

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ServiceName identifies this process in logs, health output and MCP metadata.
const ServiceName = "wardrobe-weather"

// LogConfig selects the level and encoding of the process logger.
type LogConfig struct {
	Level zapcore.Level
	// Console switches from JSON to human-readable output for local runs.
	Console bool
	Version string
}

// LogConfigFromEnv reads LOG_LEVEL (debug, info, warn, error; default info) and
// LOG_FORMAT (json or console; default json).
func LogConfigFromEnv(version string) LogConfig {
	return LogConfig{
		Level:   parseLogLevel(os.Getenv("LOG_LEVEL")),
		Console: strings.EqualFold(strings.TrimSpace(os.Getenv("LOG_FORMAT")), "console"),
		Version: version,
	}
}

// NewLogger builds the process logger. Every entry carries service and version.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Console {
		zc = zap.NewDevelopmentConfig()
		zc.Development = false
	}
	zc.Level = zap.NewAtomicLevelAt(cfg.Level)
	zc.EncoderConfig.TimeKey = "timestamp"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.InitialFields = map[string]interface{}{
		"service": ServiceName,
		"version": cfg.Version,
	}
	return zc.Build()
}

// parseLogLevel accepts the levels an operator would set. Anything else,
// including panic and fatal, falls back to info.
func parseLogLevel(s string) zapcore.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		return zapcore.WarnLevel
	}
	lvl, err := zapcore.ParseLevel(s)
	if err != nil || lvl < zapcore.DebugLevel || lvl > zapcore.ErrorLevel {
		return zapcore.InfoLevel
	}
	return lvl
}

// FlushTelemetry flushes buffered logs before process exit. Prometheus is pull-based,
// so there is nothing to push. Call after in-flight requests have drained.
func FlushTelemetry(ctx context.Context, logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil {
		return fmt.Errorf("flush logs: %w", err)
	}
	return nil
}
