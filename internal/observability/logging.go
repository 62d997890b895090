// Package observability provides the process-wide zap loggers.
package observability

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by CLI commands. It writes human-oriented
// console output to stderr so command stdout stays machine-parseable.
var CLILogger = newConsoleLogger(zapcore.InfoLevel)

// ServerLogger is the logger used by the HTTP adapter and the orchestrator
// while serving.
var ServerLogger = newStructuredLogger(zapcore.InfoLevel)

// SetLevel rebuilds both package loggers at the given level.
// Unknown levels fall back to info.
func SetLevel(level string) {
	lvl := ParseLevel(level)
	CLILogger = newConsoleLogger(lvl)
	ServerLogger = newStructuredLogger(lvl)
}

// ParseLevel maps a config string to a zap level, defaulting to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newConsoleLogger(lvl zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.DisableStacktrace = true
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newStructuredLogger(lvl zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
