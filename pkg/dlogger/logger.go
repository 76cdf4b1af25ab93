// Package dlogger builds leveled zap loggers for the CLI
package dlogger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// LogLevelDebug sets the log level to debug
	LogLevelDebug = "debug"

	// LogLevelInfo sets the log level to info
	LogLevelInfo = "info"

	// LogLevelWarn sets the log level to warn
	LogLevelWarn = "warn"

	// LogLevelNone disables logging
	LogLevelNone = "none"
)

// GetLogger returns a production zap logger with the specified level.
//
// Logs go to stderr, unless other output paths are given: stdout is kept for
// the output of commands.
func GetLogger(logLevel string, outputs ...string) (*zap.Logger, error) {
	if logLevel == LogLevelNone {
		return zap.NewNop(), nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	if len(outputs) > 0 {
		cfg.OutputPaths = outputs
	}
	return cfg.Build()
}

// MustGetLogger returns a zap logger with the specified level or panics
func MustGetLogger(logLevel string, outputs ...string) *zap.Logger {
	l, err := GetLogger(logLevel, outputs...)
	if err != nil {
		panic(err)
	}
	return l
}
