// ============================================================================
// kflogs - Kubefill Job Log Viewer
// ============================================================================
//
// Package:     logging
// Description: Structured logging on top of zerolog with a key/value facade
// Author:      Mike Stoffels
// Created:     2026-10-14
// License:     MIT
// ============================================================================

package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LoggerConfig holds configuration for creating loggers
type LoggerConfig struct {
	// Service name, attached to every entry as "service"
	ServiceName string

	// Log level (trace, debug, info, warn, error, fatal)
	Level string

	// Output format: "json" or "text" (default: json)
	Format string

	// Output writer (default: stderr)
	Output io.Writer
}

// DefaultLoggerConfig returns a default configuration
func DefaultLoggerConfig(serviceName string) LoggerConfig {
	return LoggerConfig{
		ServiceName: serviceName,
		Level:       "info",
		Format:      "json",
	}
}

// Logger writes leveled entries with key/value fields
type Logger struct {
	zl   zerolog.Logger
	name string
}

// NewLogger creates a logger from cfg
func NewLogger(cfg LoggerConfig) *Logger {
	var output io.Writer = os.Stderr
	if cfg.Output != nil {
		output = cfg.Output
	}

	if strings.EqualFold(cfg.Format, "text") {
		output = zerolog.ConsoleWriter{
			Out:        output,
			NoColor:    true,
			TimeFormat: time.RFC3339,
		}
	}

	ctx := zerolog.New(output).Level(parseLevel(cfg.Level)).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}

	return &Logger{
		zl:   ctx.Logger(),
		name: cfg.ServiceName,
	}
}

// New creates a logger with the default configuration
func New(name string) *Logger {
	return NewLogger(DefaultLoggerConfig(name))
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// Name returns the service name of the logger
func (l *Logger) Name() string {
	return l.name
}

// With returns a child logger carrying the given key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{
		zl:   l.zl.With().Fields(toFields(keysAndValues...)).Logger(),
		name: l.name,
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.zl.Debug().Fields(toFields(keysAndValues...)).Msg(msg)
}

// Info logs an info message
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.zl.Info().Fields(toFields(keysAndValues...)).Msg(msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.zl.Warn().Fields(toFields(keysAndValues...)).Msg(msg)
}

// Error logs an error message
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.zl.Error().Fields(toFields(keysAndValues...)).Msg(msg)
}

// Zerolog exposes the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zl
}

// parseLevel converts a string level to a zerolog level
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// toFields converts key-value pairs to a field map; odd trailing keys and
// non-string keys are dropped
func toFields(keysAndValues ...interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
