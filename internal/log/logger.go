// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
	// FormatAuto picks text when the output is a terminal and JSON otherwise.
	FormatAuto Format = "auto"
)

// Custom log levels extending slog's standard levels.
const (
	// LevelTrace is more verbose than Debug, used for per-event tracing
	// (individual filesystem events, ignored signals).
	LevelTrace = slog.Level(-8)
)

// Standard field keys for structured logging.
// These constants ensure consistent field naming across the codebase.
const (
	// GenerationKey is the field key for the restart counter of the supervised command.
	GenerationKey = "generation"
	// GenerationIDKey is the field key for the unique id of a generation.
	GenerationIDKey = "generation_id"
	// PIDKey is the field key for process identifiers.
	PIDKey = "pid"
	// CommandKey is the field key for the supervised command line.
	CommandKey = "command"
	// DurationKey is the field key for duration in milliseconds.
	DurationKey = "duration_ms"
	// ComponentKey is the field key for the emitting component.
	ComponentKey = "component"
	// EventKey is the field key for event types.
	EventKey = "event"
)

// Environment variables understood by FromEnv.
const (
	EnvDebug    = "RERUN_DEBUG"
	EnvLevel    = "RERUN_LOG_LEVEL"
	EnvLogLevel = "LOG_LEVEL"
	EnvFormat   = "LOG_FORMAT"
	EnvSource   = "LOG_SOURCE"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Default: info
	Level string

	// Format sets the output format (json, text, auto).
	// Default: auto
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer

	// AddSource adds source file and line information to logs.
	// Default: false
	AddSource bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:     "info",
		Format:    FormatAuto,
		Output:    os.Stderr,
		AddSource: false,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - RERUN_DEBUG: true/1 to enable debug level and source logging (takes precedence)
//   - RERUN_LOG_LEVEL: trace, debug, info, warn, error (takes precedence over LOG_LEVEL)
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, text, auto (default: auto)
//   - LOG_SOURCE: 1 to enable source file/line (default: 0)
//
// The watcher process inherits the driver's environment, so both processes
// log with the same settings.
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv(EnvDebug)
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
		cfg.AddSource = true
	}

	// RERUN_LOG_LEVEL takes precedence over LOG_LEVEL (but not RERUN_DEBUG)
	if debug == "" {
		if level := os.Getenv(EnvLevel); level != "" {
			cfg.Level = strings.ToLower(level)
		} else if level := os.Getenv(EnvLogLevel); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv(EnvFormat); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	if os.Getenv(EnvSource) == "1" {
		cfg.AddSource = true
	}

	return cfg
}

// New creates a new structured logger from the given configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch resolveFormat(cfg.Format, out) {
	case FormatText:
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	return slog.New(handler)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// resolveFormat turns FormatAuto into a concrete format for out.
func resolveFormat(format Format, out io.Writer) Format {
	switch format {
	case FormatText, FormatJSON:
		return format
	}
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return FormatText
	}
	return FormatJSON
}

// ParseLevel converts a string level to slog.Level. Unknown values map to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ValidLevel reports whether level is one ParseLevel understands.
func ValidLevel(level string) bool {
	switch strings.ToLower(level) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// ValidFormat reports whether format names a known output format.
func ValidFormat(format string) bool {
	switch Format(strings.ToLower(format)) {
	case FormatJSON, FormatText, FormatAuto:
		return true
	}
	return false
}

// WithComponent returns a new logger with a component name field.
// Component names help identify which part of the system generated the log.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(ComponentKey, component)
}

// WithGeneration returns a new logger tagged with a generation counter and its id.
func WithGeneration(logger *slog.Logger, generation int, id string) *slog.Logger {
	return logger.With(
		slog.Int(GenerationKey, generation),
		slog.String(GenerationIDKey, id),
	)
}

// String creates a string attribute.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int creates an int attribute.
func Int(key string, value int) slog.Attr {
	return slog.Int(key, value)
}

// PID creates a process identifier attribute.
func PID(pid int) slog.Attr {
	return slog.Int(PIDKey, pid)
}

// Command creates an attribute holding a command line.
func Command(argv []string) slog.Attr {
	return slog.String(CommandKey, strings.Join(argv, " "))
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value int64) slog.Attr {
	return slog.Int64(key+"_ms", value)
}

// Trace logs a message at trace level with optional attributes.
func Trace(logger *slog.Logger, msg string, attrs ...slog.Attr) {
	ctx := context.Background()
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}
	logger.LogAttrs(ctx, LevelTrace, msg, attrs...)
}
