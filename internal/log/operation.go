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
	"log/slog"
	"time"
)

// Operation describes a supervisor action for logging purposes.
type Operation struct {
	// Name is the action (e.g., "spawn", "abort").
	Name string

	// PID is the watcher process the action targets, 0 when not yet known.
	PID int

	// Metadata contains additional fields.
	Metadata map[string]any
}

// Outcome describes how an operation finished.
type Outcome struct {
	// Success indicates whether the operation completed without error.
	Success bool

	// Error is the error message if the operation failed.
	Error string

	// DurationMs is the duration of the operation in milliseconds.
	DurationMs int64
}

// LogOperationStart logs the beginning of an operation at debug level.
func LogOperationStart(logger *slog.Logger, op *Operation) {
	attrs := []any{EventKey, op.Name + "_started"}
	if op.PID != 0 {
		attrs = append(attrs, PIDKey, op.PID)
	}
	for k, v := range op.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Debug(op.Name+" started", attrs...)
}

// LogOperationEnd logs the outcome of an operation.
func LogOperationEnd(logger *slog.Logger, op *Operation, out *Outcome) {
	attrs := []any{
		EventKey, op.Name + "_finished",
		"success", out.Success,
		DurationKey, out.DurationMs,
	}
	if op.PID != 0 {
		attrs = append(attrs, PIDKey, op.PID)
	}
	if out.Error != "" {
		attrs = append(attrs, "error", out.Error)
	}
	for k, v := range op.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelDebug
	message := op.Name + " completed"
	if !out.Success {
		level = slog.LevelWarn
		message = op.Name + " failed"
	}

	logger.Log(context.Background(), level, message, attrs...)
}

// Timed runs fn and logs its start and outcome with the elapsed time.
func Timed(logger *slog.Logger, op *Operation, fn func() error) error {
	start := time.Now()
	LogOperationStart(logger, op)

	err := fn()

	out := &Outcome{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		out.Error = err.Error()
	}
	LogOperationEnd(logger, op, out)

	return err
}
