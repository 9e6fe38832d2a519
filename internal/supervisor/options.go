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

package supervisor

import (
	"log/slog"
	"os"
	"syscall"
	"time"
)

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithExecutable sets the binary re-executed as the watcher.
// It must dispatch watcher.Flag to watcher.Main. Defaults to os.Executable().
func WithExecutable(path string) Option {
	return func(s *Supervisor) {
		s.executable = path
	}
}

// WithStdio sets the standard streams handed to each watcher.
// Files are passed by descriptor, so no copying happens in this process.
func WithStdio(stdin, stdout, stderr *os.File) Option {
	return func(s *Supervisor) {
		s.stdin = stdin
		s.stdout = stdout
		s.stderr = stderr
	}
}

// WithGrace sets how long a target may take to exit after the hang-up.
func WithGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		s.grace = d
	}
}

// WithAbortSignal sets the signal that asks a watcher to tear down.
func WithAbortSignal(sig syscall.Signal) Option {
	return func(s *Supervisor) {
		s.abortSignal = sig
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		s.logger = logger
	}
}

// WithWatcherLogging forwards log settings to watcher processes.
func WithWatcherLogging(level, format string) Option {
	return func(s *Supervisor) {
		s.logLevel = level
		s.logFormat = format
	}
}
