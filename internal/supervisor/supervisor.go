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

// Package supervisor runs at most one generation of the target command at a time.
//
// Each generation is a watcher process (the rerun binary re-executed in watcher
// mode) which in turn starts the target on a pseudo-terminal. The supervisor only
// ever talks to the watcher: it learns the launch outcome from a one-shot pipe,
// requests teardown with a single signal and reaps the watcher with Wait.
//
// A Supervisor is not safe for concurrent use. All calls are expected from the
// goroutine driving the restart loop.
package supervisor

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/rerun/internal/launcher"
	"github.com/tombee/rerun/internal/lifecycle"
	"github.com/tombee/rerun/internal/log"
	"github.com/tombee/rerun/internal/watcher"
)

// Supervisor owns the watcher process of the current generation.
type Supervisor struct {
	executable  string
	stdin       *os.File
	stdout      *os.File
	stderr      *os.File
	grace       time.Duration
	abortSignal syscall.Signal
	logLevel    string
	logFormat   string
	logger      *slog.Logger

	// watcher is non-nil exactly while a watcher process is started and not reaped.
	watcher      *exec.Cmd
	generation   int
	generationID string
}

// New creates a Supervisor. No process is started until Spawn.
func New(opts ...Option) (*Supervisor, error) {
	s := &Supervisor{
		stdin:       os.Stdin,
		stdout:      os.Stdout,
		stderr:      os.Stderr,
		grace:       watcher.DefaultGrace,
		abortSignal: syscall.SIGTERM,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = log.Discard()
	}
	s.logger = log.WithComponent(s.logger, "supervisor")

	if s.executable == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("failed to locate rerun executable: %w", err)
		}
		s.executable = exe
	}
	if s.grace <= 0 {
		return nil, fmt.Errorf("grace period must be positive, got %s", s.grace)
	}

	return s, nil
}

// Running reports whether a watcher is recorded.
func (s *Supervisor) Running() bool {
	return s.watcher != nil
}

// PID returns the watcher's process id, or 0 when none is running.
func (s *Supervisor) PID() int {
	if s.watcher == nil {
		return 0
	}
	return s.watcher.Process.Pid
}

// Generation returns the number of Spawn calls that started a watcher.
func (s *Supervisor) Generation() int {
	return s.generation
}

// GenerationID returns the unique id of the latest generation.
func (s *Supervisor) GenerationID() string {
	return s.generationID
}

// Spawn starts a new generation running name with args.
// It returns once the target was launched or failed to launch; a launch
// failure is a *LaunchError and leaves no process behind.
// Spawn panics if a watcher is still recorded.
func (s *Supervisor) Spawn(name string, args ...string) error {
	if s.watcher != nil {
		panic(ErrAlreadyRunning)
	}

	command := append([]string{name}, args...)
	s.generation++
	s.generationID = uuid.NewString()
	logger := log.WithGeneration(s.logger, s.generation, s.generationID)

	resultR, resultW, err := os.Pipe()
	if err != nil {
		recordSpawn("error")
		return fmt.Errorf("failed to create launch result pipe: %w", err)
	}
	defer resultR.Close()

	inv := watcher.Invocation{
		Grace:       s.grace,
		AbortSignal: s.abortSignal,
		LogLevel:    s.logLevel,
		LogFormat:   s.logFormat,
		Command:     command,
	}
	cmd := exec.Command(s.executable, inv.Args()...)
	cmd.Stdin = s.stdin
	cmd.Stdout = s.stdout
	cmd.Stderr = s.stderr
	cmd.ExtraFiles = []*os.File{resultW}

	err = cmd.Start()
	// The watcher holds the only write end from here on.
	resultW.Close()
	if err != nil {
		recordSpawn("error")
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	s.watcher = cmd
	supervisorLiveWatchers.Inc()

	launchErr := launcher.ReadResult(resultR)
	if launchErr == nil {
		recordSpawn("launched")
		logger.Info("command started", log.PID(cmd.Process.Pid), log.Command(command))
		return nil
	}

	// The watcher exits by itself after reporting a failure.
	s.reap()

	var errno syscall.Errno
	if errors.As(launchErr, &errno) {
		recordSpawn("launch_failed")
		recordLaunchFailure(errnoName(errno))
		logger.Warn("command failed to launch", log.Command(command), log.Error(errno))
		return &LaunchError{Command: command, Errno: errno}
	}
	recordSpawn("error")
	return fmt.Errorf("failed to read launch result: %w", launchErr)
}

// Respawn tears down the current generation, if any, and starts a new one.
func (s *Supervisor) Respawn(name string, args ...string) error {
	s.Abort()
	return s.Spawn(name, args...)
}

// Abort asks the watcher to tear down its target and waits until the watcher
// has been reaped. Without a watcher it does nothing.
func (s *Supervisor) Abort() {
	if s.watcher == nil {
		return
	}

	start := time.Now()
	op := &log.Operation{
		Name:     "abort",
		PID:      s.watcher.Process.Pid,
		Metadata: map[string]any{log.GenerationKey: s.generation},
	}
	log.Timed(s.logger, op, func() error {
		pid := s.watcher.Process.Pid
		if err := lifecycle.SendSignal(pid, s.abortSignal); err != nil && !errors.Is(err, lifecycle.ErrProcessNotRunning) {
			s.logger.Warn("failed to signal watcher", log.PID(pid), log.Error(err))
		}
		return s.reap()
	})
	recordAbort(time.Since(start))
}

// Close aborts the live generation. It is safe to call more than once.
func (s *Supervisor) Close() error {
	s.Abort()
	return nil
}

// reap waits for the watcher and clears the record.
func (s *Supervisor) reap() error {
	cmd := s.watcher
	err := cmd.Wait()
	s.watcher = nil
	supervisorLiveWatchers.Dec()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		switch exitErr.ExitCode() {
		case launcher.ExitLaunchFailed:
			return nil
		case watcher.ExitInternalFault:
			s.logger.Error("watcher reported an internal fault", log.PID(cmd.Process.Pid))
		}
		return fmt.Errorf("watcher %d: %w", cmd.Process.Pid, err)
	}
	return err
}

func errnoName(errno syscall.Errno) string {
	switch errno {
	case syscall.ENOENT:
		return "ENOENT"
	case syscall.EACCES:
		return "EACCES"
	case syscall.ENOEXEC:
		return "ENOEXEC"
	case syscall.EINVAL:
		return "EINVAL"
	default:
		return fmt.Sprintf("errno_%d", int(errno))
	}
}
