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

package watcher

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"github.com/tombee/rerun/internal/log"
)

// State is the lifecycle phase of a watcher.
type State int

const (
	// StateStarting covers pty allocation and the launch of the target.
	StateStarting State = iota
	// StateRunning means the target was launched; it may have exited since.
	StateRunning
	// StateAborting means teardown began and the target has not been reaped yet.
	StateAborting
	// StateDone means the target is gone and the watcher may exit.
	StateDone
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type eventKind int

const (
	evAbort eventKind = iota
	evInputClosed
	evChildExited
	evGraceExpired
	evResize
	evIgnored
	evFault
)

func (k eventKind) String() string {
	switch k {
	case evAbort:
		return "abort"
	case evInputClosed:
		return "input_closed"
	case evChildExited:
		return "child_exited"
	case evGraceExpired:
		return "grace_expired"
	case evResize:
		return "resize"
	case evIgnored:
		return "ignored_signal"
	case evFault:
		return "fault"
	default:
		return "unknown"
	}
}

type event struct {
	kind eventKind

	// sig is set for signal-driven events.
	sig os.Signal

	// err is the result of waiting for the target, for evChildExited.
	err error

	// fault is the recovered panic value of a helper goroutine, for evFault.
	fault any
}

// process is the part of *os.Process the machine drives.
type process interface {
	Signal(sig os.Signal) error
	Kill() error
}

// terminal is the side-effect surface of the machine besides the target.
type terminal interface {
	// closeMaster closes the pty master, unblocking terminal reads in the target.
	closeMaster()

	// resize copies the real terminal's geometry onto the pty.
	resize() error

	// armGrace starts the grace timer; its expiry is delivered as evGraceExpired.
	armGrace()

	// stopGrace cancels a pending grace timer.
	stopGrace()
}

// machine is the watcher's event-driven state machine.
// All methods run on the event loop goroutine.
type machine struct {
	state  State
	target process
	term   terminal
	logger *slog.Logger
	killed bool
}

func newMachine(term terminal, logger *slog.Logger) *machine {
	return &machine{state: StateStarting, term: term, logger: logger}
}

// started records a launched target.
func (m *machine) started(target process) {
	m.target = target
	m.state = StateRunning
}

// done reports whether the event loop may exit.
func (m *machine) done() bool {
	return m.state == StateDone
}

func (m *machine) handle(ev event) {
	switch ev.kind {
	case evAbort:
		m.abort(ev)

	case evInputClosed:
		// Only forwarding stops. The target runs on until the abort signal.
		m.logger.Debug("input closed, forwarding stopped", "state", m.state.String())

	case evChildExited:
		// The only place the target record is cleared.
		m.target = nil
		m.logExit(ev.err)
		if m.state == StateAborting {
			m.term.stopGrace()
			m.state = StateDone
		}

	case evGraceExpired:
		if m.state != StateAborting || m.target == nil {
			return
		}
		m.logger.Warn("target ignored hang-up, killing it")
		m.killed = true
		if err := m.target.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			m.logger.Error("failed to kill target", log.Error(err))
		}

	case evResize:
		if m.state != StateRunning {
			return
		}
		if err := m.term.resize(); err != nil {
			m.logger.Debug("failed to propagate window size", log.Error(err))
		}

	case evIgnored:
		m.logger.Debug("ignoring signal", "signal", ev.sig)

	case evFault:
		// Re-raised on the event loop so Run's recovery tears the target down.
		panic(ev.fault)
	}
}

// abort starts the graceful teardown: close the terminal, hang up, arm the timer.
func (m *machine) abort(ev event) {
	if m.state == StateAborting || m.state == StateDone {
		return
	}
	m.logger.Debug("aborting", log.EventKey, ev.kind.String())

	m.state = StateAborting
	m.term.closeMaster()

	if m.target == nil {
		m.state = StateDone
		return
	}
	if err := m.target.Signal(syscall.SIGHUP); err != nil {
		// Exited but not reaped yet; the child-exited event is on its way.
		m.logger.Debug("hang-up not delivered", log.Error(err))
	}
	m.term.armGrace()
}

// forceKill kills a target that is still recorded. Used on internal faults.
func (m *machine) forceKill() {
	if m.target != nil {
		m.target.Kill()
	}
}

func (m *machine) logExit(err error) {
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		m.logger.Debug("target exited", "status", 0)
	case errors.As(err, &exitErr):
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			m.logger.Debug("target exited", "signal", ws.Signal().String())
			return
		}
		m.logger.Debug("target exited", "status", exitErr.ExitCode())
	default:
		m.logger.Warn("failed to wait for target", log.Error(err))
	}
}
