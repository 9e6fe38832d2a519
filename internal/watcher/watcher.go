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

// Package watcher implements the intermediary process between the supervisor
// and the target command.
//
// A watcher owns a pseudo-terminal pair. The target reads its standard input
// from the subordinate side while the watcher forwards its own standard input
// into the master. The watcher mirrors window-size changes onto the pty and,
// on the abort signal, tears the target down: close the master, send SIGHUP,
// wait up to the grace period, then SIGKILL.
//
// The watcher is the rerun binary re-executed with Flag as its first argument.
package watcher

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/tombee/rerun/internal/launcher"
	"github.com/tombee/rerun/internal/lifecycle"
	"github.com/tombee/rerun/internal/log"
)

// ExitInternalFault is the exit status after an unexpected panic.
const ExitInternalFault = 70

// ResultFD is the descriptor the supervisor passes the launch-result pipe on.
const ResultFD = 3

// copyChunk is the read size of the input copy loop.
const copyChunk = 4096

// foregroundPoll is how often a watcher in a background job checks whether
// it has been moved to the foreground.
const foregroundPoll = 200 * time.Millisecond

// Replaced in tests.
var (
	openPTY      = pty.Open
	wrapTerminal = func(t terminal) terminal { return t }
)

// Options configures Run.
type Options struct {
	Invocation

	// Stdin is forwarded to the pty master and is the source of the window size.
	Stdin *os.File

	// Stdout and Stderr are handed to the target unchanged.
	Stdout *os.File
	Stderr *os.File

	// Result receives the launch outcome and is closed by Run.
	Result io.WriteCloser

	Logger *slog.Logger
}

// Main runs a watcher from its command line and returns the exit status.
// args are the process arguments following Flag.
func Main(args []string) int {
	result := os.NewFile(ResultFD, "launch-result")

	inv, err := ParseInvocation(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rerun: %v\n", err)
		launcher.Report(result, err)
		return launcher.ExitLaunchFailed
	}

	cfg := log.FromEnv()
	if inv.LogLevel != "" {
		cfg.Level = inv.LogLevel
	}
	if inv.LogFormat != "" {
		cfg.Format = log.Format(inv.LogFormat)
	}

	return Run(Options{
		Invocation: inv,
		Stdin:      os.Stdin,
		Stdout:     os.Stdout,
		Stderr:     os.Stderr,
		Result:     result,
		Logger:     log.WithComponent(log.New(cfg), "watcher"),
	})
}

// Run launches the target and supervises it until it has been torn down.
// It returns the exit status for the watcher process.
func Run(opts Options) (code int) {
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.AbortSignal == 0 {
		opts.AbortSignal = syscall.SIGTERM
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	w := &watcher{opts: opts, logger: opts.Logger}
	w.machine = newMachine(wrapTerminal(w), opts.Logger)
	if len(opts.Command) == 0 {
		return w.launchFailed(fmt.Errorf("%w: no command", ErrInvalidInvocation))
	}

	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(opts.Stderr, "rerun: watcher internal fault: %v\n%s", r, debug.Stack())
			if !w.reported {
				w.launchFailed(fmt.Errorf("watcher internal fault: %v", r))
			}
			w.machine.forceKill()
			code = ExitInternalFault
		}
	}()

	return w.run()
}

// watcher holds the process-side state of a single generation.
type watcher struct {
	opts    Options
	logger  *slog.Logger
	machine *machine

	// reported is set once the launch outcome has been written.
	reported bool

	master *os.File
	grace  *time.Timer
	graceC <-chan time.Time
}

func (w *watcher) run() int {
	sigs := make(chan os.Signal, 16)
	signal.Notify(sigs, subscribedSignals(w.opts.AbortSignal)...)
	defer signal.Stop(sigs)

	master, sub, err := openPTY()
	if err != nil {
		return w.launchFailed(fmt.Errorf("failed to open pty: %w", err))
	}
	w.master = master
	if err := pty.InheritSize(w.opts.Stdin, master); err != nil {
		w.logger.Debug("window size not inherited", log.Error(err))
	}

	if err := lifecycle.SealDescriptors(0, 1, 2); err != nil {
		w.logger.Warn("failed to seal descriptors", log.Error(err))
	}

	cmd := exec.Command(w.opts.Command[0], w.opts.Command[1:]...)
	cmd.Stdin = sub
	cmd.Stdout = w.opts.Stdout
	cmd.Stderr = w.opts.Stderr

	err = launcher.Start(cmd, w.opts.Result)
	w.reported = true
	sub.Close()
	if err != nil {
		master.Close()
		w.logger.Debug("launch failed", log.Command(w.opts.Command), log.Error(err))
		return launcher.ExitLaunchFailed
	}
	w.machine.started(cmd.Process)
	w.logger.Debug("target started", log.PID(cmd.Process.Pid), log.Command(w.opts.Command))

	events := make(chan event, 4)
	go guard(events, func() {
		err := cmd.Wait()
		events <- event{kind: evChildExited, err: err}
	})
	go guard(events, func() {
		w.forwardInput(master)
		events <- event{kind: evInputClosed}
	})
	// The master only carries the line discipline echo of forwarded input.
	go io.Copy(io.Discard, master)

	for !w.machine.done() {
		select {
		case sig := <-sigs:
			w.machine.handle(classify(sig, w.opts.AbortSignal))
		case ev := <-events:
			w.machine.handle(ev)
		case <-w.graceC:
			w.graceC = nil
			w.machine.handle(event{kind: evGraceExpired})
		}
	}

	return 0
}

// guard runs fn and turns a panic into an evFault for the event loop.
func guard(events chan<- event, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			events <- event{kind: evFault, fault: fmt.Sprintf("%v\n%s", r, debug.Stack())}
		}
	}()
	fn()
}

// forwardInput copies stdin into the master until stdin reports end of input.
// Writes that fail after the master closed are dropped.
func (w *watcher) forwardInput(master *os.File) {
	fd := int(w.opts.Stdin.Fd())
	buf := make([]byte, copyChunk)
	for {
		w.waitForeground(fd)
		n, err := w.opts.Stdin.Read(buf)
		if n > 0 {
			if _, werr := master.Write(buf[:n]); werr != nil {
				log.Trace(w.logger, "input dropped", log.Int("bytes", n), log.Error(werr))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				w.logger.Debug("input read failed", log.Error(err))
			}
			return
		}
	}
}

// waitForeground blocks while fd is a terminal owned by another process
// group. A read from a background job raises SIGTTIN, which the watcher
// catches, so the read would fail and be retried forever.
func (w *watcher) waitForeground(fd int) {
	logged := false
	for !isForeground(fd) {
		if !logged {
			w.logger.Debug("in background job, input paused")
			logged = true
		}
		time.Sleep(foregroundPoll)
	}
}

// isForeground reports whether fd is not a terminal or is a terminal whose
// foreground process group is ours.
func isForeground(fd int) bool {
	pgrp, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	if err != nil {
		return true
	}
	return pgrp == unix.Getpgrp()
}

func (w *watcher) launchFailed(err error) int {
	w.reported = true
	w.logger.Debug("launch failed", log.Error(err))
	if rerr := launcher.Report(w.opts.Result, err); rerr != nil {
		w.logger.Warn("failed to report launch result", log.Error(rerr))
	}
	return launcher.ExitLaunchFailed
}

func (w *watcher) closeMaster() {
	if w.master != nil {
		w.master.Close()
	}
}

func (w *watcher) resize() error {
	return pty.InheritSize(w.opts.Stdin, w.master)
}

func (w *watcher) armGrace() {
	w.grace = time.NewTimer(w.opts.Grace)
	w.graceC = w.grace.C
}

func (w *watcher) stopGrace() {
	if w.grace != nil {
		w.grace.Stop()
	}
	w.graceC = nil
}
