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

// Package runloop drives the restart cycle: spawn, wait for a change, wait
// for the tree to go quiet, respawn.
package runloop

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/rerun/internal/log"
	"github.com/tombee/rerun/internal/monitor"
	rerunerrors "github.com/tombee/rerun/pkg/errors"
)

// DefaultQuietPeriod is how long the tree must be still before a restart.
const DefaultQuietPeriod = 100 * time.Millisecond

// Supervisor is the process side of the loop.
type Supervisor interface {
	Spawn(name string, args ...string) error
	Respawn(name string, args ...string) error
	Abort()
	Generation() int
}

// Monitor is the change source of the loop.
type Monitor interface {
	WaitForChange(ctx context.Context) (monitor.Change, error)
	WaitQuiet(ctx context.Context, d time.Duration) (bool, error)
}

// Reporter receives user-facing progress notifications.
type Reporter interface {
	// Started is called after each successful launch.
	Started(generation int, command []string)

	// Changed is called for the change that starts a restart cycle.
	Changed(change monitor.Change)

	// LaunchFailed is called when a restart could not launch the command.
	LaunchFailed(generation int, err error)
}

// FirstLaunchError is returned by Run when the initial launch fails.
type FirstLaunchError struct {
	Err error
}

func (e *FirstLaunchError) Error() string {
	return e.Err.Error()
}

func (e *FirstLaunchError) Unwrap() error {
	return e.Err
}

// Option configures a Loop.
type Option func(*Loop)

// WithQuietPeriod sets how long the tree must be still before a restart.
func WithQuietPeriod(d time.Duration) Option {
	return func(l *Loop) {
		l.quiet = d
	}
}

// WithMaxRestartsPerMinute bounds the restart rate. Zero means unlimited.
func WithMaxRestartsPerMinute(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(float64(n)/60), n)
		}
	}
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(l *Loop) {
		l.reporter = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// Loop alternates between the supervisor and the change monitor.
type Loop struct {
	sup      Supervisor
	mon      Monitor
	command  []string
	quiet    time.Duration
	limiter  *rate.Limiter
	reporter Reporter
	logger   *slog.Logger
}

// New creates a Loop running command. command must not be empty.
func New(sup Supervisor, mon Monitor, command []string, opts ...Option) *Loop {
	l := &Loop{
		sup:      sup,
		mon:      mon,
		command:  command,
		quiet:    DefaultQuietPeriod,
		reporter: nopReporter{},
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = log.WithComponent(l.logger, "runloop")
	return l
}

// Run launches the command and restarts it on every change until ctx is
// cancelled. Cancellation tears down the live generation and returns nil.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.sup.Spawn(l.command[0], l.command[1:]...); err != nil {
		runloopLaunchFailures.WithLabelValues("first").Inc()
		if retryable(err) {
			return &FirstLaunchError{Err: err}
		}
		return rerunerrors.Wrap(err, "failed to start")
	}
	defer l.sup.Abort()
	l.started()

	for {
		change, err := l.mon.WaitForChange(ctx)
		if err != nil {
			return l.stop(ctx, err)
		}
		l.logger.Debug("change detected", slog.String("path", change.Rel), log.EventKey, string(change.Op))
		l.reporter.Changed(change)

		if err := l.waitQuiet(ctx); err != nil {
			return l.stop(ctx, err)
		}

		if err := l.throttle(ctx); err != nil {
			return l.stop(ctx, err)
		}

		runloopRestarts.Inc()
		if err := l.sup.Respawn(l.command[0], l.command[1:]...); err != nil {
			runloopLaunchFailures.WithLabelValues("restart").Inc()
			if !retryable(err) {
				return rerunerrors.Wrap(err, "failed to restart")
			}
			l.logger.Warn("restart failed, waiting for the next change", log.Error(err))
			l.reporter.LaunchFailed(l.sup.Generation(), err)
			continue
		}
		l.started()
	}
}

// waitQuiet consumes changes until a full quiet period passes without one.
func (l *Loop) waitQuiet(ctx context.Context) error {
	for {
		changed, err := l.mon.WaitQuiet(ctx, l.quiet)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
	}
}

// throttle delays the restart when the per-minute limit is used up.
func (l *Loop) throttle(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}

	r := l.limiter.Reserve()
	delay := r.Delay()
	if delay == 0 {
		return nil
	}

	runloopRateLimited.Inc()
	l.logger.Warn("restart limit reached, delaying restart", log.Duration("delay", delay.Milliseconds()))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		r.Cancel()
		return ctx.Err()
	}
}

func (l *Loop) started() {
	gen := l.sup.Generation()
	runloopGeneration.Set(float64(gen))
	l.reporter.Started(gen, l.command)
}

// stop maps the error that ended the loop: cancellation is a clean exit.
func (l *Loop) stop(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		l.logger.Debug("stopping", log.Error(context.Cause(ctx)))
		return nil
	}
	return rerunerrors.Wrap(err, "change monitor")
}

// retryable reports whether err is one a later change may fix, such as a
// command that could not be launched yet.
func retryable(err error) bool {
	var classified rerunerrors.ErrorClassifier
	return errors.As(err, &classified) && classified.IsRetryable()
}

type nopReporter struct{}

func (nopReporter) Started(int, []string)   {}
func (nopReporter) Changed(monitor.Change)  {}
func (nopReporter) LaunchFailed(int, error) {}
