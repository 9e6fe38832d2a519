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

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/rerun/internal/config"
	"github.com/tombee/rerun/internal/lifecycle"
	"github.com/tombee/rerun/internal/log"
	"github.com/tombee/rerun/internal/metrics"
	"github.com/tombee/rerun/internal/monitor"
	"github.com/tombee/rerun/internal/runloop"
	"github.com/tombee/rerun/internal/supervisor"
	rerunerrors "github.com/tombee/rerun/pkg/errors"
)

// Version information, set from main
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// metricsShutdownTimeout bounds the wait for in-flight scrapes on exit.
const metricsShutdownTimeout = 5 * time.Second

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	version, commit, buildDate = v, c, b
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return version, commit, buildDate
}

// Streams are the standard streams handed to the watcher and the target.
type Streams struct {
	In  *os.File
	Out *os.File
	Err *os.File
}

// NewRootCommand creates the rerun command bound to the process streams.
func NewRootCommand() *cobra.Command {
	return newRootCommand(Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr})
}

func newRootCommand(streams Streams) *cobra.Command {
	a := &app{streams: streams}

	cmd := &cobra.Command{
		Use:   "rerun [flags] [--] command [args...]",
		Short: "Restart a command whenever a directory changes",
		Long: `rerun runs a command and restarts it every time a file below the watched
directory changes. The command stays interactive: it reads input through a
pseudo-terminal and sees window-size changes.

On every restart the command is sent a hang-up and given a grace period to
exit before it is killed. Send SIGQUIT (Ctrl-\) or SIGTERM to stop rerun.`,
		Example: `  rerun go run ./cmd/server
  rerun -d src -i '**/*.py' -- python app.py --port 8080`,
		Args:          cobra.ArbitraryArgs,
		Version:       version,
		SilenceUsage:  true, // Don't show usage on errors
		SilenceErrors: true, // We handle errors ourselves for proper exit codes
		RunE:          a.run,
	}
	cmd.SetVersionTemplate(fmt.Sprintf("rerun %s (commit %s, built %s)\n", version, commit, buildDate))
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return NewUsageError("invalid arguments", err)
	})

	a.flags.register(cmd.Flags())

	return cmd
}

// app is the state of one root command invocation.
type app struct {
	streams Streams
	flags   flags
}

func (a *app) run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Fprint(a.streams.Err, cmd.UsageString())
		return NewUsageError("no command given", nil)
	}

	cfg, err := a.flags.resolve(cmd.Flags())
	if err != nil {
		return err
	}

	logger := a.newLogger(cfg)
	logger.Debug("starting", log.Command(args), slog.String("root", cfg.Root))

	mon, err := monitor.New(monitor.Options{
		Root:     cfg.Root,
		Include:  cfg.Include,
		Exclude:  cfg.Exclude,
		MaxDepth: cfg.MaxDepth,
		Logger:   logger,
	})
	if err != nil {
		return NewConfigError(fmt.Sprintf("cannot watch %s", cfg.Root), err)
	}
	defer mon.Close()

	sup, err := supervisor.New(
		supervisor.WithStdio(a.streams.In, a.streams.Out, a.streams.Err),
		supervisor.WithGrace(cfg.GracePeriod),
		supervisor.WithLogger(logger),
		supervisor.WithWatcherLogging(cfg.Log.Level, cfg.Log.Format),
	)
	if err != nil {
		return NewFailure("failed to create supervisor", err)
	}
	defer sup.Close()

	if cfg.PIDFile != "" {
		pidFile, err := acquirePIDFile(cfg.PIDFile, logger)
		if err != nil {
			return NewFailure(fmt.Sprintf("failed to write PID file %s", cfg.PIDFile), err)
		}
		defer func() {
			if err := pidFile.Release(); err != nil {
				logger.Warn("failed to remove PID file", log.Error(err))
			}
		}()
	}

	if cfg.MetricsAddr != "" {
		srv := metrics.New(cfg.MetricsAddr, logger)
		if err := srv.Start(); err != nil {
			return NewFailure("failed to start metrics server", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGQUIT, syscall.SIGTERM)
	defer stop()
	defer ignoreInterrupts(logger)()

	opts := []runloop.Option{
		runloop.WithQuietPeriod(cfg.QuietPeriod),
		runloop.WithMaxRestartsPerMinute(cfg.MaxRestartsPerMinute),
		runloop.WithLogger(logger),
	}
	if !a.flags.silent {
		opts = append(opts, runloop.WithReporter(newStatusReporter(a.streams.Err)))
	}

	err = runloop.New(sup, mon, args, opts...).Run(ctx)
	var firstErr *runloop.FirstLaunchError
	switch {
	case errors.As(err, &firstErr):
		return NewFailure("", firstErr.Err)
	case err != nil:
		return NewFailure("rerun stopped", err)
	}

	logger.Debug("quit")
	return nil
}

func (a *app) newLogger(cfg *config.Config) *slog.Logger {
	lc := log.FromEnv()
	lc.Level = cfg.Log.Level
	lc.Format = log.Format(cfg.Log.Format)
	lc.Output = a.streams.Err
	return log.New(lc)
}

// acquirePIDFile writes the PID file, replacing one left behind by a rerun
// that is no longer running.
func acquirePIDFile(path string, logger *slog.Logger) (*lifecycle.PIDFile, error) {
	pidFile := lifecycle.NewPIDFile(path)
	err := pidFile.Acquire(os.Getpid())
	if err == nil {
		return pidFile, nil
	}
	if !errors.Is(err, lifecycle.ErrPIDFileExists) {
		return nil, err
	}

	pid, readErr := pidFile.Read()
	if readErr == nil && lifecycle.IsProcessRunning(pid) {
		if command, cmdErr := lifecycle.ProcessCommand(pid); cmdErr == nil {
			return nil, fmt.Errorf("%w: held by PID %d (%s)", err, pid, command)
		}
		return nil, fmt.Errorf("%w: held by PID %d", err, pid)
	}

	logger.Warn("removing stale PID file", slog.String("path", path), log.PID(pid))
	if err := os.Remove(path); err != nil {
		return nil, rerunerrors.Wrap(err, "failed to remove stale PID file")
	}
	if err := pidFile.Acquire(os.Getpid()); err != nil {
		return nil, err
	}
	return pidFile, nil
}

// ignoreInterrupts catches SIGINT so it does not stop rerun. An ignored
// disposition would be inherited across exec; a caught one is reset.
// The returned function restores the default.
func ignoreInterrupts(logger *slog.Logger) func() {
	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	go func() {
		for range interrupts {
			logger.Debug("interrupt ignored")
		}
	}()
	return func() {
		signal.Stop(interrupts)
		close(interrupts)
	}
}
