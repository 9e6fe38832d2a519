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
	"io"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/pflag"
)

// Flag is the first argument of a watcher invocation. The rerun binary
// checks for it before building its command tree.
const Flag = "--rerun-watcher"

// DefaultGrace is how long a target gets to exit after the hang-up.
const DefaultGrace = 2 * time.Second

// ErrInvalidInvocation is returned for malformed watcher arguments.
var ErrInvalidInvocation = errors.New("invalid watcher invocation")

// Invocation is everything the driver hands to a watcher process on its command line.
type Invocation struct {
	// Grace is the time between hang-up and kill.
	Grace time.Duration

	// AbortSignal requests the graceful teardown.
	AbortSignal syscall.Signal

	// LogLevel and LogFormat override the inherited environment when set.
	LogLevel  string
	LogFormat string

	// Command is the target program and its arguments.
	Command []string
}

// Args renders the invocation as the argument list following the executable.
func (inv Invocation) Args() []string {
	args := []string{
		Flag,
		"--grace", inv.Grace.String(),
		"--abort-signal", strconv.Itoa(int(inv.AbortSignal)),
	}
	if inv.LogLevel != "" {
		args = append(args, "--log-level", inv.LogLevel)
	}
	if inv.LogFormat != "" {
		args = append(args, "--log-format", inv.LogFormat)
	}
	args = append(args, "--")
	return append(args, inv.Command...)
}

// ParseInvocation parses the arguments following Flag.
func ParseInvocation(args []string) (Invocation, error) {
	fs := pflag.NewFlagSet("rerun-watcher", pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SetInterspersed(false)

	var inv Invocation
	var sig int
	fs.DurationVar(&inv.Grace, "grace", DefaultGrace, "time between hang-up and kill")
	fs.IntVar(&sig, "abort-signal", int(syscall.SIGTERM), "signal that starts the teardown")
	fs.StringVar(&inv.LogLevel, "log-level", "", "log level")
	fs.StringVar(&inv.LogFormat, "log-format", "", "log format")

	if err := fs.Parse(args); err != nil {
		return Invocation{}, fmt.Errorf("%w: %v", ErrInvalidInvocation, err)
	}
	if inv.Grace <= 0 {
		return Invocation{}, fmt.Errorf("%w: grace must be positive, got %s", ErrInvalidInvocation, inv.Grace)
	}
	if sig <= 0 || sig >= 65 {
		return Invocation{}, fmt.Errorf("%w: bad abort signal %d", ErrInvalidInvocation, sig)
	}
	inv.AbortSignal = syscall.Signal(sig)

	inv.Command = fs.Args()
	if len(inv.Command) == 0 {
		return Invocation{}, fmt.Errorf("%w: no command", ErrInvalidInvocation)
	}

	return inv, nil
}
