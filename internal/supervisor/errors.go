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
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// ErrAlreadyRunning is the panic value of Spawn when a watcher is still recorded.
var ErrAlreadyRunning = errors.New("supervisor: spawn while a watcher is running")

// LaunchError reports that the target command could not be started.
type LaunchError struct {
	// Command is the target program and its arguments.
	Command []string

	// Errno is the OS error of the failed exec.
	Errno syscall.Errno
}

// Error implements the error interface.
func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.program(), e.Errno)
}

// Unwrap exposes the errno for errors.Is.
func (e *LaunchError) Unwrap() error {
	return e.Errno
}

// IsUserVisible implements errors.UserVisibleError.
func (e *LaunchError) IsUserVisible() bool { return true }

// UserMessage implements errors.UserVisibleError.
func (e *LaunchError) UserMessage() string {
	return fmt.Sprintf("%s: %v", e.program(), e.Errno)
}

// Suggestion implements errors.UserVisibleError.
func (e *LaunchError) Suggestion() string {
	switch e.Errno {
	case syscall.ENOENT:
		if strings.Contains(e.program(), "/") {
			return fmt.Sprintf("Check that %s exists", e.program())
		}
		return fmt.Sprintf("Check that %s is installed and on your PATH", e.program())
	case syscall.EACCES:
		return fmt.Sprintf("Check that %s is executable", e.program())
	case syscall.ENOEXEC:
		return "Add a #! line to the script or run it through its interpreter"
	default:
		return ""
	}
}

// ErrorType implements errors.ErrorClassifier.
func (e *LaunchError) ErrorType() string { return "launch" }

// IsRetryable implements errors.ErrorClassifier. The next change may fix the command.
func (e *LaunchError) IsRetryable() bool { return true }

func (e *LaunchError) program() string {
	if len(e.Command) == 0 {
		return "command"
	}
	return e.Command[0]
}
