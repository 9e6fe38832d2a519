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
	"errors"
	"fmt"
	"io"
	"os"

	rerunerrors "github.com/tombee/rerun/pkg/errors"
)

// Exit codes for rerun
const (
	ExitSuccess = 0
	ExitFailure = 1
	ExitUsage   = 2
	ExitConfig  = 3
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	switch {
	case e.Message == "" && e.Cause != nil:
		return e.Cause.Error()
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewUsageError creates an error for invalid command-line usage
func NewUsageError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitUsage, Message: msg, Cause: cause}
}

// NewConfigError creates an error for invalid configuration
func NewConfigError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Cause: cause}
}

// NewFailure creates an error for runtime failures
func NewFailure(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitFailure, Message: msg, Cause: cause}
}

// HandleExitError prints err and exits with its code. A nil error exits 0.
func HandleExitError(err error) {
	os.Exit(reportError(os.Stderr, err))
}

// reportError writes err and any suggestion to w and returns the exit code.
func reportError(w io.Writer, err error) int {
	if err == nil {
		return ExitSuccess
	}

	code := ExitFailure
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	if msg := err.Error(); msg != "" {
		fmt.Fprintln(w, "Error:", msg)
	}
	printUserVisibleSuggestion(w, err)

	return code
}

// printUserVisibleSuggestion prints the suggestion of the first
// UserVisibleError in the chain, if it has one.
func printUserVisibleSuggestion(w io.Writer, err error) {
	for err != nil {
		if userErr, ok := err.(rerunerrors.UserVisibleError); ok {
			if userErr.IsUserVisible() {
				if suggestion := userErr.Suggestion(); suggestion != "" {
					fmt.Fprintf(w, "\nSuggestion: %s\n", suggestion)
				}
			}
			return
		}
		err = errors.Unwrap(err)
	}
}
