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

// Package launcher starts the supervised command and reports the outcome of
// the launch on a one-shot result pipe.
//
// The pipe is the only channel through which a launch failure can reach the
// supervisor, which sits two processes away from the exec call. Closing the
// pipe without writing anything means the command is running; four bytes
// (a big-endian errno) mean it never started.
package launcher

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/exec"
	"syscall"
)

// ExitLaunchFailed is the exit status of a watcher whose command could not be started.
const ExitLaunchFailed = 127

// resultSize is the encoded size of a launch failure.
const resultSize = 4

// ErrShortResult is returned when the result pipe closes mid-value.
var ErrShortResult = errors.New("truncated launch result")

// Start starts cmd and reports the outcome on result, which is closed in
// both cases. The error from cmd.Start is returned unchanged.
func Start(cmd *exec.Cmd, result io.WriteCloser) error {
	startErr := cmd.Start()
	if err := Report(result, startErr); err != nil && startErr == nil {
		return fmt.Errorf("failed to report launch result: %w", err)
	}
	return startErr
}

// Report encodes the outcome of a launch on result and closes it.
// A nil launchErr closes the pipe without writing.
func Report(result io.WriteCloser, launchErr error) error {
	if launchErr == nil {
		return result.Close()
	}

	var buf [resultSize]byte
	binary.BigEndian.PutUint32(buf[:], uint32(Errno(launchErr)))
	_, werr := result.Write(buf[:])
	cerr := result.Close()
	if werr != nil {
		return fmt.Errorf("failed to write launch result: %w", werr)
	}
	return cerr
}

// ReadResult blocks until the writer closes the pipe.
// It returns nil for a successful launch and the syscall.Errno otherwise.
func ReadResult(r io.Reader) error {
	var buf [resultSize]byte
	n, err := io.ReadFull(r, buf[:])
	switch {
	case n == 0 && errors.Is(err, io.EOF):
		return nil
	case n == resultSize:
		return syscall.Errno(binary.BigEndian.Uint32(buf[:]))
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrShortResult
	default:
		return fmt.Errorf("failed to read launch result: %w", err)
	}
}

// Errno maps a launch error to the OS error number it stands for.
// Errors that carry no errno map to EINVAL.
func Errno(err error) syscall.Errno {
	var errno syscall.Errno
	switch {
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	default:
		return syscall.EINVAL
	}
}
