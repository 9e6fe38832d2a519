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

package lifecycle

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"

	"golang.org/x/sys/unix"
)

// OpenDescriptors returns the descriptors currently open in this process, sorted.
// The list may include the descriptor used to read the directory itself,
// which is already closed by the time the caller sees it.
func OpenDescriptors() ([]int, error) {
	entries, err := os.ReadDir(descriptorDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list open descriptors: %w", err)
	}

	fds := make([]int, 0, len(entries))
	for _, entry := range entries {
		fd, err := strconv.Atoi(entry.Name())
		if err != nil {
			continue
		}
		fds = append(fds, fd)
	}
	sort.Ints(fds)

	return fds, nil
}

// SealDescriptors marks every open descriptor not listed in keep as close-on-exec.
// Programs executed afterwards inherit only keep plus whatever exec.Cmd
// explicitly maps onto their standard streams and ExtraFiles.
func SealDescriptors(keep ...int) error {
	fds, err := OpenDescriptors()
	if err != nil {
		return err
	}

	for _, fd := range fds {
		if slices.Contains(keep, fd) {
			continue
		}
		unix.CloseOnExec(fd)
	}

	return nil
}

// IsCloseOnExec reports whether fd carries FD_CLOEXEC.
func IsCloseOnExec(fd int) (bool, error) {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return false, fmt.Errorf("fcntl(%d, F_GETFD): %w", fd, err)
	}
	return flags&unix.FD_CLOEXEC != 0, nil
}
