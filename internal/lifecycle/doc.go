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

/*
Package lifecycle holds the low-level process plumbing shared by the rerun
driver and its watcher processes.

# Process Operations

Liveness checks and signal delivery by PID:

	if lifecycle.IsProcessRunning(pid) {
	    _ = lifecycle.SendSignal(pid, syscall.SIGHUP)
	}

# Descriptor Hygiene

Before a watcher executes the target command it seals every descriptor it
does not explicitly hand over, so nothing leaks from one generation into the
next:

	if err := lifecycle.SealDescriptors(0, 1, 2); err != nil {
	    // Handle error
	}

Sealing marks descriptors close-on-exec rather than closing them, because a
Go process shares its descriptor table with the runtime (netpoller, signal
pipes) and closing those would break the watcher itself.

# PID File Management

The driver can publish its PID so scripts can send it the quit signal. The
file is created with O_EXCL and held under an exclusive flock:

	pf := lifecycle.NewPIDFile("/run/user/1000/rerun.pid")
	if err := pf.Acquire(os.Getpid()); err != nil {
	    // Handle error
	}
	defer pf.Release()
*/
package lifecycle
