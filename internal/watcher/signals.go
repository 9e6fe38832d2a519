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
	"os"
	"syscall"
)

// jobControlSignals are caught and dropped by the watcher. It is not a normal
// terminal job and must not be stopped or killed by them. Catching rather than
// ignoring keeps the target's dispositions at their defaults across exec.
var jobControlSignals = []syscall.Signal{
	syscall.SIGHUP,
	syscall.SIGINT,
	syscall.SIGQUIT,
	syscall.SIGTSTP,
	syscall.SIGTTIN,
	syscall.SIGTTOU,
	syscall.SIGPIPE,
	syscall.SIGUSR1,
	syscall.SIGUSR2,
	syscall.SIGALRM,
}

// subscribedSignals lists every signal the event loop receives.
func subscribedSignals(abort syscall.Signal) []os.Signal {
	sigs := []os.Signal{abort, syscall.SIGWINCH}
	for _, sig := range jobControlSignals {
		if sig != abort {
			sigs = append(sigs, sig)
		}
	}
	return sigs
}

// classify turns a received signal into an event.
func classify(sig os.Signal, abort syscall.Signal) event {
	switch sig {
	case abort:
		return event{kind: evAbort, sig: sig}
	case syscall.SIGWINCH:
		return event{kind: evResize, sig: sig}
	default:
		return event{kind: evIgnored, sig: sig}
	}
}
