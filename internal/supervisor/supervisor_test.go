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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/rerun/internal/lifecycle"
)

type harness struct {
	sup    *Supervisor
	input  *os.File
	stdout string
	stderr string
	dir    string
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	dir := t.TempDir()
	stdinR, stdinW, err := os.Pipe()
	require.NoError(t, err)
	stdout, err := os.Create(filepath.Join(dir, "stdout"))
	require.NoError(t, err)
	stderr, err := os.Create(filepath.Join(dir, "stderr"))
	require.NoError(t, err)

	opts = append([]Option{WithStdio(stdinR, stdout, stderr)}, opts...)
	sup, err := New(opts...)
	require.NoError(t, err)

	t.Cleanup(func() {
		sup.Close()
		stdinR.Close()
		stdinW.Close()
		stdout.Close()
		stderr.Close()
	})

	return &harness{sup: sup, input: stdinW, stdout: stdout.Name(), stderr: stderr.Name(), dir: dir}
}

func (h *harness) read(t *testing.T, path string) string {
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func (h *harness) waitOutput(t *testing.T, want string) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return h.read(t, h.stdout) == want
	}, 5*time.Second, 20*time.Millisecond, "stdout never became %q", want)
}

// readPIDs parses one PID per line from path.
func readPIDs(t *testing.T, path string) []int {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	require.NoError(t, err)

	var pids []int
	for _, line := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(line)
		require.NoError(t, err)
		pids = append(pids, pid)
	}
	return pids
}

func assertReaped(t *testing.T, pid int) {
	t.Helper()
	var ws syscall.WaitStatus
	_, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	assert.ErrorIs(t, err, syscall.ECHILD, "watcher %d must already be reaped", pid)
	assert.False(t, lifecycle.IsProcessRunning(pid), "watcher %d still present", pid)
}

func TestSupervisor_NullInputKeepsTargetRunning(t *testing.T) {
	devNull, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer devNull.Close()
	out, err := os.Create(filepath.Join(t.TempDir(), "out"))
	require.NoError(t, err)
	defer out.Close()

	sup, err := New(WithStdio(devNull, out, out))
	require.NoError(t, err)
	defer sup.Close()

	require.NoError(t, sup.Spawn("sh", "-c", "sleep 0.5; echo alive"))
	assert.Eventually(t, func() bool {
		data, err := os.ReadFile(out.Name())
		return err == nil && string(data) == "alive\n"
	}, 5*time.Second, 20*time.Millisecond, "target was torn down when input ended")
	assert.True(t, sup.Running())
}

func TestSupervisor_CatThenEcho(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sup.Spawn("cat"))
	require.True(t, h.sup.Running())
	assert.Equal(t, 1, h.sup.Generation())
	assert.NotEmpty(t, h.sup.GenerationID())

	_, err := h.input.Write([]byte("hello\n"))
	require.NoError(t, err)
	h.waitOutput(t, "hello\n")

	pid := h.sup.PID()
	h.sup.Abort()
	assert.False(t, h.sup.Running())
	assert.Zero(t, h.sup.PID())
	assertReaped(t, pid)

	firstID := h.sup.GenerationID()
	require.NoError(t, h.sup.Respawn("echo", "hi"))
	assert.Equal(t, 2, h.sup.Generation())
	assert.NotEqual(t, firstID, h.sup.GenerationID())
	h.waitOutput(t, "hello\nhi\n")
}

func TestSupervisor_LaunchFailure(t *testing.T) {
	tests := []struct {
		name    string
		command string
	}{
		{"absolute path", filepath.Join(t.TempDir(), "missing")},
		{"path lookup", "rerun-test-command-that-does-not-exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			err := h.sup.Spawn(tt.command, "arg")
			require.Error(t, err)
			assert.ErrorIs(t, err, syscall.ENOENT)

			var launchErr *LaunchError
			require.ErrorAs(t, err, &launchErr)
			assert.Equal(t, []string{tt.command, "arg"}, launchErr.Command)
			assert.NotEmpty(t, launchErr.Suggestion())

			assert.False(t, h.sup.Running(), "no watcher left behind")
			var ws syscall.WaitStatus
			_, werr := syscall.Wait4(-1, &ws, syscall.WNOHANG, nil)
			assert.ErrorIs(t, werr, syscall.ECHILD, "no unreaped children")
		})
	}
}

func TestSupervisor_AbortIsIdempotent(t *testing.T) {
	h := newHarness(t)

	h.sup.Abort()
	require.NoError(t, h.sup.Spawn("cat"))
	h.sup.Abort()
	h.sup.Abort()
	assert.NoError(t, h.sup.Close())
	assert.False(t, h.sup.Running())
}

func TestSupervisor_SpawnWhileRunningPanics(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sup.Spawn("cat"))
	assert.PanicsWithValue(t, ErrAlreadyRunning, func() {
		h.sup.Spawn("cat")
	})
	assert.True(t, h.sup.Running(), "the original generation is untouched")
}

func TestSupervisor_PromptExitSkipsGrace(t *testing.T) {
	grace := 3 * time.Second
	h := newHarness(t, WithGrace(grace))

	require.NoError(t, h.sup.Spawn("cat"))

	start := time.Now()
	h.sup.Abort()
	assert.Less(t, time.Since(start), grace)
}

func TestSupervisor_StubbornTargetIsKilled(t *testing.T) {
	grace := 500 * time.Millisecond
	h := newHarness(t, WithGrace(grace))
	pidFile := filepath.Join(h.dir, "target.pid")

	script := "echo $$ > " + pidFile + "; trap '' HUP; exec sleep 30"
	require.NoError(t, h.sup.Spawn("sh", "-c", script))

	var target int
	require.Eventually(t, func() bool {
		pids := readPIDs(t, pidFile)
		if len(pids) == 1 {
			target = pids[0]
			return true
		}
		return false
	}, 5*time.Second, 20*time.Millisecond)

	start := time.Now()
	h.sup.Abort()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, grace)
	assert.Less(t, elapsed, grace+3*time.Second)
	assert.False(t, lifecycle.IsProcessRunning(target), "target %d survived the kill", target)
	assert.Contains(t, h.read(t, h.stderr), "target ignored hang-up")
}

func TestSupervisor_AtMostOneGeneration(t *testing.T) {
	h := newHarness(t)
	pidFile := filepath.Join(h.dir, "pids")
	script := "echo $$ >> " + pidFile + "; exec sleep 30"

	for i := 1; i <= 3; i++ {
		require.NoError(t, h.sup.Respawn("sh", "-c", script))

		var pids []int
		require.Eventually(t, func() bool {
			pids = readPIDs(t, pidFile)
			return len(pids) == i
		}, 5*time.Second, 20*time.Millisecond)

		for _, old := range pids[:i-1] {
			assert.False(t, lifecycle.IsProcessRunning(old), "generation with pid %d still running", old)
		}
		assert.True(t, lifecycle.IsProcessRunning(pids[i-1]))
	}
}

func TestSupervisor_InputAfterAbortGoesToNextGeneration(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.sup.Spawn("cat"))
	_, err := h.input.Write([]byte("one\ntwo\n"))
	require.NoError(t, err)
	h.waitOutput(t, "one\ntwo\n")

	h.sup.Abort()
	_, err = h.input.Write([]byte("late\n"))
	require.NoError(t, err)

	require.NoError(t, h.sup.Spawn("cat"))
	h.waitOutput(t, "one\ntwo\nlate\n")
}

func TestNew_RejectsBadGrace(t *testing.T) {
	_, err := New(WithGrace(0), WithExecutable("/bin/true"))
	assert.Error(t, err)
}

func TestLaunchError(t *testing.T) {
	err := &LaunchError{Command: []string{"./build.sh"}, Errno: syscall.EACCES}

	assert.Equal(t, "failed to launch ./build.sh: permission denied", err.Error())
	assert.True(t, errors.Is(err, syscall.EACCES))
	assert.Equal(t, "Check that ./build.sh is executable", err.Suggestion())
	assert.Equal(t, "launch", err.ErrorType())
	assert.True(t, err.IsRetryable())

	missing := &LaunchError{Command: []string{"gox"}, Errno: syscall.ENOENT}
	assert.Contains(t, missing.Suggestion(), "PATH")
}
