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
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvocation_RoundTrip(t *testing.T) {
	inv := Invocation{
		Grace:       1500 * time.Millisecond,
		AbortSignal: syscall.SIGUSR1,
		LogLevel:    "debug",
		LogFormat:   "json",
		Command:     []string{"go", "test", "--run", "TestX", "--", "-v"},
	}

	args := inv.Args()
	require.Equal(t, Flag, args[0])

	parsed, err := ParseInvocation(args[1:])
	require.NoError(t, err)
	assert.Equal(t, inv, parsed)
}

func TestParseInvocation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    Invocation
		wantErr bool
	}{
		{
			name: "defaults",
			args: []string{"--", "cat"},
			want: Invocation{Grace: DefaultGrace, AbortSignal: syscall.SIGTERM, Command: []string{"cat"}},
		},
		{
			name: "command flags are not parsed",
			args: []string{"--grace", "1s", "ls", "--grace", "x"},
			want: Invocation{Grace: time.Second, AbortSignal: syscall.SIGTERM, Command: []string{"ls", "--grace", "x"}},
		},
		{name: "no command", args: []string{"--grace", "1s"}, wantErr: true},
		{name: "bad duration", args: []string{"--grace", "soon", "--", "cat"}, wantErr: true},
		{name: "zero grace", args: []string{"--grace", "0s", "--", "cat"}, wantErr: true},
		{name: "bad signal", args: []string{"--abort-signal", "0", "--", "cat"}, wantErr: true},
		{name: "unknown flag", args: []string{"--bogus", "--", "cat"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseInvocation(tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidInvocation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
