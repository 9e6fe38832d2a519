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
Package cli provides the rerun root command.

rerun takes no subcommands. Flags are parsed up to the first positional
argument; everything from there on is the command to run:

	rerun [flags] [--] command [args...]

# Settings

Settings come from, in increasing precedence: built-in defaults, the
configuration file (see package config), RERUN_* environment variables and
command-line flags that were set explicitly.

# Signals

SIGQUIT and SIGTERM end the run: the live generation is torn down and rerun
exits 0. SIGINT is caught and ignored so that Ctrl-C reaches the target
without stopping rerun.

# Exit Codes

	0  quit signal received
	1  first launch failed, or a runtime failure
	2  usage error
	3  configuration error
*/
package cli
