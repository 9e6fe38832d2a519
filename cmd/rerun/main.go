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

package main

import (
	"context"
	"os"

	"github.com/tombee/rerun/internal/cli"
	"github.com/tombee/rerun/internal/watcher"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// A supervisor re-executes this binary as the watcher of each generation.
	// The watcher must not go through cobra: its arguments belong to the target.
	if len(os.Args) > 1 && os.Args[1] == watcher.Flag {
		os.Exit(watcher.Main(os.Args[2:]))
	}

	cli.SetVersion(version, commit, buildDate)

	if err := cli.NewRootCommand().ExecuteContext(context.Background()); err != nil {
		cli.HandleExitError(err)
	}
}
