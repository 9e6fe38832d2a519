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
	"os"
	"testing"

	"github.com/tombee/rerun/internal/watcher"
)

// TestMain lets the test binary stand in for the rerun executable.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == watcher.Flag {
		os.Exit(watcher.Main(os.Args[2:]))
	}
	os.Exit(m.Run())
}
