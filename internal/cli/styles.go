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
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/tombee/rerun/internal/monitor"
)

// Symbols for status indicators
const (
	SymbolOK    = "✓"
	SymbolError = "✗"
	SymbolInfo  = "•"
)

// styles holds the status line styles bound to one output.
type styles struct {
	ok    lipgloss.Style
	err   lipgloss.Style
	info  lipgloss.Style
	muted lipgloss.Style
	bold  lipgloss.Style
}

// newStyles detects the color profile of w so piped output stays plain.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		ok:    r.NewStyle().Foreground(lipgloss.Color("42")),  // green
		err:   r.NewStyle().Foreground(lipgloss.Color("196")), // red
		info:  r.NewStyle().Foreground(lipgloss.Color("39")),  // blue
		muted: r.NewStyle().Foreground(lipgloss.Color("245")), // gray
		bold:  r.NewStyle().Bold(true),
	}
}

// statusReporter prints one styled line per loop event.
// It implements runloop.Reporter.
type statusReporter struct {
	mu     sync.Mutex
	w      io.Writer
	styles styles
}

func newStatusReporter(w io.Writer) *statusReporter {
	return &statusReporter{w: w, styles: newStyles(w)}
}

func (r *statusReporter) Started(generation int, command []string) {
	verb := "started"
	if generation > 1 {
		verb = "restarted"
	}
	r.line(r.styles.ok.Render(SymbolOK), generation, verb+" "+r.styles.bold.Render(strings.Join(command, " ")))
}

func (r *statusReporter) Changed(change monitor.Change) {
	path := change.Rel
	if path == "" {
		path = change.Path
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s %s\n",
		r.styles.info.Render(SymbolInfo), path, r.styles.muted.Render(string(change.Op)))
}

func (r *statusReporter) LaunchFailed(generation int, err error) {
	r.line(r.styles.err.Render(SymbolError), generation, err.Error()+r.styles.muted.Render(", waiting for changes"))
}

func (r *statusReporter) line(symbol string, generation int, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, "%s %s %s\n", symbol, r.styles.muted.Render(fmt.Sprintf("[%d]", generation)), msg)
}
