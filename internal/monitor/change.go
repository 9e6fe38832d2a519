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

package monitor

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Op is the kind of filesystem change.
type Op string

const (
	OpCreated  Op = "created"
	OpModified Op = "modified"
	OpDeleted  Op = "deleted"
	OpRenamed  Op = "renamed"
)

// Change describes one qualifying filesystem event below the watched root.
type Change struct {
	// Path is the absolute path of the changed entry
	Path string

	// Rel is Path relative to the watched root
	Rel string

	// Op is the type of change
	Op Op

	// IsDir is true when the entry is a directory that still exists
	IsDir bool

	// Time is when the event was received
	Time time.Time
}

// classify maps an fsnotify operation to a change type.
// Chmod-only events are not changes.
func classify(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreated, true
	case op.Has(fsnotify.Remove):
		return OpDeleted, true
	case op.Has(fsnotify.Rename):
		return OpRenamed, true
	case op.Has(fsnotify.Write):
		return OpModified, true
	default:
		return "", false
	}
}

func newChange(root, path string, op Op, isDir bool) Change {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = path
	}
	return Change{Path: path, Rel: rel, Op: op, IsDir: isDir, Time: time.Now()}
}
