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

// Package monitor reports changes below a directory tree.
//
// It exposes the two blocking primitives the restart loop needs:
// WaitForChange and WaitQuiet. Events are filtered by include and exclude
// patterns; version control metadata directories are never watched.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tombee/rerun/internal/log"
)

// DefaultMaxDepth bounds how deep below the root directories are watched.
const DefaultMaxDepth = 16

// defaultQueueSize is the number of pending changes kept. Extra changes are dropped:
// a pending change already means the root changed.
const defaultQueueSize = 64

// ErrClosed is returned by waits on a closed Monitor.
var ErrClosed = errors.New("monitor closed")

// Options configures a Monitor.
type Options struct {
	// Root is the directory to watch recursively. Default: current directory.
	Root string

	// Include and Exclude are doublestar patterns. Empty Include matches everything.
	Include []string
	Exclude []string

	// MaxDepth limits recursion below Root. Default: DefaultMaxDepth.
	MaxDepth int

	// QueueSize is the number of pending changes kept.
	QueueSize int

	Logger *slog.Logger
}

// Monitor watches a directory tree with fsnotify.
type Monitor struct {
	root     string
	maxDepth int
	matcher  *PatternMatcher
	fsw      *fsnotify.Watcher
	changes  chan Change
	logger   *slog.Logger

	mu      sync.Mutex
	watched map[string]bool

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// New starts watching opts.Root.
func New(opts Options) (*Monitor, error) {
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Discard()
	}

	root, err := NormalizePath(opts.Root)
	if err != nil {
		return nil, err
	}

	matcher, err := NewPatternMatcher(root, opts.Include, opts.Exclude)
	if err != nil {
		return nil, err
	}

	dirs, err := WalkDirectory(root, opts.MaxDepth)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	m := &Monitor{
		root:     root,
		maxDepth: opts.MaxDepth,
		matcher:  matcher,
		fsw:      fsw,
		changes:  make(chan Change, opts.QueueSize),
		logger:   log.WithComponent(opts.Logger, "monitor").With(slog.String("root", root)),
		watched:  make(map[string]bool),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	for _, dir := range dirs {
		if err := m.add(dir); err != nil {
			if dir == root {
				fsw.Close()
				return nil, fmt.Errorf("failed to watch %s: %w", root, err)
			}
			m.logger.Warn("failed to watch directory", slog.String("path", dir), log.Error(err))
		}
	}

	go m.eventLoop()
	m.logger.Debug("change monitor started", log.Int("directories", len(dirs)))

	return m, nil
}

// Root returns the normalized watch root.
func (m *Monitor) Root() string {
	return m.root
}

// WatchedDirectories returns the number of directories currently watched.
func (m *Monitor) WatchedDirectories() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watched)
}

// WaitForChange blocks until one qualifying change is available and consumes it.
func (m *Monitor) WaitForChange(ctx context.Context) (Change, error) {
	select {
	case <-m.closed:
		return Change{}, ErrClosed
	default:
	}

	select {
	case c := <-m.changes:
		return c, nil
	case <-ctx.Done():
		return Change{}, ctx.Err()
	case <-m.closed:
		return Change{}, ErrClosed
	}
}

// WaitQuiet blocks for d unless a change arrives first, in which case the
// change is consumed and changed is true.
func (m *Monitor) WaitQuiet(ctx context.Context, d time.Duration) (changed bool, err error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-m.closed:
		return false, ErrClosed
	case <-m.changes:
		return true, nil
	case <-timer.C:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Close stops watching. Pending and future waits return ErrClosed.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.closed)
		err = m.fsw.Close()
		<-m.done

		m.mu.Lock()
		monitorWatchedDirs.Sub(float64(len(m.watched)))
		m.watched = map[string]bool{}
		m.mu.Unlock()
	})
	return err
}

func (m *Monitor) add(dir string) error {
	if err := m.fsw.Add(dir); err != nil {
		recordError("add")
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.watched[dir] {
		m.watched[dir] = true
		monitorWatchedDirs.Inc()
	}
	return nil
}

func (m *Monitor) forget(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watched[dir] {
		delete(m.watched, dir)
		monitorWatchedDirs.Dec()
	}
}

// eventLoop processes fsnotify events until the watcher is closed.
func (m *Monitor) eventLoop() {
	defer close(m.done)

	for {
		select {
		case event, ok := <-m.fsw.Events:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-m.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				// Lost events mean something changed.
				recordError("overflow")
				m.enqueue(newChange(m.root, m.root, OpModified, true))
				continue
			}
			recordError("watcher")
			m.logger.Error("change monitor error", log.Error(err))
		}
	}
}

// handleEvent filters a single fsnotify event and queues it as a change.
func (m *Monitor) handleEvent(event fsnotify.Event) {
	op, ok := classify(event.Op)
	if !ok {
		log.Trace(m.logger, "ignoring unmapped event", slog.String("op", event.Op.String()), slog.String("path", event.Name))
		return
	}

	rel, err := filepath.Rel(m.root, event.Name)
	if err != nil || inVCSDir(rel) {
		return
	}

	var isDir bool
	switch op {
	case OpCreated:
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			isDir = true
			m.watchTree(event.Name)
		}
	case OpDeleted, OpRenamed:
		// fsnotify drops the OS watch itself
		m.forget(event.Name)
	}

	if !isDir && !m.matcher.Match(event.Name) {
		monitorExcluded.Inc()
		log.Trace(m.logger, "event excluded by pattern", slog.String("path", event.Name))
		return
	}

	m.enqueue(newChange(m.root, event.Name, op, isDir))
}

// watchTree adds a new directory and its subdirectories within the depth limit.
func (m *Monitor) watchTree(dir string) {
	remaining := m.maxDepth - depth(m.root, dir)
	if remaining < 0 {
		return
	}

	dirs, err := WalkDirectory(dir, remaining)
	if err != nil {
		m.logger.Debug("failed to walk new directory", slog.String("path", dir), log.Error(err))
		return
	}
	for _, d := range dirs {
		if err := m.add(d); err != nil {
			m.logger.Debug("failed to watch new directory", slog.String("path", d), log.Error(err))
		}
	}
}

// enqueue queues a change without blocking.
func (m *Monitor) enqueue(c Change) {
	select {
	case m.changes <- c:
		recordEvent(c.Op)
		m.logger.Debug("change detected", log.EventKey, string(c.Op), slog.String("path", c.Rel))
	default:
		monitorDropped.Inc()
		log.Trace(m.logger, "change queue full, dropping event", slog.String("path", c.Rel))
	}
}
