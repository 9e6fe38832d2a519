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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// pseudoFilesystems never report changes through inotify or kqueue.
var pseudoFilesystems = []string{
	"/proc",
	"/sys",
	"/dev",
}

// vcsDirs are repository metadata directories, never watched.
var vcsDirs = []string{".git", ".hg", ".svn"}

// NormalizePath normalizes a watch root by:
// - Expanding tilde (~) to home directory
// - Expanding environment variables
// - Converting to absolute path
// - Resolving symlinks
// - Rejecting pseudo filesystems
func NormalizePath(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}

	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}

	path = os.ExpandEnv(path)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", absPath, err)
	}

	if err := validateWatchable(resolvedPath); err != nil {
		return "", err
	}

	return resolvedPath, nil
}

// validateWatchable rejects roots on pseudo filesystems.
func validateWatchable(path string) error {
	for _, pseudo := range pseudoFilesystems {
		if path == pseudo || strings.HasPrefix(path, pseudo+string(filepath.Separator)) {
			return fmt.Errorf("path %s cannot be watched (pseudo filesystem %s)", path, pseudo)
		}
	}
	return nil
}

// isVCSDir reports whether name is a version control metadata directory.
func isVCSDir(name string) bool {
	return slices.Contains(vcsDirs, name)
}

// inVCSDir reports whether any component of rel is a version control directory.
func inVCSDir(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if isVCSDir(part) {
			return true
		}
	}
	return false
}

// depth returns the number of path components of dir below root.
func depth(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// WalkDirectory recursively walks a directory up to maxDepth levels below root.
// Returns the directories to watch, root first. Version control directories
// and unreadable directories are skipped.
func WalkDirectory(root string, maxDepth int) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	paths := []string{root}
	if maxDepth <= 0 {
		return paths, nil
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() || path == root {
			return nil
		}
		if isVCSDir(d.Name()) {
			return filepath.SkipDir
		}
		if depth(root, path) > maxDepth {
			return filepath.SkipDir
		}

		paths = append(paths, path)
		return nil
	})

	return paths, err
}
