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
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternMatcher handles include and exclude glob pattern matching for file paths.
// It uses doublestar for extended glob pattern support including ** for recursive matching.
type PatternMatcher struct {
	root            string
	includePatterns []string
	excludePatterns []string
}

// NewPatternMatcher creates a new pattern matcher with the specified include and exclude patterns.
// Patterns support extended glob syntax via doublestar:
//   - * matches any sequence of non-path-separators
//   - ** matches any sequence of characters including path separators
//   - ? matches a single non-path-separator character
//   - [class] matches any single character in the class
//
// Patterns are tried against the absolute path, the path relative to root
// and the base name. If includePatterns is empty, all files are included.
// excludePatterns are applied after includePatterns.
func NewPatternMatcher(root string, includePatterns, excludePatterns []string) (*PatternMatcher, error) {
	for _, pattern := range includePatterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}
	for _, pattern := range excludePatterns {
		if !doublestar.ValidatePathPattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
	}

	return &PatternMatcher{
		root:            root,
		includePatterns: includePatterns,
		excludePatterns: excludePatterns,
	}, nil
}

// Match returns true if the path matches the include patterns and doesn't match any exclude patterns.
func (pm *PatternMatcher) Match(path string) bool {
	if path == "" {
		return false
	}

	included := len(pm.includePatterns) == 0
	for _, pattern := range pm.includePatterns {
		if pm.matchPattern(pattern, path) {
			included = true
			break
		}
	}
	if !included {
		return false
	}

	for _, pattern := range pm.excludePatterns {
		if pm.matchPattern(pattern, path) {
			return false
		}
	}

	return true
}

// matchPattern checks the pattern against the full path, the root-relative path and the base name.
func (pm *PatternMatcher) matchPattern(pattern, path string) bool {
	if matched, _ := doublestar.PathMatch(pattern, path); matched {
		return true
	}

	if pm.root != "" {
		if rel, err := filepath.Rel(pm.root, path); err == nil && !strings.HasPrefix(rel, "..") {
			if matched, _ := doublestar.PathMatch(pattern, rel); matched {
				return true
			}
		}
	}

	base := filepath.Base(path)
	if matched, _ := doublestar.Match(pattern, base); matched {
		return true
	}

	return false
}

// DefaultExcludePatterns returns common editor temporary files and system files
// whose churn should not restart the command.
func DefaultExcludePatterns() []string {
	return []string{
		// Vim
		"*.swp",
		"*.swo",
		"*.swn",
		".*.sw?",
		"4913",
		// Emacs
		"*~",
		"#*#",
		".#*",
		// JetBrains safe write
		"*___jb_tmp___",
		"*___jb_old___",
		// System files
		".DS_Store",
		"Thumbs.db",
		// IDE - use path patterns to match anywhere in tree
		"**/.idea/**",
		"**/.vscode/**",
		"*.tmp",
		"*.temp",
	}
}
