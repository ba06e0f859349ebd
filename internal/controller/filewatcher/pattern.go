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

package filewatcher

import (
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// PatternMatcher decides which paths the watcher ignores. Patterns use
// doublestar syntax and are tried against the path relative to the root
// and against the base name.
type PatternMatcher struct {
	root     string
	patterns []string
}

// NewPatternMatcher validates patterns and returns a matcher for paths
// under root.
func NewPatternMatcher(root string, patterns []string) (*PatternMatcher, error) {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid exclude pattern %q", pattern)
		}
	}
	return &PatternMatcher{root: root, patterns: patterns}, nil
}

// Ignored reports whether path matches any pattern.
func (pm *PatternMatcher) Ignored(path string) bool {
	base := filepath.Base(path)
	rel := base
	if r, err := filepath.Rel(pm.root, path); err == nil {
		rel = filepath.ToSlash(r)
	}
	for _, pattern := range pm.patterns {
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, base); matched {
			return true
		}
	}
	return false
}

// DefaultExcludePatterns returns common editor temporary files and system files
// that should typically be excluded from file watching.
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
		// System files
		".DS_Store",
		"Thumbs.db",
		"**/.idea/**",
		"**/.vscode/**",
		"*.tmp",
		"*.temp",
		// Python bytecode next to addon sources
		"**/__pycache__/**",
	}
}
