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

package completion

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/addonhost/internal/manifest"
)

const (
	maxManifestFiles = 100
	maxSearchDepth   = 4
)

// SafeCompletionWrapper runs fn and turns a panic or nil result into an
// empty completion.
func SafeCompletionWrapper(fn func() ([]string, cobra.ShellCompDirective)) (results []string, directive cobra.ShellCompDirective) {
	results = []string{}
	directive = cobra.ShellCompDirectiveNoFileComp

	defer func() {
		if r := recover(); r != nil {
			results = []string{}
			directive = cobra.ShellCompDirectiveNoFileComp
		}
	}()

	results, directive = fn()
	if results == nil {
		return []string{}, cobra.ShellCompDirectiveNoFileComp
	}
	return results, directive
}

// CompleteLogLevels provides completion for --log-level flag values.
func CompleteLogLevels(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		return []string{
			"trace\tPer-file scan decisions",
			"debug\tDebug output",
			"info\tDefault",
			"warn\tWarnings only",
			"error\tErrors only",
		}, cobra.ShellCompDirectiveNoFileComp
	})
}

// CompleteManifestFiles completes manifest paths found under the current
// directory, at most maxSearchDepth levels deep.
func CompleteManifestFiles(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return SafeCompletionWrapper(func() ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		paths := discoverManifests(".", maxSearchDepth)
		if len(paths) == 0 {
			// fall back to plain file completion
			return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
		}
		return paths, cobra.ShellCompDirectiveDefault
	})
}

func discoverManifests(root string, maxDepth int) []string {
	var paths []string
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator))
		if d.IsDir() {
			if path != root && (depth >= maxDepth || strings.HasPrefix(d.Name(), ".")) {
				return fs.SkipDir
			}
			return nil
		}
		if slices.Contains(manifest.FileNames, d.Name()) && d.Type().IsRegular() {
			paths = append(paths, path)
			if len(paths) >= maxManifestFiles {
				return fs.SkipAll
			}
		}
		return nil
	})
	return paths
}
