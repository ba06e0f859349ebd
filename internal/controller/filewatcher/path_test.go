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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePath(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	t.Setenv("ADDONS_TEST_DIR", dir)

	got, err := NormalizePath("$ADDONS_TEST_DIR")
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(dir, link))
	got, err = NormalizePath(link)
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	_, err = NormalizePath("")
	assert.Error(t, err)

	_, err = NormalizePath(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestNormalizePathBlocked(t *testing.T) {
	if _, err := os.Stat("/proc/self"); err != nil {
		t.Skip("no /proc on this platform")
	}
	_, err := NormalizePath("/proc/self/..")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "cannot be watched"))
}

func TestWalkDirectory(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"billing/routes", "billing/tests/deep", "sales"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(dir)), 0o755))
	}

	dirs, err := WalkDirectory(root, func(path string) bool {
		return filepath.Base(path) == "tests"
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "billing"),
		filepath.Join(root, "billing", "routes"),
		filepath.Join(root, "sales"),
	}, dirs)

	_, err = WalkDirectory(filepath.Join(root, "missing"), nil)
	assert.Error(t, err)
}
