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

package manifest

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

func newTestLoader(t *testing.T) *Loader {
	t.Helper()
	l, err := NewLoader(slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return l
}

// writeModule creates root/name with a manifest and a routes/ subdirectory.
func writeModule(t *testing.T, root, name, manifest string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "routes"), 0o755))
	if manifest != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, FileNames[0]), []byte(manifest), 0o644))
	}
	return dir
}

func TestValidateVersion(t *testing.T) {
	valid := []string{"1.0", "1.2", "1.2.3", "10.20.30", "0.0"}
	invalid := []string{"", "1", "v1.0", "1.0.0.0", "1.a", "1.0-beta", " 1.0", "1.0\n"}

	for _, v := range valid {
		assert.NoError(t, ValidateVersion(v), v)
	}
	for _, v := range invalid {
		assert.Error(t, ValidateVersion(v), v)
	}
}

func TestFindRoot(t *testing.T) {
	base := t.TempDir()
	dir := writeModule(t, base, "billing", "version: \"1.0\"\n")
	nested := filepath.Join(dir, "routes", "v2")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	root, file := FindRoot(nested)
	assert.Equal(t, dir, root)
	assert.Equal(t, filepath.Join(dir, "__manifest__.yaml"), file)

	root, file = FindRoot(dir)
	assert.Equal(t, dir, root)
	assert.NotEmpty(t, file)

	other := filepath.Join(base, "orphan")
	require.NoError(t, os.MkdirAll(other, 0o755))
	root, file = FindRoot(other)
	assert.Empty(t, root)
	assert.Empty(t, file)
}

func TestFindFileAlternateExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "__manifest__.yml"), []byte("{}"), 0o644))
	assert.Equal(t, filepath.Join(dir, "__manifest__.yml"), FindFile(dir))
}

func TestLoadDefaults(t *testing.T) {
	base := t.TempDir()
	dir := writeModule(t, base, "billing", `
version: "1.2"
license: null
`)

	m, err := newTestLoader(t).Load("billing.routes.api", filepath.Join(dir, "routes"))
	require.NoError(t, err)

	assert.Equal(t, "billing", m.Name)
	assert.Equal(t, "1.2", m.Version)
	assert.Equal(t, DefaultLicense, m.License)
	assert.True(t, m.Installable)
	assert.Equal(t, []RouteDescriptor{}, m.Routes)
	assert.Equal(t, []sdk.Dependency{}, m.Dependencies)
	assert.Equal(t, base, m.AddonsPath)
	assert.Equal(t, dir, m.Root)
}

func TestLoadDescriptionFromReadme(t *testing.T) {
	base := t.TempDir()
	dir := writeModule(t, base, "sales", "version: \"1.0\"\ndescription: \"  \"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.rst"), []byte("Sales addon"), 0o644))

	m, err := newTestLoader(t).Load("sales", dir)
	require.NoError(t, err)
	assert.Equal(t, "Sales addon", m.Description)
}

func TestLoadReadmePrefersMarkdown(t *testing.T) {
	base := t.TempDir()
	dir := writeModule(t, base, "sales", "version: \"1.0\"\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("markdown"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.rst"), []byte("rst"), 0o644))

	m, err := newTestLoader(t).Load("sales", dir)
	require.NoError(t, err)
	assert.Equal(t, "markdown", m.Description)
}

func TestLoadVersionRules(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  bool
		version  string
	}{
		{name: "quoted x.y", manifest: "version: \"1.2\"", version: "1.2"},
		{name: "unquoted x.y keeps source text", manifest: "version: 1.10", version: "1.10"},
		{name: "x.y.z", manifest: "version: 2.0.1", version: "2.0.1"},
		{name: "missing on installable", manifest: "description: x", wantErr: true},
		{name: "bad on installable", manifest: "version: \"1\"", wantErr: true},
		{name: "not a scalar", manifest: "version: [1, 2]", wantErr: true},
		{name: "bad on non-installable ignored", manifest: "version: banana\ninstallable: false", version: "banana"},
		{name: "missing on non-installable ignored", manifest: "installable: false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeModule(t, t.TempDir(), "mod", tt.manifest+"\n")

			m, err := newTestLoader(t).Load("mod", dir)
			if tt.wantErr {
				var manifestErr *hosterrors.ManifestError
				require.True(t, errors.As(err, &manifestErr), "got %v", err)
				assert.Equal(t, "mod", manifestErr.Module)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.version, m.Version)
		})
	}
}

func TestLoadMissingManifestIsEmpty(t *testing.T) {
	dir := t.TempDir()

	m, err := newTestLoader(t).Load("loose", dir)
	require.NoError(t, err)
	assert.True(t, m.Installable)
	assert.Empty(t, m.Routes)
	assert.Empty(t, m.Root)
}

func TestLoadSyntaxErrorIsEmpty(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "broken", "version: [unclosed\n")

	m, err := newTestLoader(t).Load("broken", dir)
	require.NoError(t, err)
	assert.Equal(t, Empty(), m)
}

func TestLoadNeverEvaluates(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "mod", "version: \"1.0\"\ndescription: \"__import__('os').system('id')\"\n")

	m, err := newTestLoader(t).Load("mod", dir)
	require.NoError(t, err)
	assert.Equal(t, "__import__('os').system('id')", m.Description)
}

func TestLoadSchemaViolations(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{name: "top level list", manifest: "- a\n- b"},
		{name: "installable not bool", manifest: "version: \"1.0\"\ninstallable: \"yes\""},
		{name: "dependency without kind", manifest: "version: \"1.0\"\ndependencies:\n  - name: x"},
		{name: "route without path", manifest: "version: \"1.0\"\nroutes:\n  - name: x"},
		{name: "bad route method", manifest: "version: \"1.0\"\nroutes:\n  - path: /x\n    methods: [BREW]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeModule(t, t.TempDir(), "mod", tt.manifest+"\n")

			_, err := newTestLoader(t).Load("mod", dir)
			var manifestErr *hosterrors.ManifestError
			assert.True(t, errors.As(err, &manifestErr), "got %v", err)
		})
	}
}

func TestLoadDependenciesAndRoutes(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "billing", `
version: "1.0.0"
license: MIT
dependencies:
  - kind: api_key
    options:
      header: X-API-Key
routes:
  - path: /billing/legacy
    name: legacy
    methods: [post, get]
`)

	m, err := newTestLoader(t).Load("billing", dir)
	require.NoError(t, err)

	assert.Equal(t, "MIT", m.License)
	require.Len(t, m.Dependencies, 1)
	assert.Equal(t, "api_key", m.Dependencies[0].Kind)
	assert.Equal(t, "X-API-Key", m.Dependencies[0].Options["header"])
	require.Len(t, m.Routes, 1)
	assert.Equal(t, sdk.MethodSet{sdk.MethodGet, sdk.MethodPost}, m.Routes[0].Methods)
}

func TestValidateFileReportsSyntaxErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "__manifest__.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: [\n"), 0o644))

	_, err := newTestLoader(t).ValidateFile(path)
	var manifestErr *hosterrors.ManifestError
	require.True(t, errors.As(err, &manifestErr))
	assert.Equal(t, "invalid YAML", manifestErr.Reason)
}

func TestClone(t *testing.T) {
	m := Empty()
	m.AddRoute(RouteDescriptor{Path: "/a", Name: "a", Methods: sdk.MethodSet{sdk.MethodGet}})
	m.Dependencies = append(m.Dependencies, sdk.Dependency{Kind: "api_key", Options: map[string]any{"header": "X"}})

	c := m.Clone()
	c.Routes[0].Methods[0] = sdk.MethodPost
	c.Dependencies[0].Options["header"] = "Y"
	c.AddRoute(RouteDescriptor{Path: "/b"})

	assert.Equal(t, sdk.MethodGet, m.Routes[0].Methods[0])
	assert.Equal(t, "X", m.Dependencies[0].Options["header"])
	assert.Len(t, m.Routes, 1)
}

func TestAddRouteMergesDeclaredRoutes(t *testing.T) {
	dir := writeModule(t, t.TempDir(), "billing", `
version: "1.0.0"
routes:
  - path: /billing/legacy
    methods: [get]
`)
	m, err := newTestLoader(t).Load("billing", dir)
	require.NoError(t, err)

	m.AddRoute(RouteDescriptor{Path: "/billing/legacy", Name: "legacy", Methods: sdk.MethodSet{sdk.MethodGet}})
	m.AddRoute(RouteDescriptor{Path: "/billing/legacy", Name: "legacy_post", Methods: sdk.MethodSet{sdk.MethodPost}})
	m.AddRoute(RouteDescriptor{Path: "/billing/new", Name: "new", Methods: sdk.MethodSet{sdk.MethodGet}})
	m.AddRoute(RouteDescriptor{Path: "/billing/new", Name: "new", Methods: sdk.MethodSet{sdk.MethodGet}})

	require.Len(t, m.Routes, 4)
	assert.Equal(t, "legacy", m.Routes[0].Name)
	assert.Equal(t, "legacy_post", m.Routes[1].Name)
	assert.Equal(t, "/billing/new", m.Routes[2].Path)
	assert.Equal(t, "/billing/new", m.Routes[3].Path)
}
