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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ADDONHOST_ADDR", "ADDONHOST_SHUTDOWN_TIMEOUT", "ADDONHOST_ADDONS_DIR", "ADDONHOST_WATCH",
		"ADDONHOST_JWT_SECRET", "ADDONHOST_TRACING_ENABLED", "LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "addonhost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.Addr)
	assert.Equal(t, []string{"tests", "config"}, cfg.Addons.ExcludeDirs)
	assert.Equal(t, 500*time.Millisecond, cfg.Addons.Watch.Debounce)
	assert.Contains(t, cfg.CORS.AllowedOrigins, "http://localhost:8080")
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Tracing.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./addons", cfg.Addons.Dir)
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
server:
  addr: ":9000"
addons:
  dir: /srv/addons
  exclude_patterns: ["**/fixtures/**"]
  watch:
    enabled: true
log:
  level: debug
tracing:
  enabled: true
  exporters:
    - type: otlp_http
      endpoint: localhost:4318
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "/srv/addons", cfg.Addons.Dir)
	assert.True(t, cfg.Addons.Watch.Enabled)
	// unset fields fall back to defaults
	assert.Equal(t, 500*time.Millisecond, cfg.Addons.Watch.Debounce)
	assert.Equal(t, []string{"tests", "config"}, cfg.Addons.ExcludeDirs)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	require.Len(t, cfg.Tracing.Exporters, 1)
	assert.Equal(t, "otlp_http", cfg.Tracing.Exporters[0].Type)
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ADDONHOST_ADDR", "0.0.0.0:8100")
	t.Setenv("ADDONHOST_ADDONS_DIR", "/opt/addons")
	t.Setenv("ADDONHOST_WATCH", "true")
	t.Setenv("ADDONHOST_JWT_SECRET", "s3cret")
	t.Setenv("ADDONHOST_TRACING_ENABLED", "1")

	path := writeConfig(t, "server:\n  addr: \":9000\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8100", cfg.Server.Addr)
	assert.Equal(t, "/opt/addons", cfg.Addons.Dir)
	assert.True(t, cfg.Addons.Watch.Enabled)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Tracing.Enabled)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		missing bool
	}{
		{name: "missing file", missing: true},
		{name: "bad yaml", content: "server: [unclosed"},
		{name: "bad log level", content: "log:\n  level: loud\n"},
		{name: "bad exclude dir", content: "addons:\n  exclude_dirs: [\"a/b\"]\n"},
		{name: "bad exclude pattern", content: "addons:\n  exclude_patterns: [\"[\"]\n"},
		{name: "bad exporter", content: "tracing:\n  exporters:\n    - type: zipkin\n"},
		{name: "otlp without endpoint", content: "tracing:\n  exporters:\n    - type: otlp\n"},
		{name: "sample ratio out of range", content: "tracing:\n  sample_ratio: 2\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)

			path := filepath.Join(t.TempDir(), "missing.yaml")
			if !tt.missing {
				path = writeConfig(t, tt.content)
			}

			_, err := Load(path)
			require.Error(t, err)

			var cfgErr *hosterrors.ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestValidationErrorWrapsSentinel(t *testing.T) {
	cfg := Default()
	cfg.Server.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
	assert.Contains(t, err.Error(), "server.addr")
}

func TestExplicitEmptyExcludeDirs(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(writeConfig(t, "addons:\n  exclude_dirs: []\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Addons.ExcludeDirs)
}

func TestDiscover(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.Equal(t, "explicit.yaml", Discover("explicit.yaml"))

	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	assert.Equal(t, "", Discover(""))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "addonhost.yaml"), []byte("{}"), 0o600))
	assert.Equal(t, "addonhost.yaml", Discover(""))
}
