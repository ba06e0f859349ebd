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

package listener

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/addonhost/internal/config"
)

func TestNewTCP(t *testing.T) {
	ln, err := New(config.ServerConfig{Addr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, "tcp", ln.Addr().Network())
}

func TestNewUnix(t *testing.T) {
	// keep the path short; sun_path is limited
	dir, err := os.MkdirTemp("", "ah")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "run", "host.sock")

	// a stale socket file is replaced
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o700))
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	ln, err := New(config.ServerConfig{Addr: "unix://" + path})
	require.NoError(t, err)
	defer ln.Close()

	assert.Equal(t, "unix", ln.Addr().Network())
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestNewTLSMissingCert(t *testing.T) {
	_, err := New(config.ServerConfig{
		Addr:    "127.0.0.1:0",
		TLSCert: filepath.Join(t.TempDir(), "cert.pem"),
		TLSKey:  filepath.Join(t.TempDir(), "key.pem"),
	})
	assert.Error(t, err)
}

func TestIsRemote(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1:8000", false},
		{"localhost:8000", false},
		{"[::1]:8000", false},
		{"unix:///tmp/host.sock", false},
		{":8000", true},
		{"0.0.0.0:8000", true},
		{"10.0.0.5:8000", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRemote(tt.addr), tt.addr)
	}
}
