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

package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/addonhost/internal/commands/shared"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "billing")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "__manifest__.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateValidManifest(t *testing.T) {
	path := writeManifest(t, "version: \"1.2.3\"\ndescription: Billing\n")

	var out bytes.Buffer
	require.NoError(t, runValidate(&out, path))
	assert.Contains(t, out.String(), "is valid")
	assert.Contains(t, out.String(), "module:       billing")
	assert.Contains(t, out.String(), "version:      1.2.3")
}

func TestValidateInvalidVersion(t *testing.T) {
	path := writeManifest(t, "version: \"one\"\n")

	var out bytes.Buffer
	err := runValidate(&out, path)
	require.Error(t, err)

	var exitErr *shared.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, shared.ExitInvalidManifest, exitErr.Code)
}

func TestValidateMissingFile(t *testing.T) {
	err := runValidate(&bytes.Buffer{}, filepath.Join(t.TempDir(), "__manifest__.yaml"))
	assert.Error(t, err)
}

func TestValidateJSON(t *testing.T) {
	shared.SetJSONForTest(true)
	defer shared.SetJSONForTest(false)

	path := writeManifest(t, "version: \"1.0\"\n")
	var out bytes.Buffer
	require.NoError(t, runValidate(&out, path))

	var res Result
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.True(t, res.Success)
	assert.Equal(t, "validate", res.Command)
	require.NotNil(t, res.Manifest)
	assert.Equal(t, "1.0", res.Manifest.Version)

	bad := writeManifest(t, "version: \"x\"\n")
	out.Reset()
	require.Error(t, runValidate(&out, bad))
	require.NoError(t, json.Unmarshal(out.Bytes(), &res))
	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, hosterrors.TypeManifest, res.Errors[0].Code)
}
