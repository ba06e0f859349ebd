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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternMatcher_Ignored(t *testing.T) {
	pm, err := NewPatternMatcher("/addons", append(DefaultExcludePatterns(), "billing/drafts/**"))
	require.NoError(t, err)

	tests := []struct {
		path    string
		ignored bool
	}{
		{"/addons/billing/routes/api.yaml", false},
		{"/addons/billing/__manifest__.yaml", false},
		{"/addons/billing/routes/.api.yaml.swp", true},
		{"/addons/billing/routes/api.yaml~", true},
		{"/addons/billing/routes/4913", true},
		{"/addons/billing/.#api.yaml", true},
		{"/addons/billing/.idea/workspace.xml", true},
		{"/addons/billing/routes/__pycache__/x.pyc", true},
		{"/addons/billing/drafts/new.yaml", true},
		{"/addons/sales/drafts/new.yaml", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.ignored, pm.Ignored(tt.path), tt.path)
	}
}

func TestPatternMatcher_InvalidPattern(t *testing.T) {
	_, err := NewPatternMatcher("/addons", []string{"[unclosed"})
	assert.Error(t, err)
}
