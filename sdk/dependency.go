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

package sdk

import "net/http"

// Dependency is a guard applied in front of every route of a unit.
//
// Declarative specs name a guard Kind known to the host (api_key, bearer_jwt,
// rate_limit, require_header, expr) with kind-specific Options. Native
// plugins may instead set Middleware, which takes precedence over Kind.
type Dependency struct {
	// Kind selects a host guard implementation.
	Kind string `yaml:"kind" json:"kind"`

	// Name optionally labels the guard in logs and the API schema.
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Options configures the guard.
	Options map[string]any `yaml:"options,omitempty" json:"options,omitempty"`

	// Middleware is a custom guard supplied by native plugins.
	Middleware func(http.Handler) http.Handler `yaml:"-" json:"-"`
}

// Label returns the name used for the guard in logs.
func (d Dependency) Label() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Kind != "":
		return d.Kind
	default:
		return "custom"
	}
}
