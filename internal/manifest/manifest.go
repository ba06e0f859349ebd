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

// Package manifest locates, parses and validates addon module manifests.
//
// A module is a directory subtree rooted at a manifest file. Manifests are
// plain YAML data; they are never evaluated.
package manifest

import (
	"fmt"
	"maps"
	"regexp"
	"slices"

	"github.com/tombee/addonhost/sdk"
)

// File names recognised as a module manifest, in lookup order.
var FileNames = []string{"__manifest__.yaml", "__manifest__.yml"}

// README files used to back-fill a blank description, in lookup order.
var ReadmeNames = []string{"README.md", "README.rst"}

// DefaultLicense is applied when a manifest has no license.
const DefaultLicense = "LGPL-3"

var versionPattern = regexp.MustCompile(`^[0-9]+\.[0-9]+(?:\.[0-9]+)?$`)

// ValidateVersion checks v against the x.y or x.y.z format.
func ValidateVersion(v string) error {
	if !versionPattern.MatchString(v) {
		return fmt.Errorf("invalid version %q: modules should have a version in format x.y or x.y.z", v)
	}
	return nil
}

// RouteDescriptor records one route registered for a module.
type RouteDescriptor struct {
	Path    string        `json:"path" yaml:"path"`
	Name    string        `json:"name" yaml:"name"`
	Methods sdk.MethodSet `json:"methods" yaml:"methods"`
}

// Manifest is a module's validated metadata.
type Manifest struct {
	// Name is the module root's directory name.
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description"`
	License     string `json:"license"`
	Installable bool   `json:"installable"`

	// Dependencies are module-wide guards applied before each unit's own.
	Dependencies []sdk.Dependency `json:"dependencies"`

	// Routes lists descriptors declared in the file followed by those
	// recorded during registration.
	Routes []RouteDescriptor `json:"routes"`

	// AddonsPath is the parent directory of the module root.
	AddonsPath string `json:"addons_path"`

	// Root is the module root directory. Empty when no manifest was found.
	Root string `json:"root,omitempty"`

	// File is the manifest file path. Empty when no manifest was found.
	File string `json:"-"`

	// declared counts the leading Routes that came from the file.
	declared int
}

// Empty returns the manifest used when a module has none or it cannot be
// parsed: installable, with no routes or dependencies.
func Empty() *Manifest {
	return &Manifest{
		Installable:  true,
		Dependencies: []sdk.Dependency{},
		Routes:       []RouteDescriptor{},
	}
}

// AddRoute records a registered route. A route already declared in the
// file with the same path and method set is not recorded twice; it only
// takes the route's name when the declaration has none.
func (m *Manifest) AddRoute(d RouteDescriptor) {
	for i := range m.Routes[:min(m.declared, len(m.Routes))] {
		r := &m.Routes[i]
		if r.Path == d.Path && r.Methods.Equal(d.Methods) {
			if r.Name == "" {
				r.Name = d.Name
			}
			return
		}
	}
	m.Routes = append(m.Routes, d)
}

// Clone returns a deep copy of m.
func (m *Manifest) Clone() *Manifest {
	if m == nil {
		return nil
	}
	c := *m
	c.Routes = make([]RouteDescriptor, len(m.Routes))
	for i, r := range m.Routes {
		r.Methods = slices.Clone(r.Methods)
		c.Routes[i] = r
	}
	c.Dependencies = make([]sdk.Dependency, len(m.Dependencies))
	for i, d := range m.Dependencies {
		d.Options = maps.Clone(d.Options)
		c.Dependencies[i] = d
	}
	return &c
}
