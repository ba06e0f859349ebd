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

// Package plugin loads addon code units from disk.
//
// A Loader turns a unit file into an *sdk.Unit holding the unit's router
// and dependency list. Two loaders ship with the host: declarative YAML
// units and native Go plugins built with -buildmode=plugin.
package plugin

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/tombee/addonhost/internal/expression"
	"github.com/tombee/addonhost/internal/jq"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

// Loader loads one code unit.
type Loader interface {
	// Load reads the unit at path. A nil Router or nil Dependencies in the
	// result means the unit does not export that symbol.
	Load(path string) (*sdk.Unit, error)

	// Extensions lists the file extensions this loader accepts.
	Extensions() []string
}

// Multi dispatches to a Loader by file extension.
type Multi struct {
	byExt map[string]Loader
	exts  []string
}

// NewMulti combines loaders. When two loaders claim an extension the first
// one wins.
func NewMulti(loaders ...Loader) *Multi {
	m := &Multi{byExt: make(map[string]Loader)}
	for _, l := range loaders {
		for _, ext := range l.Extensions() {
			ext = strings.ToLower(ext)
			if _, ok := m.byExt[ext]; ok {
				continue
			}
			m.byExt[ext] = l
			m.exts = append(m.exts, ext)
		}
	}
	return m
}

// Load implements Loader.
func (m *Multi) Load(path string) (*sdk.Unit, error) {
	l, ok := m.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, &hosterrors.LoadError{Path: path, Reason: "no loader for extension " + filepath.Ext(path)}
	}
	return l.Load(path)
}

// Extensions implements Loader.
func (m *Multi) Extensions() []string {
	return slices.Clone(m.exts)
}

// Safe wraps l so a panic inside Load is returned as a LoadError.
func Safe(l Loader) Loader {
	return safeLoader{inner: l}
}

type safeLoader struct {
	inner Loader
}

func (s safeLoader) Load(path string) (unit *sdk.Unit, err error) {
	defer func() {
		if r := recover(); r != nil {
			unit = nil
			err = &hosterrors.LoadError{
				Path:   path,
				Reason: "panic during load",
				Cause:  fmt.Errorf("%v", r),
			}
		}
	}()
	return s.inner.Load(path)
}

func (s safeLoader) Extensions() []string {
	return s.inner.Extensions()
}

// Func adapts a function to a Loader for the given extensions.
type Func struct {
	Exts []string
	Fn   func(path string) (*sdk.Unit, error)
}

// Load implements Loader.
func (f Func) Load(path string) (*sdk.Unit, error) { return f.Fn(path) }

// Extensions implements Loader.
func (f Func) Extensions() []string { return f.Exts }

// Default returns the host's panic-safe loader for declarative YAML units
// and native Go plugins.
func Default(eval *expression.Evaluator, jqExec *jq.Executor) Loader {
	return Safe(NewMulti(NewYAMLLoader(eval, jqExec), NewNativeLoader()))
}
