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

//go:build (linux || darwin || freebsd) && cgo

package plugin

import (
	"fmt"
	goplugin "plugin"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

// NativeLoader opens Go plugins built with -buildmode=plugin against the
// same sdk version as the host. It reads the exported Router and
// Dependencies variables.
type NativeLoader struct{}

// NewNativeLoader creates a native plugin loader.
func NewNativeLoader() *NativeLoader { return &NativeLoader{} }

// Extensions implements Loader.
func (*NativeLoader) Extensions() []string { return []string{".so"} }

// Load implements Loader.
func (*NativeLoader) Load(path string) (*sdk.Unit, error) {
	p, err := goplugin.Open(path)
	if err != nil {
		return nil, &hosterrors.LoadError{Path: path, Reason: "cannot open plugin", Cause: err}
	}

	unit := &sdk.Unit{}

	if sym, err := p.Lookup("Router"); err == nil {
		switch v := sym.(type) {
		case *sdk.Router:
			unit.Router = v
		case **sdk.Router:
			unit.Router = *v
		default:
			return nil, &hosterrors.LoadError{
				Path:   path,
				Reason: fmt.Sprintf("symbol Router has type %T, want *sdk.Router", sym),
			}
		}
	}

	if sym, err := p.Lookup("Dependencies"); err == nil {
		v, ok := sym.(*[]sdk.Dependency)
		if !ok {
			return nil, &hosterrors.LoadError{
				Path:   path,
				Reason: fmt.Sprintf("symbol Dependencies has type %T, want []sdk.Dependency", sym),
			}
		}
		// an exported nil slice is still an exported list
		unit.Dependencies = append([]sdk.Dependency{}, (*v)...)
	}

	return unit, nil
}
