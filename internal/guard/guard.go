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

// Package guard turns dependency specs into HTTP middleware.
//
// Each sdk.Dependency names a kind (api_key, bearer_jwt, rate_limit,
// require_header, expr) and its options. A Registry maps kinds to
// factories; Chain builds the ordered middleware for a route, with the
// first dependency outermost.
package guard

import (
	"fmt"
	"net/http"
	"slices"
	"sort"
	"sync"

	"github.com/tombee/addonhost/sdk"
)

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Factory builds a Middleware from a dependency spec.
type Factory func(dep sdk.Dependency) (Middleware, error)

// Registry maps dependency kinds to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = f
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build returns the middleware for dep. A dependency carrying its own
// Middleware is used as is.
func (r *Registry) Build(dep sdk.Dependency) (Middleware, error) {
	if dep.Middleware != nil {
		return dep.Middleware, nil
	}

	r.mu.RLock()
	f, ok := r.factories[dep.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown dependency kind %q (known: %v)", dep.Kind, r.Kinds())
	}

	mw, err := f(dep)
	if err != nil {
		return nil, fmt.Errorf("dependency %s: %w", dep.Label(), err)
	}
	return mw, nil
}

// Chain builds every dependency in order and appends tail.
func (r *Registry) Chain(deps []sdk.Dependency, tail ...Middleware) ([]Middleware, error) {
	chain := make([]Middleware, 0, len(deps)+len(tail))
	for _, dep := range deps {
		mw, err := r.Build(dep)
		if err != nil {
			return nil, err
		}
		chain = append(chain, mw)
	}
	return append(chain, tail...), nil
}

// Apply wraps h so chain[0] runs first.
func Apply(h http.Handler, chain []Middleware) http.Handler {
	for _, mw := range slices.Backward(chain) {
		h = mw(h)
	}
	return h
}
