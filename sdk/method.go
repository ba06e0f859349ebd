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

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
)

// Method is an HTTP method accepted by the route table.
type Method string

// Supported methods.
const (
	MethodGet     Method = http.MethodGet
	MethodHead    Method = http.MethodHead
	MethodPost    Method = http.MethodPost
	MethodPut     Method = http.MethodPut
	MethodPatch   Method = http.MethodPatch
	MethodDelete  Method = http.MethodDelete
	MethodOptions Method = http.MethodOptions
)

var knownMethods = []Method{
	MethodGet, MethodHead, MethodPost, MethodPut, MethodPatch, MethodDelete, MethodOptions,
}

// ParseMethod normalizes s and checks it against the supported methods.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(knownMethods, m) {
		return "", fmt.Errorf("unsupported HTTP method %q", s)
	}
	return m, nil
}

// MethodSet is a sorted, duplicate-free list of methods.
//
// It is encoded as a plain JSON/YAML list of method names so recorded route
// descriptors never need a general-purpose evaluator to read back.
type MethodSet []Method

// NewMethodSet parses methods into a set. An empty input yields {GET}.
func NewMethodSet(methods ...string) (MethodSet, error) {
	if len(methods) == 0 {
		return MethodSet{MethodGet}, nil
	}
	set := make(MethodSet, 0, len(methods))
	for _, raw := range methods {
		m, err := ParseMethod(raw)
		if err != nil {
			return nil, err
		}
		set = append(set, m)
	}
	slices.Sort(set)
	return slices.Compact(set), nil
}

// Contains reports whether m is in the set.
func (s MethodSet) Contains(m Method) bool {
	_, found := slices.BinarySearch(s, m)
	return found
}

// SupersetOf reports whether every method of other is also in s.
func (s MethodSet) SupersetOf(other MethodSet) bool {
	for _, m := range other {
		if !s.Contains(m) {
			return false
		}
	}
	return true
}

// Equal reports whether both sets hold the same methods.
func (s MethodSet) Equal(other MethodSet) bool {
	return slices.Equal(s, other)
}

// Strings returns the method names in order.
func (s MethodSet) Strings() []string {
	out := make([]string, len(s))
	for i, m := range s {
		out[i] = string(m)
	}
	return out
}

func (s MethodSet) String() string {
	return "{" + strings.Join(s.Strings(), ", ") + "}"
}
