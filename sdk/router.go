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
	"net/http"
	"strings"
)

// Route is one handler exposed by an addon unit.
type Route struct {
	// Name is the handler's declared name. It becomes the route's operation
	// id and must be unique across the whole serving surface.
	Name string

	// Path is a net/http ServeMux path pattern, relative to the router prefix.
	Path string

	// Methods lists the accepted HTTP methods. Empty means GET.
	Methods []string

	// Summary is a one-line description published in the API schema.
	Summary string

	// Tags group the route in the API schema, in addition to the router tags.
	Tags []string

	// Handler serves the route.
	Handler http.Handler
}

// Router is an ordered collection of routes sharing a path prefix.
type Router struct {
	Prefix string
	Tags   []string
	Routes []Route
}

// NewRouter creates an empty router mounted at prefix.
func NewRouter(prefix string, tags ...string) *Router {
	return &Router{Prefix: prefix, Tags: tags}
}

// Handle appends a route.
func (r *Router) Handle(name, path string, h http.Handler, methods ...string) {
	r.Routes = append(r.Routes, Route{
		Name:    name,
		Path:    path,
		Methods: methods,
		Handler: h,
	})
}

// Get appends a GET route.
func (r *Router) Get(name, path string, h http.HandlerFunc) {
	r.Handle(name, path, h, http.MethodGet)
}

// Post appends a POST route.
func (r *Router) Post(name, path string, h http.HandlerFunc) {
	r.Handle(name, path, h, http.MethodPost)
}

// Put appends a PUT route.
func (r *Router) Put(name, path string, h http.HandlerFunc) {
	r.Handle(name, path, h, http.MethodPut)
}

// Delete appends a DELETE route.
func (r *Router) Delete(name, path string, h http.HandlerFunc) {
	r.Handle(name, path, h, http.MethodDelete)
}

// JoinPath joins a router prefix and a route path into one absolute path.
func JoinPath(prefix, path string) string {
	prefix = strings.TrimRight(prefix, "/")
	if path == "" || path == "/" {
		if prefix == "" {
			return "/"
		}
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}

// Unit is what a loader extracts from one code unit. A nil Router or a nil
// Dependencies slice means the unit does not export that symbol. An empty,
// non-nil Dependencies slice is an exported empty list.
type Unit struct {
	Router       *Router
	Dependencies []Dependency
}
