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

// Package api serves the host's own routes: the landing and docs pages,
// login, health, version, the API schema, metrics and the runtime
// lifecycle endpoints. They are bound into the route table like addon
// routes, owned by Owner.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tombee/addonhost/internal/controller/auth"
	"github.com/tombee/addonhost/internal/engine"
	"github.com/tombee/addonhost/internal/guard"
	"github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/registry"
	"github.com/tombee/addonhost/internal/routetable"
	"github.com/tombee/addonhost/sdk"
)

// Owner is recorded on base route bindings.
const Owner = routetable.HostOwner

// baseTag groups the base routes in the API schema.
const baseTag = "base"

// Lifecycle is the engine surface behind the runtime endpoints.
type Lifecycle interface {
	RemoveModule(ctx context.Context, name string) (*engine.RemoveResult, error)
	EnableModule(ctx context.Context, name string) (*engine.EnableResult, error)
	RemoveRoute(ctx context.Context, path string) error
	ReloadDocs()
	Modules() []*registry.Record
	Module(name string) (*registry.Record, error)
	Routes() []string
}

// SchemaSource produces the cached API schema.
type SchemaSource interface {
	Schema() ([]byte, error)
}

// Config wires the Router.
type Config struct {
	Lifecycle Lifecycle
	Schema    SchemaSource

	// Title heads the landing and docs pages.
	Title string

	// JWT signs tokens issued by POST /auth/login. An empty secret makes
	// login answer 503.
	JWT auth.JWTConfig

	// Users maps login names to passwords.
	Users map[string]string

	Version   string
	Commit    string
	BuildDate string

	// Metrics exposes GET /metrics.
	Metrics bool

	// Observer is optional; when set it wraps every base route.
	Observer *guard.Observer

	Logger *slog.Logger
}

// Router builds the base route bindings.
type Router struct {
	config  Config
	started time.Time
	logger  *slog.Logger
}

// New creates a Router.
func New(cfg Config) *Router {
	if cfg.Title == "" {
		cfg.Title = "addonhost"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Router{
		config:  cfg,
		started: time.Now(),
		logger:  log.WithComponent(cfg.Logger, "api"),
	}
}

type route struct {
	name    string
	method  sdk.Method
	path    string
	summary string
	handler http.HandlerFunc
}

func (r *Router) routes() []route {
	routes := []route{
		{"root", sdk.MethodGet, "/{$}", "Landing page", r.handleRoot},
		{"docs", sdk.MethodGet, "/docs", "Interactive API documentation", r.handleDocs},
		{"login", sdk.MethodPost, "/auth/login", "Issue an access token", r.handleLogin},
		{"health", sdk.MethodGet, "/health", "Liveness and registry summary", r.handleHealth},
		{"version", sdk.MethodGet, "/version", "Build information", r.handleVersion},
		{"openapi", sdk.MethodGet, "/openapi.json", "API schema of the live routes", r.handleOpenAPI},
		{"remove_route", sdk.MethodDelete, "/remove-route", "Unbind one route by path", r.handleRemoveRoute},
		{"remove_module", sdk.MethodDelete, "/remove-module", "Unbind the routes recorded for a module", r.handleRemoveModule},
		{"enable_module", sdk.MethodPost, "/enable-module", "Load and bind a module", r.handleEnableModule},
		{"get_loaded_modules", sdk.MethodGet, "/module/get_loaded_modules", "Registry snapshot", r.handleLoadedModules},
		{"get_module", sdk.MethodGet, "/module/get_module", "One module's manifest and recorded routes", r.handleGetModule},
		{"get_active_routes", sdk.MethodGet, "/routes", "Paths of the live routes", r.handleRoutes},
		{"reload_docs", sdk.MethodGet, "/routes/reload-docs", "Drop the cached API schema", r.handleReloadDocs},
	}
	if r.config.Metrics {
		routes = append(routes, route{"metrics", sdk.MethodGet, "/metrics", "Prometheus metrics", promhttp.Handler().ServeHTTP})
	}
	return routes
}

// Bindings returns the base routes ready for the route table.
func (r *Router) Bindings() []routetable.Binding {
	routes := r.routes()
	out := make([]routetable.Binding, 0, len(routes))
	for _, rt := range routes {
		var h http.Handler = rt.handler
		var guards []string
		if r.config.Observer != nil {
			h = r.config.Observer.For(rt.name)(h)
			guards = []string{engine.ObserverGuard}
		}
		out = append(out, routetable.Binding{
			Owner:   Owner,
			Path:    rt.path,
			Methods: sdk.MethodSet{rt.method},
			Name:    rt.name,
			Summary: rt.summary,
			Tags:    []string{baseTag},
			Guards:  guards,
			Handler: h,
		})
	}
	return out
}
