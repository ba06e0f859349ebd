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

package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tombee/addonhost/internal/controller/httputil"
	"github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/registry"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// MessageResponse is the payload of endpoints that only report success.
type MessageResponse struct {
	Message string `json:"message"`
}

// requiredQuery returns the named query parameter or writes a 400.
func requiredQuery(w http.ResponseWriter, req *http.Request, name string) (string, bool) {
	v := req.URL.Query().Get(name)
	if v == "" {
		httputil.WriteErr(w, &hosterrors.ValidationError{
			Field:   name,
			Message: "query parameter is required",
		})
		return "", false
	}
	return v, true
}

// handleRemoveRoute handles DELETE /remove-route?path=X.
func (r *Router) handleRemoveRoute(w http.ResponseWriter, req *http.Request) {
	path, ok := requiredQuery(w, req, "path")
	if !ok {
		return
	}
	if err := r.config.Lifecycle.RemoveRoute(req.Context(), path); err != nil {
		r.fail(w, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("Route '%s' has been removed", path),
	})
}

// handleRemoveModule handles DELETE /remove-module?technical_name=X.
func (r *Router) handleRemoveModule(w http.ResponseWriter, req *http.Request) {
	name, ok := requiredQuery(w, req, "technical_name")
	if !ok {
		return
	}
	res, err := r.config.Lifecycle.RemoveModule(req.Context(), name)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleEnableModule handles POST /enable-module?technical_name=X.
func (r *Router) handleEnableModule(w http.ResponseWriter, req *http.Request) {
	name, ok := requiredQuery(w, req, "technical_name")
	if !ok {
		return
	}
	res, err := r.config.Lifecycle.EnableModule(req.Context(), name)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// handleLoadedModules handles GET /module/get_loaded_modules.
func (r *Router) handleLoadedModules(w http.ResponseWriter, req *http.Request) {
	modules := r.config.Lifecycle.Modules()
	if modules == nil {
		modules = []*registry.Record{}
	}
	httputil.WriteJSON(w, http.StatusOK, modules)
}

// handleGetModule handles GET /module/get_module?name=X.
func (r *Router) handleGetModule(w http.ResponseWriter, req *http.Request) {
	name, ok := requiredQuery(w, req, "name")
	if !ok {
		return
	}
	rec, err := r.config.Lifecycle.Module(name)
	if err != nil {
		r.fail(w, req, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rec)
}

// handleRoutes handles GET /routes.
func (r *Router) handleRoutes(w http.ResponseWriter, req *http.Request) {
	routes := r.config.Lifecycle.Routes()
	if routes == nil {
		routes = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, routes)
}

// handleReloadDocs handles GET /routes/reload-docs.
func (r *Router) handleReloadDocs(w http.ResponseWriter, req *http.Request) {
	r.config.Lifecycle.ReloadDocs()
	httputil.WriteJSON(w, http.StatusOK, MessageResponse{Message: "OpenAPI schema reloaded"})
}

// handleOpenAPI handles GET /openapi.json.
func (r *Router) handleOpenAPI(w http.ResponseWriter, req *http.Request) {
	data, err := r.config.Schema.Schema()
	if err != nil {
		r.fail(w, req, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// fail writes err with its mapped status. Only unexpected errors are
// logged at error level.
func (r *Router) fail(w http.ResponseWriter, req *http.Request, err error) {
	status := httputil.StatusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	r.logger.Log(req.Context(), level, "request failed",
		slog.String("method", req.Method),
		slog.String(log.PathKey, req.URL.Path),
		slog.Int("status", status),
		log.Error(err))
	httputil.WriteError(w, status, err.Error())
}
