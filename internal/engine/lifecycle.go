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

package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/manifest"
	"github.com/tombee/addonhost/internal/registry"
	"github.com/tombee/addonhost/internal/routetable"
	"github.com/tombee/addonhost/internal/scanner"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// RemoveResult reports a remove-module call.
type RemoveResult struct {
	Message         string                     `json:"message"`
	RemovedRoutes   []string                   `json:"removed_routes"`
	UnmatchedRoutes []manifest.RouteDescriptor `json:"unmatched_routes"`
}

// EnableResult reports an enable-module call.
type EnableResult struct {
	Message       string   `json:"message"`
	TechnicalName string   `json:"technical_name"`
	Routes        []string `json:"routes"`
	Replaced      int      `json:"replaced"`
}

// RemoveModule unbinds the routes recorded for name. Each recorded
// descriptor removes at most one live binding of the module with the same
// path and a method set covering the descriptor's. Descriptors that match
// nothing are reported, not failed. The API schema is dropped whatever
// matched.
func (e *Engine) RemoveModule(ctx context.Context, name string) (res *RemoveResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { recordLifecycle("remove_module", err) }()

	_, span := e.tracer.Start(ctx, "engine.remove_module")
	defer span.End()

	rec, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	return e.removeModule(rec)
}

// removeModule unbinds the routes recorded in rec. Callers hold e.mu.
func (e *Engine) removeModule(rec *registry.Record) (*RemoveResult, error) {
	name := rec.TechnicalName
	descriptors := rec.Manifest.Routes
	matched := make([]bool, len(descriptors))

	e.table.Remove(func(b routetable.Binding) bool {
		if b.Owner != name {
			return false
		}
		for i, d := range descriptors {
			if !matched[i] && b.Path == d.Path && b.Methods.SupersetOf(d.Methods) {
				matched[i] = true
				return true
			}
		}
		return false
	})

	res := &RemoveResult{
		Message:         fmt.Sprintf("Routes from module '%s' have been removed", name),
		RemovedRoutes:   []string{},
		UnmatchedRoutes: []manifest.RouteDescriptor{},
	}
	for i, d := range descriptors {
		if matched[i] {
			res.RemovedRoutes = append(res.RemovedRoutes, d.Path)
		} else {
			res.UnmatchedRoutes = append(res.UnmatchedRoutes, d)
		}
	}

	err := e.registry.Update(name, func(r *registry.Record) {
		r.Status = registry.StatusDisabled
		r.Manifest.Routes = append([]manifest.RouteDescriptor{}, res.UnmatchedRoutes...)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("removed module routes",
		slog.String(log.ModuleKey, name),
		slog.Int("removed", len(res.RemovedRoutes)),
		slog.Int("unmatched", len(res.UnmatchedRoutes)))
	return res, nil
}

// EnableModule (re)binds the unit named name, found by rescanning the
// addon tree. Any routes the module already serves are replaced, so
// repeated calls do not duplicate bindings. Operation ids are checked
// against every other live binding and a collision is refused with
// *errors.ConflictError.
func (e *Engine) EnableModule(ctx context.Context, name string) (res *EnableResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { recordLifecycle("enable_module", err) }()

	_, span := e.tracer.Start(ctx, "engine.enable_module")
	defer span.End()

	c, err := e.scanner.Find(name)
	if err != nil {
		return nil, err
	}
	return e.enable(c)
}

// EnablePath enables the unit at path. It is used by the file watcher.
func (e *Engine) EnablePath(ctx context.Context, path string) (res *EnableResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { recordLifecycle("enable_path", err) }()

	_, span := e.tracer.Start(ctx, "engine.enable_path")
	defer span.End()

	if !e.scanner.IsCandidate(path) {
		return nil, &hosterrors.NotFoundError{Resource: "unit", ID: path}
	}
	name, err := scanner.TechnicalName(e.scanner.Root(), path)
	if err != nil {
		return nil, err
	}
	c, err := e.scanner.Find(name)
	if err != nil {
		return nil, err
	}
	if c.Path != path {
		// another file owns this technical name
		return nil, &hosterrors.ConflictError{
			Resource: "module",
			ID:       name,
			Reason:   fmt.Sprintf("technical name is provided by %s", c.Path),
		}
	}
	return e.enable(c)
}

// enable loads and swaps in c. Callers hold e.mu.
func (e *Engine) enable(c scanner.Candidate) (*EnableResult, error) {
	rec, bindings, err := e.prepare(c)
	if err != nil {
		e.skip(c, err)
		return nil, err
	}
	if rec == nil {
		return nil, &hosterrors.ConflictError{Resource: "module", ID: c.TechnicalName, Reason: "module is not installable"}
	}

	others := make([]routetable.Binding, 0, e.table.Len()+len(bindings))
	for _, b := range e.table.Snapshot() {
		if b.Owner != c.TechnicalName {
			others = append(others, b)
		}
	}
	if collisions := Collisions(append(others, bindings...)); len(collisions) > 0 {
		mine := make(map[string]bool, len(bindings))
		for _, b := range bindings {
			mine[b.OperationID()] = true
		}
		for id := range collisions {
			if !mine[id] {
				delete(collisions, id)
			}
		}
		if len(collisions) > 0 {
			cerr := &hosterrors.OperationIDCollisionError{Collisions: collisions}
			return nil, &hosterrors.ConflictError{
				Resource: "module",
				ID:       c.TechnicalName,
				Reason:   "route operation ids collide with live routes",
				Cause:    cerr,
			}
		}
	}

	replaced, err := e.table.Replace(c.TechnicalName, bindings)
	if err != nil {
		return nil, &hosterrors.LoadError{Module: c.TechnicalName, Path: c.Path, Reason: "invalid route", Cause: err}
	}
	if err := e.registry.Upsert(rec); err != nil {
		return nil, err
	}
	modulesRegistered.Inc()

	res := &EnableResult{
		Message:       fmt.Sprintf("Module '%s' has been enabled", c.TechnicalName),
		TechnicalName: c.TechnicalName,
		Routes:        make([]string, len(bindings)),
		Replaced:      len(replaced),
	}
	for i, b := range bindings {
		res.Routes[i] = b.Path
	}
	e.logger.Info("enabled module",
		slog.String(log.ModuleKey, c.TechnicalName),
		slog.Int("routes", len(bindings)),
		slog.Int("replaced", len(replaced)))
	return res, nil
}

// DisablePath removes the routes of the unit that was at path, if it is a
// registered module. It is used by the file watcher when a unit is deleted.
// The registry lookup and the removal run under e.mu.
func (e *Engine) DisablePath(ctx context.Context, path string) (res *RemoveResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { recordLifecycle("disable_path", err) }()

	_, span := e.tracer.Start(ctx, "engine.disable_path")
	defer span.End()

	name, err := scanner.TechnicalName(e.scanner.Root(), path)
	if err != nil {
		return nil, err
	}
	rec, err := e.registry.Get(name)
	if err != nil {
		return nil, err
	}
	if rec.Path != path {
		return nil, &hosterrors.NotFoundError{Resource: "unit", ID: path}
	}
	return e.removeModule(rec)
}

// RemoveRoute unbinds the first live binding whose path, or display path,
// equals path, independent of module bookkeeping.
func (e *Engine) RemoveRoute(ctx context.Context, path string) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	defer func() { recordLifecycle("remove_route", err) }()

	_, span := e.tracer.Start(ctx, "engine.remove_route")
	defer span.End()

	found := false
	e.table.Remove(func(b routetable.Binding) bool {
		if !found && (b.Path == path || b.DisplayPath() == path) {
			found = true
			return true
		}
		return false
	})
	if !found {
		return &hosterrors.NotFoundError{Resource: "route", ID: path}
	}
	e.logger.Info("removed route", slog.String(log.RouteKey, path))
	return nil
}

// ReloadDocs drops the cached API schema.
func (e *Engine) ReloadDocs() {
	e.table.InvalidateSchema()
}

// Modules returns a snapshot of the registry.
func (e *Engine) Modules() []*registry.Record {
	return e.registry.List()
}

// Module returns one registry record.
func (e *Engine) Module(name string) (*registry.Record, error) {
	return e.registry.Get(name)
}

// Routes returns the display path of every live binding in table order.
func (e *Engine) Routes() []string {
	snapshot := e.table.Snapshot()
	out := make([]string, len(snapshot))
	for i, b := range snapshot {
		out[i] = b.DisplayPath()
	}
	return out
}

// IsCandidate reports whether path would be loaded as a unit.
func (e *Engine) IsCandidate(path string) bool {
	return e.scanner.IsCandidate(path)
}

// SkipDir reports whether the directory at path is never scanned.
func (e *Engine) SkipDir(path string) bool {
	return e.scanner.SkipDir(path)
}

// Discover scans the addon tree without loading anything.
func (e *Engine) Discover() (*scanner.Report, error) {
	return e.scanner.ScanReport()
}
