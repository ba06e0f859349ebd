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

// Package engine registers addon routes and manages their lifecycle.
//
// Startup runs once: every candidate unit found by the scanner is resolved
// against its manifest, loaded, guarded and bound into the route table,
// then operation ids are checked across the whole table. After startup the
// lifecycle operations (RemoveModule, EnableModule, RemoveRoute) mutate the
// same table and registry, one at a time.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/tombee/addonhost/internal/guard"
	"github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/manifest"
	"github.com/tombee/addonhost/internal/plugin"
	"github.com/tombee/addonhost/internal/registry"
	"github.com/tombee/addonhost/internal/routetable"
	"github.com/tombee/addonhost/internal/scanner"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

// ObserverGuard labels the always-appended observability guard.
const ObserverGuard = "observer"

// Options wires an Engine.
type Options struct {
	Scanner   *scanner.Scanner
	Manifests *manifest.Loader
	Loader    plugin.Loader
	Guards    *guard.Registry
	Observer  *guard.Observer
	Table     *routetable.Table
	Registry  *registry.Registry

	// TracerProvider is optional.
	TracerProvider trace.TracerProvider
	Logger         *slog.Logger
}

// Engine drives registration and the module lifecycle.
type Engine struct {
	scanner   *scanner.Scanner
	manifests *manifest.Loader
	loader    plugin.Loader
	guards    *guard.Registry
	observer  *guard.Observer
	table     *routetable.Table
	registry  *registry.Registry
	tracer    trace.Tracer
	logger    *slog.Logger

	// mu serializes startup and lifecycle operations
	mu      sync.Mutex
	started bool
}

// New creates an Engine.
func New(opts Options) (*Engine, error) {
	switch {
	case opts.Scanner == nil:
		return nil, errors.New("engine: scanner is required")
	case opts.Manifests == nil:
		return nil, errors.New("engine: manifest loader is required")
	case opts.Loader == nil:
		return nil, errors.New("engine: plugin loader is required")
	case opts.Table == nil:
		return nil, errors.New("engine: route table is required")
	case opts.Registry == nil:
		return nil, errors.New("engine: registry is required")
	}
	if opts.Guards == nil {
		opts.Guards = guard.Builtin(guard.Defaults{})
	}
	if opts.Observer == nil {
		obs, err := guard.NewObserver(nil, opts.TracerProvider, nil)
		if err != nil {
			return nil, err
		}
		opts.Observer = obs
	}
	if opts.TracerProvider == nil {
		opts.TracerProvider = noop.NewTracerProvider()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Engine{
		scanner:   opts.Scanner,
		manifests: opts.Manifests,
		loader:    plugin.Safe(opts.Loader),
		guards:    opts.Guards,
		observer:  opts.Observer,
		table:     opts.Table,
		registry:  opts.Registry,
		tracer:    opts.TracerProvider.Tracer("github.com/tombee/addonhost/internal/engine"),
		logger:    log.WithComponent(opts.Logger, "engine"),
	}, nil
}

// Skip describes a unit that was not registered.
type Skip struct {
	Module string `json:"module"`
	Path   string `json:"path"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// Report summarizes a startup pass.
type Report struct {
	Registered []string `json:"registered"`
	Skipped    []Skip   `json:"skipped"`
	Routes     int      `json:"routes"`
}

// Start registers every candidate unit and then enforces operation id
// uniqueness across the whole table. It runs once; a collision is returned
// as *errors.OperationIDCollisionError and the host must not serve.
func (e *Engine) Start(ctx context.Context) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started {
		return nil, errors.New("engine already started")
	}
	e.started = true

	ctx, span := e.tracer.Start(ctx, "engine.start")
	defer span.End()

	report, err := e.registerAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}
	if err := e.enforceOperationIDs(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation id collision")
		return report, err
	}
	span.SetAttributes(
		attribute.Int("modules.registered", len(report.Registered)),
		attribute.Int("modules.skipped", len(report.Skipped)),
		attribute.Int("routes", report.Routes),
	)
	return report, nil
}

func (e *Engine) registerAll(ctx context.Context) (*Report, error) {
	report := &Report{Registered: []string{}, Skipped: []Skip{}}

	candidates, err := e.scanner.Scan()
	if err != nil {
		var nf *hosterrors.NotFoundError
		if errors.As(err, &nf) {
			e.logger.Warn("addons directory does not exist, no modules registered",
				slog.String(log.PathKey, e.scanner.Root()))
			return report, nil
		}
		return report, err
	}

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rec, bindings, err := e.prepare(c)
		if err != nil {
			report.Skipped = append(report.Skipped, e.skip(c, err))
			continue
		}
		if rec == nil {
			report.Skipped = append(report.Skipped, Skip{
				Module: c.TechnicalName,
				Path:   c.Path,
				Type:   "not_installable",
				Reason: "module is not installable",
			})
			continue
		}

		if err := e.table.Add(bindings...); err != nil {
			report.Skipped = append(report.Skipped, e.skip(c, &hosterrors.LoadError{
				Module: c.TechnicalName, Path: c.Path, Reason: "invalid route", Cause: err,
			}))
			continue
		}
		if err := e.registry.Upsert(rec); err != nil {
			return report, err
		}

		modulesRegistered.Inc()
		report.Registered = append(report.Registered, c.TechnicalName)
		report.Routes += len(bindings)
		e.logger.Info("registered module routes",
			slog.String(log.ModuleKey, c.TechnicalName),
			slog.Int("routes", len(bindings)),
			slog.Any("guards", guardLabels(rec.Manifest.Dependencies)))
	}
	return report, nil
}

func (e *Engine) skip(c scanner.Candidate, err error) Skip {
	errType := hosterrors.TypeOf(err)
	if errType == "" {
		errType = hosterrors.TypeLoad
	}
	moduleFailures.WithLabelValues(errType).Inc()

	level := slog.LevelError
	var loadErr *hosterrors.LoadError
	if errors.As(err, &loadErr) && loadErr.Reason == reasonMissingSymbol {
		level = slog.LevelWarn
	}
	e.logger.Log(context.Background(), level, "skipping module",
		slog.String(log.ModuleKey, c.TechnicalName),
		slog.String(log.PathKey, c.Path),
		log.Error(err))

	return Skip{Module: c.TechnicalName, Path: c.Path, Type: errType, Reason: err.Error()}
}

const reasonMissingSymbol = "missing exported symbol"

// prepare resolves, loads and guards one unit without touching the table
// or registry. A nil record with no error means the module is not
// installable.
func (e *Engine) prepare(c scanner.Candidate) (*registry.Record, []routetable.Binding, error) {
	m, err := e.manifests.Load(c.TechnicalName, c.Dir)
	if err != nil {
		return nil, nil, err
	}
	if !m.Installable {
		e.logger.Info("module is not installable, skipping",
			slog.String(log.ModuleKey, c.TechnicalName))
		return nil, nil, nil
	}

	unit, err := e.loader.Load(c.Path)
	if err != nil {
		var loadErr *hosterrors.LoadError
		if errors.As(err, &loadErr) && loadErr.Module == "" {
			loadErr.Module = c.TechnicalName
		}
		return nil, nil, err
	}
	if unit == nil || unit.Router == nil || unit.Dependencies == nil {
		missing := "Router"
		if unit != nil && unit.Router != nil {
			missing = "Dependencies"
		}
		return nil, nil, &hosterrors.LoadError{
			Module: c.TechnicalName,
			Path:   c.Path,
			Reason: reasonMissingSymbol,
			Cause:  fmt.Errorf("unit does not export %s", missing),
		}
	}

	deps := make([]sdk.Dependency, 0, len(m.Dependencies)+len(unit.Dependencies))
	deps = append(deps, m.Dependencies...)
	deps = append(deps, unit.Dependencies...)

	bindings, err := e.bind(c, unit.Router, deps)
	if err != nil {
		return nil, nil, err
	}
	if err := e.table.Validate(bindings...); err != nil {
		return nil, nil, &hosterrors.LoadError{Module: c.TechnicalName, Path: c.Path, Reason: "invalid route", Cause: err}
	}

	for _, b := range bindings {
		m.AddRoute(manifest.RouteDescriptor{Path: b.Path, Name: b.Name, Methods: b.Methods})
	}

	return &registry.Record{
		TechnicalName: c.TechnicalName,
		Path:          c.Path,
		Manifest:      m,
		Status:        registry.StatusEnabled,
	}, bindings, nil
}

func (e *Engine) bind(c scanner.Candidate, router *sdk.Router, deps []sdk.Dependency) ([]routetable.Binding, error) {
	labels := append(guardLabels(deps), ObserverGuard)
	bindings := make([]routetable.Binding, 0, len(router.Routes))

	for _, rt := range router.Routes {
		fail := func(reason string, cause error) error {
			return &hosterrors.LoadError{
				Module: c.TechnicalName,
				Path:   c.Path,
				Reason: fmt.Sprintf("route %q: %s", rt.Name, reason),
				Cause:  cause,
			}
		}
		if rt.Name == "" {
			return nil, fail("route has no name", nil)
		}
		if rt.Handler == nil {
			return nil, fail("route has no handler", nil)
		}
		methods, err := sdk.NewMethodSet(rt.Methods...)
		if err != nil {
			return nil, fail("invalid methods", err)
		}
		chain, err := e.guards.Chain(deps, e.observer.For(rt.Name))
		if err != nil {
			return nil, fail("invalid dependency", err)
		}

		tags := make([]string, 0, len(router.Tags)+len(rt.Tags))
		tags = append(tags, router.Tags...)
		tags = append(tags, rt.Tags...)

		bindings = append(bindings, routetable.Binding{
			Owner:   c.TechnicalName,
			Path:    sdk.JoinPath(router.Prefix, rt.Path),
			Methods: methods,
			Name:    rt.Name,
			Summary: rt.Summary,
			Tags:    tags,
			Guards:  labels,
			Handler: guard.Apply(rt.Handler, chain),
		})
	}
	return bindings, nil
}

func guardLabels(deps []sdk.Dependency) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = d.Label()
	}
	return out
}
