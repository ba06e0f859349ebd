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

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tombee/addonhost/internal/config"
	"github.com/tombee/addonhost/internal/controller/api"
	"github.com/tombee/addonhost/internal/controller/auth"
	"github.com/tombee/addonhost/internal/controller/filewatcher"
	"github.com/tombee/addonhost/internal/controller/listener"
	"github.com/tombee/addonhost/internal/controller/middleware"
	"github.com/tombee/addonhost/internal/engine"
	"github.com/tombee/addonhost/internal/expression"
	"github.com/tombee/addonhost/internal/guard"
	"github.com/tombee/addonhost/internal/jq"
	internallog "github.com/tombee/addonhost/internal/log"
	"github.com/tombee/addonhost/internal/manifest"
	"github.com/tombee/addonhost/internal/plugin"
	"github.com/tombee/addonhost/internal/registry"
	"github.com/tombee/addonhost/internal/routetable"
	"github.com/tombee/addonhost/internal/scanner"
	"github.com/tombee/addonhost/internal/tracing"
)

// requestLogQueue bounds the observability guard's pending log entries.
const requestLogQueue = 1024

// Options contains controller options set at build time.
type Options struct {
	Version   string
	Commit    string
	BuildDate string

	// Loader overrides the unit loader. Nil means plugin.Default.
	Loader plugin.Loader

	// Logger overrides the logger built from configuration.
	Logger *slog.Logger

	// Registerer receives the OpenTelemetry metrics. Nil means the
	// default Prometheus registerer.
	Registerer prometheus.Registerer
}

// newLogger builds the process logger. ADDONHOST_DEBUG and
// ADDONHOST_LOG_LEVEL win over the configured level.
func newLogger(cfg config.LogConfig) *slog.Logger {
	logCfg := internallog.FromEnv()
	level := cfg.Level
	if d := os.Getenv("ADDONHOST_DEBUG"); d == "true" || d == "1" || os.Getenv("ADDONHOST_LOG_LEVEL") != "" {
		level = ""
	}
	logCfg.Merge(level, cfg.Format, cfg.AddSource)
	return internallog.New(logCfg)
}

// Controller assembles the addon host: route table, engine, base routes,
// optional hot reload and the HTTP server.
type Controller struct {
	cfg    *config.Config
	opts   Options
	logger *slog.Logger

	provider    *tracing.Provider
	requestLogs *internallog.AsyncLogger
	table       *routetable.Table
	engine      *engine.Engine
	fileWatcher *filewatcher.Service
	server      *http.Server
	ln          net.Listener

	mu      sync.Mutex
	started bool
	stopped bool
	report  *engine.Report
}

// New creates a controller. Nothing is scanned or served until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Controller, error) {
	logger := opts.Logger
	if logger == nil {
		logger = newLogger(cfg.Log)
	}

	provider, err := tracing.NewProvider(ctx, tracing.Options{
		Tracing:        cfg.Tracing,
		Metrics:        cfg.Metrics.Enabled,
		ServiceVersion: opts.Version,
		Registerer:     opts.Registerer,
		Logger:         logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create telemetry provider: %w", err)
	}

	c := &Controller{
		cfg:      cfg,
		opts:     opts,
		logger:   internallog.WithComponent(logger, "controller"),
		provider: provider,
	}
	if err := c.assemble(logger); err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Controller) assemble(logger *slog.Logger) error {
	cfg := c.cfg

	c.requestLogs = internallog.NewAsyncLogger(internallog.WithComponent(logger, "requests"), requestLogQueue)
	observer, err := guard.NewObserver(c.requestLogs, c.provider.TracerProvider(), c.provider.MeterProvider())
	if err != nil {
		return err
	}

	eval := expression.New()
	loader := c.opts.Loader
	if loader == nil {
		loader = plugin.Default(eval, jq.NewExecutor(jq.DefaultTimeout, jq.DefaultMaxInputSize))
	}

	sc, err := scanner.New(cfg.Addons.Dir, scanner.Options{
		ExcludeDirs:     cfg.Addons.ExcludeDirs,
		ExcludePatterns: cfg.Addons.ExcludePatterns,
		Extensions:      loader.Extensions(),
	}, logger)
	if err != nil {
		return err
	}
	manifests, err := manifest.NewLoader(logger)
	if err != nil {
		return err
	}

	jwtCfg := auth.JWTConfig{
		Secret: []byte(cfg.Auth.JWTSecret),
		Issuer: cfg.Auth.Issuer,
		TTL:    cfg.Auth.TokenTTL,
	}

	c.table = routetable.New(routetable.Info{Title: "addonhost", Version: c.opts.Version}, logger)
	c.engine, err = engine.New(engine.Options{
		Scanner:        sc,
		Manifests:      manifests,
		Loader:         loader,
		Guards:         guard.Builtin(guard.Defaults{JWT: jwtCfg, Evaluator: eval}),
		Observer:       observer,
		Table:          c.table,
		Registry:       registry.New(),
		TracerProvider: c.provider.TracerProvider(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	// base routes go in first so addon modules cannot shadow them
	base := api.New(api.Config{
		Lifecycle: c.engine,
		Schema:    c.table,
		JWT:       jwtCfg,
		Users:     cfg.Auth.Users,
		Version:   c.opts.Version,
		Commit:    c.opts.Commit,
		BuildDate: c.opts.BuildDate,
		Metrics:   cfg.Metrics.Enabled,
		Observer:  observer,
		Logger:    logger,
	})
	if err := c.table.Add(base.Bindings()...); err != nil {
		return fmt.Errorf("failed to bind base routes: %w", err)
	}

	if cfg.Addons.Watch.Enabled {
		c.fileWatcher, err = filewatcher.NewService(c.engine, filewatcher.Options{
			Root:            sc.Root(),
			Debounce:        cfg.Addons.Watch.Debounce,
			ExcludePatterns: cfg.Addons.ExcludePatterns,
			Logger:          logger,
		})
		if err != nil {
			c.logger.Warn("hot reload disabled", internallog.Error(err))
			c.fileWatcher = nil
		}
	}
	return nil
}

// Handler returns the host's HTTP handler: CORS and panic recovery around
// the live route table.
func (c *Controller) Handler() http.Handler {
	var handler http.Handler = c.table
	handler = middleware.Recover(c.logger)(handler)
	if c.cfg.Tracing.Enabled {
		handler = tracing.PropagationMiddleware(nil)(handler)
	}
	handler = middleware.CORS(middleware.FromConfig(c.cfg.CORS))(handler)
	return handler
}

// Engine returns the route engine.
func (c *Controller) Engine() *engine.Engine {
	return c.engine
}

// Report returns the startup report, nil before Start.
func (c *Controller) Report() *engine.Report {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.report
}

// Start registers every addon module, starts hot reload and serves HTTP.
// It blocks until the server stops. An operation id collision aborts
// before anything is served.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.Register(ctx); err != nil {
		return err
	}

	ln, err := listener.New(c.cfg.Server)
	if err != nil {
		return err
	}
	if listener.IsRemote(c.cfg.Server.Addr) {
		c.logger.Warn("listening on all interfaces; lifecycle endpoints are reachable from the network",
			slog.String("addr", c.cfg.Server.Addr))
	}
	return c.serve(ctx, ln)
}

// Register runs the startup registration pass and starts the watcher.
func (c *Controller) Register(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started || c.stopped {
		return errors.New("controller already started")
	}

	report, err := c.engine.Start(ctx)
	if err != nil {
		return err
	}
	c.report = report
	c.started = true

	c.logger.Info("addon modules registered",
		slog.Int("registered", len(report.Registered)),
		slog.Int("skipped", len(report.Skipped)),
		slog.Int("routes", report.Routes))

	if c.fileWatcher != nil {
		if err := c.fileWatcher.Start(ctx); err != nil {
			c.logger.Error("failed to start file watcher service", internallog.Error(err))
			c.fileWatcher = nil
		}
	}
	return nil
}

func (c *Controller) serve(ctx context.Context, ln net.Listener) error {
	c.mu.Lock()
	c.ln = ln
	c.server = &http.Server{
		Handler:           c.Handler(),
		ReadHeaderTimeout: c.cfg.Server.ReadHeaderTimeout,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	server := c.server
	c.mu.Unlock()

	c.logger.Info("addonhost starting",
		slog.String("version", c.opts.Version),
		slog.String("listen_addr", ln.Addr().String()))

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Addr returns the bound listener address, nil before serving.
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ln == nil {
		return nil
	}
	return c.ln.Addr()
}

// Shutdown stops the watcher, drains in-flight requests, then flushes
// telemetry and the request log. Only the first call does anything.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil
	}
	c.stopped = true

	var errs []error

	if c.fileWatcher != nil {
		if err := c.fileWatcher.Stop(); err != nil {
			c.logger.Error("failed to stop file watcher service", internallog.Error(err))
			errs = append(errs, err)
		}
	}

	if c.server != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, c.cfg.Server.ShutdownTimeout)
		defer cancel()
		c.server.SetKeepAlivesEnabled(false)
		if err := c.server.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("http server shutdown", internallog.Error(err))
			errs = append(errs, err)
		}
	}

	if err := c.provider.Shutdown(ctx); err != nil {
		c.logger.Warn("telemetry shutdown", internallog.Error(err))
		errs = append(errs, err)
	}

	if c.requestLogs != nil {
		c.requestLogs.Close()
		if dropped := c.requestLogs.Dropped(); dropped > 0 {
			c.logger.Warn("request log entries were dropped", slog.Int64("dropped", dropped))
		}
	}

	c.logger.Info("addonhost stopped")
	return errors.Join(errs...)
}
