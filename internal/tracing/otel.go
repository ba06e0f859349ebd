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

// Package tracing builds the OpenTelemetry tracer and meter providers used
// by the engine and the request-observability guard.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/tombee/addonhost/internal/config"
	"github.com/tombee/addonhost/internal/log"
)

// Options configures NewProvider.
type Options struct {
	Tracing config.TracingConfig

	// Metrics enables the OpenTelemetry meter provider, exported through
	// the Prometheus registry.
	Metrics bool

	ServiceVersion string

	// Registerer receives the OpenTelemetry metrics. Nil means the default
	// Prometheus registerer, the one /metrics serves.
	Registerer prometheus.Registerer

	// SpanProcessors are added alongside the configured exporters.
	SpanProcessors []sdktrace.SpanProcessor

	Logger *slog.Logger
}

// Provider owns the tracer and meter providers. Disabled halves are no-ops.
type Provider struct {
	tp trace.TracerProvider
	mp metric.MeterProvider

	sdkTP *sdktrace.TracerProvider
	sdkMP *sdkmetric.MeterProvider
}

// NewProvider builds the providers from configuration. An exporter that
// cannot be created is logged and skipped; startup continues without it.
func NewProvider(ctx context.Context, opts Options) (*Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = log.WithComponent(logger, "tracing")

	p := &Provider{
		tp: tracenoop.NewTracerProvider(),
		mp: metricnoop.NewMeterProvider(),
	}
	if !opts.Tracing.Enabled && !opts.Metrics {
		return p, nil
	}

	// Empty schema URL avoids conflicts when merging with the default resource
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.Tracing.ServiceName),
			semconv.ServiceVersion(opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	if opts.Tracing.Enabled {
		tpOpts := []sdktrace.TracerProviderOption{
			sdktrace.WithResource(res),
			sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.Tracing.SampleRatio))),
		}
		for _, sp := range CreateProcessors(ctx, opts.Tracing.Exporters, logger) {
			tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
		}
		for _, sp := range opts.SpanProcessors {
			tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(sp))
		}
		p.sdkTP = sdktrace.NewTracerProvider(tpOpts...)
		p.tp = p.sdkTP

		// Set as global tracer provider (for libraries that use otel.Tracer)
		otel.SetTracerProvider(p.sdkTP)
		otel.SetTextMapPropagator(W3CPropagator())
	}

	if opts.Metrics {
		promOpts := []otelprom.Option{}
		if opts.Registerer != nil {
			promOpts = append(promOpts, otelprom.WithRegisterer(opts.Registerer))
		}
		exporter, err := otelprom.New(promOpts...)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to create prometheus exporter: %w", err), p.Shutdown(ctx))
		}
		p.sdkMP = sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		p.mp = p.sdkMP
	}

	logger.Info("telemetry initialized",
		slog.Bool("tracing", opts.Tracing.Enabled),
		slog.Bool("metrics", opts.Metrics),
		slog.Int("exporters", len(opts.Tracing.Exporters)))
	return p, nil
}

// TracerProvider returns the tracer provider.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.tp }

// MeterProvider returns the meter provider.
func (p *Provider) MeterProvider() metric.MeterProvider { return p.mp }

// ForceFlush exports all pending spans synchronously.
func (p *Provider) ForceFlush(ctx context.Context) error {
	if p.sdkTP != nil {
		if err := p.sdkTP.ForceFlush(ctx); err != nil {
			return err
		}
	}
	if p.sdkMP != nil {
		return p.sdkMP.ForceFlush(ctx)
	}
	return nil
}

// Shutdown flushes any pending spans and releases resources.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.sdkTP != nil {
		errs = append(errs, p.sdkTP.Shutdown(ctx))
	}
	if p.sdkMP != nil {
		errs = append(errs, p.sdkMP.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
