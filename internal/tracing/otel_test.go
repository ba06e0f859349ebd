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

package tracing

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tombee/addonhost/internal/config"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Options{Logger: quiet})
	require.NoError(t, err)
	assert.Nil(t, p.sdkTP)
	assert.Nil(t, p.sdkMP)

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderRecordsSpans(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	p, err := NewProvider(context.Background(), Options{
		Tracing: config.TracingConfig{
			Enabled:     true,
			ServiceName: "addonhost-test",
			SampleRatio: 1.0,
		},
		ServiceVersion: "1.2.3",
		SpanProcessors: []sdktrace.SpanProcessor{sdktrace.NewSimpleSpanProcessor(exporter)},
		Logger:         quiet,
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	_, span := p.TracerProvider().Tracer("test").Start(context.Background(), "engine.start")
	span.SetAttributes(attribute.Int("routes", 3))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "engine.start", spans[0].Name)

	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	assert.Equal(t, "addonhost-test", service)
}

func TestNewProviderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p, err := NewProvider(context.Background(), Options{
		Tracing:    config.TracingConfig{ServiceName: "addonhost-test"},
		Metrics:    true,
		Registerer: reg,
		Logger:     quiet,
	})
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	counter, err := p.MeterProvider().Meter("test").Int64Counter("addonhost.requests")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	families, err := reg.Gather()
	require.NoError(t, err)

	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "addonhost_requests_total")
}

func TestCreateExporter(t *testing.T) {
	var buf bytes.Buffer
	orig := ConsoleWriter
	ConsoleWriter = &buf
	t.Cleanup(func() { ConsoleWriter = orig })

	exp, err := CreateExporter(context.Background(), config.ExporterConfig{Type: "console"})
	require.NoError(t, err)
	require.NotNil(t, exp)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	_, span := tp.Tracer("test").Start(context.Background(), "printed")
	span.End()
	require.NoError(t, tp.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "printed")

	exp, err = CreateExporter(context.Background(), config.ExporterConfig{Type: "none"})
	assert.NoError(t, err)
	assert.Nil(t, exp)

	_, err = CreateExporter(context.Background(), config.ExporterConfig{Type: "zipkin"})
	assert.Error(t, err)
}

func TestCreateProcessorsSkipsFailures(t *testing.T) {
	processors := CreateProcessors(context.Background(), []config.ExporterConfig{
		{Type: "zipkin"},
		{Type: "none"},
		{Type: "otlp_http", Endpoint: "localhost:4318", Insecure: true},
	}, quiet)
	require.Len(t, processors, 1)
	for _, p := range processors {
		assert.NoError(t, p.Shutdown(context.Background()))
	}
}
