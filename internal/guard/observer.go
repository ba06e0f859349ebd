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

package guard

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/tombee/addonhost/internal/log"
)

// RequestIDHeader carries a caller supplied request id.
const RequestIDHeader = "X-Request-Id"

const instrumentationName = "github.com/tombee/addonhost/internal/guard"

var observedRequests = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "addonhost_requests_observed_total",
		Help: "Requests seen by the observability guard by operation id",
	},
	[]string{"operation_id"},
)

var droppedLogEntries = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "addonhost_request_log_dropped_total",
		Help: "Request log entries dropped because the log queue was full",
	},
)

type requestIDKey struct{}

// RequestID returns the id the observability guard assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Observer is the request-observability guard appended to every route.
// It logs through a bounded queue, opens a span and counts the request.
// It never touches the response.
type Observer struct {
	logs     *log.AsyncLogger
	tracer   trace.Tracer
	requests metric.Int64Counter
}

// NewObserver creates the guard. Nil providers fall back to no-ops.
func NewObserver(logs *log.AsyncLogger, tp trace.TracerProvider, mp metric.MeterProvider) (*Observer, error) {
	if tp == nil {
		tp = tracenoop.NewTracerProvider()
	}
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	requests, err := mp.Meter(instrumentationName).Int64Counter(
		"addonhost.requests",
		metric.WithDescription("Requests served by addon routes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}
	return &Observer{
		logs:     logs,
		tracer:   tp.Tracer(instrumentationName),
		requests: requests,
	}, nil
}

// For returns the guard for one route.
func (o *Observer) For(operationID string) Middleware {
	attrs := metric.WithAttributes(attribute.String("operation_id", operationID))
	counter := observedRequests.WithLabelValues(operationID)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx, span := o.tracer.Start(r.Context(), operationID,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("http.route", r.Pattern),
					attribute.String("url.path", r.URL.Path),
					attribute.String("request.id", requestID),
				))
			defer span.End()

			if o.logs != nil {
				entry := log.NewRequestEntry(r, requestID)
				entry.OperationID = operationID
				if !o.logs.Log(entry) {
					droppedLogEntries.Inc()
				}
			}
			counter.Inc()
			o.requests.Add(ctx, 1, attrs)

			ctx = context.WithValue(ctx, requestIDKey{}, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
