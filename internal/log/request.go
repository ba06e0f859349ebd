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

package log

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

// RedactedHeaders are never written to logs verbatim.
var RedactedHeaders = []string{"Authorization", "Cookie", "X-Api-Key"}

// RequestEntry describes one inbound request for logging purposes.
type RequestEntry struct {
	// RequestID is the unique ID for this specific request.
	RequestID string

	// Method is the HTTP method.
	Method string

	// URL is the full request URL including query string.
	URL string

	// Route is the matched pattern, when known.
	Route string

	// OperationID is the matched route's operation id, when known.
	OperationID string

	// RemoteAddr is the remote address of the client.
	RemoteAddr string

	// Headers holds the request headers with secrets redacted.
	Headers map[string]string

	// Params holds path parameters.
	Params map[string]string
}

// NewRequestEntry captures r's loggable fields. Header values named in
// RedactedHeaders are replaced with SanitizeSecret output.
func NewRequestEntry(r *http.Request, requestID string) RequestEntry {
	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		v := strings.Join(values, ", ")
		for _, redacted := range RedactedHeaders {
			if strings.EqualFold(name, redacted) {
				v = SanitizeSecret(v)
				break
			}
		}
		headers[name] = v
	}
	return RequestEntry{
		RequestID:  requestID,
		Method:     r.Method,
		URL:        r.URL.String(),
		Route:      r.Pattern,
		RemoteAddr: r.RemoteAddr,
		Headers:    headers,
		Params:     PathParams(r),
	}
}

// PathParams reads the wildcards named in the ServeMux pattern that
// matched r.
func PathParams(r *http.Request) map[string]string {
	params := map[string]string{}
	pattern := r.Pattern
	if i := strings.IndexByte(pattern, ' '); i >= 0 {
		pattern = pattern[i+1:]
	}
	for _, seg := range strings.Split(pattern, "/") {
		if !strings.HasPrefix(seg, "{") || !strings.HasSuffix(seg, "}") {
			continue
		}
		name := strings.TrimSuffix(seg[1:len(seg)-1], "...")
		if name == "" || name == "$" {
			continue
		}
		params[name] = r.PathValue(name)
	}
	return params
}

// Attrs returns the entry as slog attributes.
func (e RequestEntry) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String(EventKey, "request"),
		slog.String(RequestIDKey, e.RequestID),
		slog.String("method", e.Method),
		slog.String("url", e.URL),
		slog.String("remote", e.RemoteAddr),
	}
	if e.Route != "" {
		attrs = append(attrs, slog.String(RouteKey, e.Route))
	}
	if e.OperationID != "" {
		attrs = append(attrs, slog.String(OperationIDKey, e.OperationID))
	}
	if len(e.Params) > 0 {
		attrs = append(attrs, slog.Any("params", e.Params))
	}
	if len(e.Headers) > 0 {
		attrs = append(attrs, slog.Any("headers", e.Headers))
	}
	return attrs
}

// AsyncLogger writes request entries from a background goroutine through a
// bounded queue. Log never blocks; when the queue is full the entry is
// dropped and counted.
type AsyncLogger struct {
	logger  *slog.Logger
	queue   chan RequestEntry
	dropped atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewAsyncLogger starts the writer goroutine. size is the queue capacity.
func NewAsyncLogger(logger *slog.Logger, size int) *AsyncLogger {
	if size <= 0 {
		size = 1024
	}
	a := &AsyncLogger{
		logger: logger,
		queue:  make(chan RequestEntry, size),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncLogger) run() {
	defer close(a.done)
	for entry := range a.queue {
		a.logger.LogAttrs(context.Background(), slog.LevelInfo, "request received", entry.Attrs()...)
	}
}

// Log enqueues entry. It reports false when the entry was dropped.
func (a *AsyncLogger) Log(entry RequestEntry) (queued bool) {
	defer func() {
		// Log after Close
		if recover() != nil {
			a.dropped.Add(1)
			queued = false
		}
	}()
	select {
	case a.queue <- entry:
		return true
	default:
		a.dropped.Add(1)
		return false
	}
}

// Dropped returns the number of entries discarded so far.
func (a *AsyncLogger) Dropped() int64 {
	return a.dropped.Load()
}

// Close drains the queue and stops the writer.
func (a *AsyncLogger) Close() {
	a.closeOnce.Do(func() {
		close(a.queue)
	})
	<-a.done
}
