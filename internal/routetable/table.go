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

// Package routetable holds the live route bindings served by the host.
//
// The table is the only writer of its bindings. Every mutation rebuilds
// the dispatch mux and drops the cached API schema before the write lock
// is released, so readers see either the old table or the new one.
package routetable

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tombee/addonhost/internal/log"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

var liveRoutes = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "addonhost_routes_live",
		Help: "Number of route bindings currently served",
	},
)

// HostOwner owns the host's own routes. It contains a slash, which a dotted
// technical name never does, so no module can replace or remove them.
const HostOwner = "addonhost/base"

// Binding is one live route.
type Binding struct {
	// Owner is the technical name of the module that registered the route.
	Owner string `json:"owner"`

	// Path is the full ServeMux path pattern.
	Path string `json:"path"`

	// Methods is the accepted method set.
	Methods sdk.MethodSet `json:"methods"`

	// Name is the handler's declared name and the route's operation id.
	Name string `json:"name"`

	Summary string   `json:"summary,omitempty"`
	Tags    []string `json:"tags,omitempty"`

	// Guards labels the dependency chain, outermost first.
	Guards []string `json:"guards,omitempty"`

	// Handler is the guarded handler.
	Handler http.Handler `json:"-"`
}

// OperationID returns the identifier generated clients key off.
func (b Binding) OperationID() string {
	return b.Name
}

// DisplayPath is Path without the exact-match marker, so the root route
// "/{$}" reads as "/".
func (b Binding) DisplayPath() string {
	return strings.TrimSuffix(b.Path, "{$}")
}

// Patterns returns one ServeMux pattern per method.
func (b Binding) Patterns() []string {
	out := make([]string, len(b.Methods))
	for i, m := range b.Methods {
		out[i] = string(m) + " " + b.Path
	}
	return out
}

// Info describes the served API in the generated schema.
type Info struct {
	Title   string
	Version string
}

// Table is the process-wide route table.
type Table struct {
	info   Info
	logger *slog.Logger

	mu       sync.RWMutex
	bindings []Binding
	mux      atomic.Pointer[http.ServeMux]

	schemaMu sync.Mutex
	schema   []byte
}

// New creates an empty table.
func New(info Info, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	t := &Table{
		info:   info,
		logger: log.WithComponent(logger, "routetable"),
	}
	t.mux.Store(http.NewServeMux())
	return t
}

// ServeHTTP dispatches to the current bindings.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mux.Load().ServeHTTP(w, r)
}

// Validate checks that every binding can be served. It does not look at
// the live bindings.
func (t *Table) Validate(bs ...Binding) error {
	for _, b := range bs {
		if err := validate(b); err != nil {
			return err
		}
	}
	return nil
}

func validate(b Binding) (err error) {
	invalid := func(msg string) error {
		return &hosterrors.ValidationError{
			Field:   "route",
			Message: fmt.Sprintf("%s %s: %s", b.Name, b.Path, msg),
		}
	}
	switch {
	case b.Name == "":
		return invalid("route has no name")
	case !strings.HasPrefix(b.Path, "/"):
		return invalid("path must start with /")
	case len(b.Methods) == 0:
		return invalid("route has no methods")
	case b.Handler == nil:
		return invalid("route has no handler")
	}

	defer func() {
		if r := recover(); r != nil {
			err = invalid(fmt.Sprint(r))
		}
	}()
	scratch := http.NewServeMux()
	for _, p := range b.Patterns() {
		scratch.Handle(p, b.Handler)
	}
	return nil
}

// Add appends bindings after the existing ones.
func (t *Table) Add(bs ...Binding) error {
	if err := t.Validate(bs...); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings = append(t.bindings, bs...)
	t.rebuild()
	return nil
}

// Replace atomically swaps every binding owned by owner for bs and returns
// the bindings it removed. The new bindings keep the position of the first
// removed one, or go last when owner had none.
func (t *Table) Replace(owner string, bs []Binding) ([]Binding, error) {
	if owner == HostOwner {
		return nil, &hosterrors.ConflictError{Resource: "route owner", ID: owner, Reason: "host routes cannot be replaced"}
	}
	for i := range bs {
		bs[i].Owner = owner
	}
	if err := t.Validate(bs...); err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	next := make([]Binding, 0, len(t.bindings)+len(bs))
	var removed []Binding
	inserted := false
	for _, b := range t.bindings {
		if b.Owner != owner {
			next = append(next, b)
			continue
		}
		if !inserted {
			next = append(next, bs...)
			inserted = true
		}
		removed = append(removed, b)
	}
	if !inserted {
		next = append(next, bs...)
	}
	t.bindings = next
	t.rebuild()
	return removed, nil
}

// Remove drops every binding matching pred and returns them.
func (t *Table) Remove(pred func(Binding) bool) []Binding {
	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.bindings[:0:0]
	var removed []Binding
	for _, b := range t.bindings {
		if pred(b) {
			removed = append(removed, b)
		} else {
			kept = append(kept, b)
		}
	}
	if len(removed) > 0 {
		t.bindings = kept
	}
	// the schema is dropped even when nothing matched
	t.rebuild()
	return removed
}

// Snapshot returns a copy of the live bindings in registration order.
func (t *Table) Snapshot() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Binding, len(t.bindings))
	copy(out, t.bindings)
	return out
}

// Len returns the number of live bindings.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.bindings)
}

// rebuild installs a fresh mux and drops the schema. Callers hold t.mu.
// Patterns that collide with an earlier binding are skipped: the first
// registration keeps serving.
func (t *Table) rebuild() {
	mux := http.NewServeMux()
	for _, b := range t.bindings {
		for _, p := range b.Patterns() {
			if err := register(mux, p, b.Handler); err != nil {
				t.logger.Warn("route pattern shadowed by an earlier registration",
					slog.String(log.ModuleKey, b.Owner),
					slog.String(log.RouteKey, p),
					slog.String(log.OperationIDKey, b.OperationID()),
					log.Error(err))
			}
		}
	}
	t.mux.Store(mux)
	liveRoutes.Set(float64(len(t.bindings)))
	t.InvalidateSchema()
}

func register(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}
