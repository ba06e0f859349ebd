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

// Package registry tracks loaded addon modules by technical name.
package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/tombee/addonhost/internal/manifest"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
)

// Status is a module's lifecycle state.
type Status string

const (
	StatusEnabled  Status = "enabled"
	StatusDisabled Status = "disabled"
)

// Record is one registry entry.
type Record struct {
	// TechnicalName is the dotted unit name.
	TechnicalName string `json:"technical_name"`

	// Path is the unit file the record was loaded from.
	Path string `json:"path"`

	// Manifest holds the module metadata and the recorded route descriptors.
	Manifest *manifest.Manifest `json:"manifest"`

	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Record) clone() *Record {
	c := *r
	c.Manifest = r.Manifest.Clone()
	return &c
}

// Registry manages module records with thread-safe access. Readers get
// copies, so a record can only change through the registry.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		records: make(map[string]*Record),
	}
}

// Upsert inserts or replaces the record for rec.TechnicalName. New names
// keep insertion order; replacing keeps the original position.
func (r *Registry) Upsert(rec *Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}
	if rec.TechnicalName == "" {
		return fmt.Errorf("record technical name cannot be empty")
	}
	if rec.Manifest == nil {
		rec.Manifest = manifest.Empty()
	}

	stored := rec.clone()
	stored.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.TechnicalName]; !exists {
		r.order = append(r.order, rec.TechnicalName)
	}
	r.records[rec.TechnicalName] = stored
	return nil
}

// Get returns a copy of the record for name.
func (r *Registry) Get(name string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[name]
	if !ok {
		return nil, &hosterrors.NotFoundError{Resource: "module", ID: name}
	}
	return rec.clone(), nil
}

// List returns copies of every record in insertion order.
func (r *Registry) List() []*Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Record, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.records[name].clone())
	}
	return out
}

// Update applies fn to the stored record for name under the write lock.
func (r *Registry) Update(name string, fn func(*Record)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return &hosterrors.NotFoundError{Resource: "module", ID: name}
	}
	fn(rec)
	if rec.Manifest == nil {
		rec.Manifest = manifest.Empty()
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

// SetStatus flips the status for name.
func (r *Registry) SetStatus(name string, status Status) error {
	return r.Update(name, func(rec *Record) { rec.Status = status })
}

// Count returns the number of records.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// CountByStatus returns the number of records with status.
func (r *Registry) CountByStatus(status Status) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.records {
		if rec.Status == status {
			n++
		}
	}
	return n
}
