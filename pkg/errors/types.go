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

// Package errors defines the typed errors shared by the addon host.
package errors

import (
	"fmt"
	"slices"
	"strings"
)

// Error type identifiers returned by ErrorType.
const (
	TypeValidation = "validation"
	TypeNotFound   = "not_found"
	TypeConfig     = "config"
	TypeManifest   = "manifest_invalid"
	TypeLoad       = "load_failure"
	TypeCollision  = "operation_id_collision"
	TypeConflict   = "conflict"
)

// ValidationError represents user input validation failures.
type ValidationError struct {
	// Field identifies which input field failed validation
	Field string

	// Message is the human-readable error description
	Message string

	// Suggestion provides actionable guidance for fixing the error
	Suggestion string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ErrorType implements Classifier.
func (e *ValidationError) ErrorType() string { return TypeValidation }

// NotFoundError represents a resource not found error.
// Use this when a module, route, or candidate unit does not exist.
type NotFoundError struct {
	// Resource is the type of resource (e.g., "module", "route")
	Resource string

	// ID is the identifier that was not found
	ID string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrorType implements Classifier.
func (e *NotFoundError) ErrorType() string { return TypeNotFound }

// ConfigError represents configuration problems.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "server.addr")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., file read error, parse error)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	msg := "config error"
	if e.Key != "" {
		msg = fmt.Sprintf("config error at %s", e.Key)
	}
	msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ErrorType implements Classifier.
func (e *ConfigError) ErrorType() string { return TypeConfig }

// ManifestError reports an invalid manifest on an installable module.
// It is fatal to that module's load and never to the scan.
type ManifestError struct {
	// Module is the technical name of the module being loaded
	Module string

	// Path is the manifest file
	Path string

	// Reason explains what is invalid
	Reason string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *ManifestError) Error() string {
	msg := fmt.Sprintf("module %s: invalid manifest", e.Module)
	if e.Path != "" {
		msg = fmt.Sprintf("%s %s", msg, e.Path)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ManifestError) Unwrap() error {
	return e.Cause
}

// ErrorType implements Classifier.
func (e *ManifestError) ErrorType() string { return TypeManifest }

// LoadError reports that a code unit could not produce a usable router.
// The unit is skipped; other units are unaffected.
type LoadError struct {
	// Module is the technical name of the unit
	Module string

	// Path is the unit's source file
	Path string

	// Reason explains the failure
	Reason string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	name := e.Module
	if name == "" {
		name = e.Path
	}
	msg := fmt.Sprintf("load %s: %s", name, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *LoadError) Unwrap() error {
	return e.Cause
}

// ErrorType implements Classifier.
func (e *LoadError) ErrorType() string { return TypeLoad }

// OperationIDCollisionError reports operation ids bound to more than one
// live route. Collisions maps each duplicated id to the paths using it.
type OperationIDCollisionError struct {
	Collisions map[string][]string
}

// IDs returns the colliding operation ids in sorted order.
func (e *OperationIDCollisionError) IDs() []string {
	ids := make([]string, 0, len(e.Collisions))
	for id := range e.Collisions {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Error implements the error interface.
func (e *OperationIDCollisionError) Error() string {
	parts := make([]string, 0, len(e.Collisions))
	for _, id := range e.IDs() {
		parts = append(parts, fmt.Sprintf("%s (%s)", id, strings.Join(e.Collisions[id], ", ")))
	}
	return fmt.Sprintf("route operation ids must be unique: %s", strings.Join(parts, "; "))
}

// ErrorType implements Classifier.
func (e *OperationIDCollisionError) ErrorType() string { return TypeCollision }

// ConflictError reports a request that would break a table invariant.
type ConflictError struct {
	Resource string
	ID       string
	Reason   string
	Cause    error
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("%s %s: %s", e.Resource, e.ID, e.Reason)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConflictError) Unwrap() error {
	return e.Cause
}

// ErrorType implements Classifier.
func (e *ConflictError) ErrorType() string { return TypeConflict }
