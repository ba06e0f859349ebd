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

// Package expression compiles and runs expr-lang expressions over request
// data for declarative route units and expr guards.
package expression

import (
	"fmt"
	"maps"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/tombee/addonhost/pkg/errors"
)

// Program is a compiled expression.
type Program struct {
	source  string
	program *vm.Program
	boolean bool
}

// Source returns the expression text.
func (p *Program) Source() string { return p.source }

// Evaluator compiles expressions with a shared cache.
type Evaluator struct {
	cache map[cacheKey]*Program
	mu    sync.RWMutex
}

type cacheKey struct {
	source  string
	boolean bool
}

// builtins are available in every expression.
// Note: "contains" is a reserved string operator in expr, so "has" is used.
var builtins = map[string]any{
	"has":    hasFunc,
	"length": lengthFunc,
}

// New creates a new expression evaluator.
func New() *Evaluator {
	return &Evaluator{
		cache: make(map[cacheKey]*Program),
	}
}

// Compile compiles an expression returning any value.
//
// Example:
//
//	prog, err := eval.Compile(`{"id": params.id, "method": method}`)
func (e *Evaluator) Compile(source string) (*Program, error) {
	return e.compile(source, false)
}

// CompileBool compiles an expression that must return a boolean.
//
// Example:
//
//	prog, err := eval.CompileBool(`headers["X-Tenant"] == "acme"`)
func (e *Evaluator) CompileBool(source string) (*Program, error) {
	return e.compile(source, true)
}

func (e *Evaluator) compile(source string, boolean bool) (*Program, error) {
	if source == "" {
		return nil, &errors.ValidationError{
			Field:   "expression",
			Message: "expression is empty",
		}
	}

	key := cacheKey{source: source, boolean: boolean}

	// Check cache first (read lock)
	e.mu.RLock()
	if prog, ok := e.cache[key]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	opts := []expr.Option{
		expr.Env(builtins),
		// Request fields are supplied at runtime
		expr.AllowUndefinedVariables(),
	}
	if boolean {
		opts = append(opts, expr.AsBool())
	}

	compiled, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("failed to compile expression: %s", err.Error()),
			Suggestion: "check expression syntax; available variables are method, path, params, query, headers and body",
		}
	}

	prog := &Program{source: source, program: compiled, boolean: boolean}

	e.mu.Lock()
	e.cache[key] = prog
	e.mu.Unlock()

	return prog, nil
}

// Run evaluates prog against env.
func (e *Evaluator) Run(prog *Program, env map[string]any) (any, error) {
	runEnv := make(map[string]any, len(env)+len(builtins))
	maps.Copy(runEnv, env)
	maps.Copy(runEnv, builtins)

	result, err := expr.Run(prog.program, runEnv)
	if err != nil {
		return nil, &errors.ValidationError{
			Field:   "expression",
			Message: fmt.Sprintf("expression evaluation failed: %s", err.Error()),
		}
	}
	return result, nil
}

// Evaluate runs a boolean program against env.
func (e *Evaluator) Evaluate(prog *Program, env map[string]any) (bool, error) {
	result, err := e.Run(prog, env)
	if err != nil {
		return false, err
	}
	b, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "expression",
			Message:    fmt.Sprintf("expression must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}
	return b, nil
}

// CacheSize returns the number of cached programs.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
