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

package plugin

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tombee/addonhost/internal/controller/httputil"
	"github.com/tombee/addonhost/internal/expression"
	"github.com/tombee/addonhost/internal/jq"
	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

// YAMLLoader loads declarative route units.
//
// A unit file looks like:
//
//	prefix: /billing
//	tags: [billing]
//	dependencies:
//	  - kind: api_key
//	    options: {header: X-API-Key, keys_env: BILLING_KEYS}
//	routes:
//	  - name: get_invoice
//	    path: /invoice/{id}
//	    methods: [GET]
//	    response: '{"id": params.id, "status": "open"}'
//
// Each route answers with exactly one of a literal body, an expr
// expression (response) or a jq program (jq), all evaluated against the
// request environment built by expression.RequestEnv. Expressions are
// compiled when the unit loads.
type YAMLLoader struct {
	eval *expression.Evaluator
	jq   *jq.Executor
}

// NewYAMLLoader creates a declarative unit loader.
func NewYAMLLoader(eval *expression.Evaluator, jqExec *jq.Executor) *YAMLLoader {
	if eval == nil {
		eval = expression.New()
	}
	if jqExec == nil {
		jqExec = jq.NewExecutor(0, 0)
	}
	return &YAMLLoader{eval: eval, jq: jqExec}
}

// Extensions implements Loader.
func (l *YAMLLoader) Extensions() []string {
	return []string{".yaml", ".yml"}
}

// unitDocument uses pointers so a missing key can be told apart from an
// empty list.
type unitDocument struct {
	Prefix       string            `yaml:"prefix"`
	Tags         []string          `yaml:"tags"`
	Dependencies *[]sdk.Dependency `yaml:"dependencies"`
	Routes       *[]routeDocument  `yaml:"routes"`
}

type routeDocument struct {
	Name     string            `yaml:"name"`
	Path     string            `yaml:"path"`
	Methods  []string          `yaml:"methods"`
	Summary  string            `yaml:"summary"`
	Tags     []string          `yaml:"tags"`
	Status   int               `yaml:"status"`
	Headers  map[string]string `yaml:"headers"`
	Body     *yaml.Node        `yaml:"body"`
	Response string            `yaml:"response"`
	JQ       string            `yaml:"jq"`
}

// Load implements Loader.
func (l *YAMLLoader) Load(path string) (*sdk.Unit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &hosterrors.LoadError{Path: path, Reason: "cannot read unit", Cause: err}
	}

	var doc unitDocument
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &hosterrors.LoadError{Path: path, Reason: "invalid unit YAML", Cause: err}
	}

	unit := &sdk.Unit{}

	if doc.Dependencies != nil {
		unit.Dependencies = make([]sdk.Dependency, 0, len(*doc.Dependencies))
		for i, dep := range *doc.Dependencies {
			if dep.Kind == "" {
				return nil, &hosterrors.LoadError{Path: path, Reason: fmt.Sprintf("dependency %d has no kind", i)}
			}
			unit.Dependencies = append(unit.Dependencies, dep)
		}
	}

	if doc.Routes != nil {
		router := sdk.NewRouter(doc.Prefix, doc.Tags...)
		for i, rd := range *doc.Routes {
			if rd.Name == "" || rd.Path == "" {
				return nil, &hosterrors.LoadError{Path: path, Reason: fmt.Sprintf("route %d needs a name and a path", i)}
			}
			h, err := l.handler(rd)
			if err != nil {
				return nil, &hosterrors.LoadError{Path: path, Reason: fmt.Sprintf("route %q", rd.Name), Cause: err}
			}
			router.Routes = append(router.Routes, sdk.Route{
				Name:    rd.Name,
				Path:    rd.Path,
				Methods: rd.Methods,
				Summary: rd.Summary,
				Tags:    rd.Tags,
				Handler: h,
			})
		}
		unit.Router = router
	}

	return unit, nil
}

func (l *YAMLLoader) handler(rd routeDocument) (http.Handler, error) {
	set := 0
	for _, present := range []bool{rd.Body != nil, rd.Response != "", rd.JQ != ""} {
		if present {
			set++
		}
	}
	if set > 1 {
		return nil, errors.New("set at most one of body, response or jq")
	}

	status := rd.Status
	if status == 0 {
		status = http.StatusOK
		if set == 0 {
			status = http.StatusNoContent
		}
	}
	if status < 100 || status > 599 {
		return nil, fmt.Errorf("invalid status %d", status)
	}

	var produce func(r *http.Request) (any, error)

	switch {
	case rd.Body != nil:
		var v any
		if err := rd.Body.Decode(&v); err != nil {
			return nil, fmt.Errorf("invalid body: %w", err)
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("body is not JSON encodable: %w", err)
		}
		produce = func(*http.Request) (any, error) { return json.RawMessage(raw), nil }

	case rd.Response != "":
		prog, err := l.eval.Compile(rd.Response)
		if err != nil {
			return nil, err
		}
		produce = func(r *http.Request) (any, error) {
			env, err := expression.RequestEnv(r)
			if err != nil {
				return nil, err
			}
			return l.eval.Run(prog, env)
		}

	case rd.JQ != "":
		q, err := l.jq.Compile(rd.JQ)
		if err != nil {
			return nil, err
		}
		produce = func(r *http.Request) (any, error) {
			env, err := expression.RequestEnv(r)
			if err != nil {
				return nil, err
			}
			return l.jq.Run(r.Context(), q, env)
		}

	default:
		produce = func(*http.Request) (any, error) { return nil, nil }
	}

	headers := rd.Headers
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		out, err := produce(r)
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for k, v := range headers {
			w.Header().Set(k, v)
		}
		httputil.WriteJSON(w, status, out)
	}), nil
}
