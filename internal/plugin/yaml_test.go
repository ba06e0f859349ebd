package plugin

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hosterrors "github.com/tombee/addonhost/pkg/errors"
	"github.com/tombee/addonhost/sdk"
)

func writeUnit(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "api.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// serve mounts every route of the unit on a mux the way the route table does.
func serve(t *testing.T, router *sdk.Router, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	for _, rt := range router.Routes {
		methods, err := sdk.NewMethodSet(rt.Methods...)
		require.NoError(t, err)
		for _, m := range methods {
			mux.Handle(string(m)+" "+sdk.JoinPath(router.Prefix, rt.Path), rt.Handler)
		}
	}
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestYAMLLoaderUnit(t *testing.T) {
	path := writeUnit(t, `
prefix: /billing
tags: [billing]
dependencies:
  - kind: api_key
    options:
      header: X-API-Key
routes:
  - name: get_invoice
    path: /invoice/{id}
    summary: Fetch one invoice
    response: '{"id": params.id, "status": "open"}'
  - name: list_invoices
    path: /invoices
    body:
      invoices: [1, 2]
  - name: echo_invoice
    path: /invoice
    methods: [post]
    status: 201
    jq: '.body | {total: (.lines | map(.amount) | add)}'
  - name: ping
    path: /ping
    headers:
      Cache-Control: no-store
`)

	unit, err := NewYAMLLoader(nil, nil).Load(path)
	require.NoError(t, err)
	require.NotNil(t, unit.Router)
	assert.Equal(t, "/billing", unit.Router.Prefix)
	assert.Equal(t, []string{"billing"}, unit.Router.Tags)
	require.Len(t, unit.Dependencies, 1)
	assert.Equal(t, "api_key", unit.Dependencies[0].Kind)
	require.Len(t, unit.Router.Routes, 4)
	assert.Equal(t, "Fetch one invoice", unit.Router.Routes[0].Summary)

	w := serve(t, unit.Router, http.MethodGet, "/billing/invoice/42", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id": "42", "status": "open"}`, w.Body.String())

	w = serve(t, unit.Router, http.MethodGet, "/billing/invoices", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"invoices": [1, 2]}`, w.Body.String())

	w = serve(t, unit.Router, http.MethodPost, "/billing/invoice", `{"lines": [{"amount": 2}, {"amount": 3}]}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, float64(5), out["total"])

	w = serve(t, unit.Router, http.MethodGet, "/billing/ping", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestYAMLLoaderMissingSymbols(t *testing.T) {
	tests := []struct {
		name       string
		content    string
		wantRouter bool
		wantDeps   bool
	}{
		{name: "empty file", content: ""},
		{name: "routes only", content: "routes: []\n", wantRouter: true},
		{name: "dependencies only", content: "dependencies: []\n", wantDeps: true},
		{name: "both empty", content: "dependencies: []\nroutes: []\n", wantRouter: true, wantDeps: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit, err := NewYAMLLoader(nil, nil).Load(writeUnit(t, tt.content))
			require.NoError(t, err)
			assert.Equal(t, tt.wantRouter, unit.Router != nil)
			assert.Equal(t, tt.wantDeps, unit.Dependencies != nil)
		})
	}
}

func TestYAMLLoaderErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "syntax", content: "routes: [\n"},
		{name: "unknown key", content: "routes: []\nrouters: []\n"},
		{name: "route without name", content: "routes:\n  - path: /x\n"},
		{name: "dependency without kind", content: "dependencies:\n  - name: x\nroutes: []\n"},
		{name: "two responders", content: "routes:\n  - name: x\n    path: /x\n    body: 1\n    jq: .\n"},
		{name: "bad expression", content: "routes:\n  - name: x\n    path: /x\n    response: '1 +'\n"},
		{name: "bad jq", content: "routes:\n  - name: x\n    path: /x\n    jq: '.['\n"},
		{name: "bad status", content: "routes:\n  - name: x\n    path: /x\n    status: 700\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeUnit(t, tt.content)
			_, err := NewYAMLLoader(nil, nil).Load(path)

			var loadErr *hosterrors.LoadError
			require.True(t, errors.As(err, &loadErr), "got %v", err)
			assert.Equal(t, path, loadErr.Path)
		})
	}
}

func TestYAMLLoaderRuntimeFailure(t *testing.T) {
	unit, err := NewYAMLLoader(nil, nil).Load(writeUnit(t, `
routes:
  - name: boom
    path: /boom
    response: 'length(42)'
`))
	require.NoError(t, err)

	w := serve(t, unit.Router, http.MethodGet, "/boom", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}
