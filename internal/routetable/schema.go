package routetable

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// openAPI is the subset of an OpenAPI 3.1 document the host publishes.
type openAPI struct {
	OpenAPI string                          `json:"openapi"`
	Info    openAPIInfo                     `json:"info"`
	Paths   map[string]map[string]operation `json:"paths"`
}

type openAPIInfo struct {
	Title   string `json:"title"`
	Version string `json:"version"`
}

type operation struct {
	OperationID string              `json:"operationId"`
	Summary     string              `json:"summary,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Parameters  []parameter         `json:"parameters,omitempty"`
	Responses   map[string]response `json:"responses"`
	Module      string              `json:"x-addon-module,omitempty"`
	Guards      []string            `json:"x-guards,omitempty"`
}

type parameter struct {
	Name     string            `json:"name"`
	In       string            `json:"in"`
	Required bool              `json:"required"`
	Schema   map[string]string `json:"schema"`
}

type response struct {
	Description string `json:"description"`
}

// Schema returns the OpenAPI document for the live bindings. It is built
// on first use and cached until the next mutation or InvalidateSchema.
func (t *Table) Schema() ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	t.schemaMu.Lock()
	defer t.schemaMu.Unlock()
	if t.schema != nil {
		return t.schema, nil
	}

	doc := openAPI{
		OpenAPI: "3.1.0",
		Info:    openAPIInfo{Title: t.info.Title, Version: t.info.Version},
		Paths:   make(map[string]map[string]operation),
	}
	for _, b := range t.bindings {
		path, params := openAPIPath(b.Path)
		item, ok := doc.Paths[path]
		if !ok {
			item = make(map[string]operation)
			doc.Paths[path] = item
		}
		for _, m := range b.Methods {
			key := strings.ToLower(string(m))
			if _, taken := item[key]; taken {
				// an earlier binding serves this method
				continue
			}
			item[key] = operation{
				OperationID: b.OperationID(),
				Summary:     b.Summary,
				Tags:        b.Tags,
				Parameters:  params,
				Responses:   map[string]response{"default": {Description: http.StatusText(http.StatusOK)}},
				Module:      b.Owner,
				Guards:      b.Guards,
			}
		}
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode API schema: %w", err)
	}
	t.schema = data
	return data, nil
}

// InvalidateSchema drops the cached schema.
func (t *Table) InvalidateSchema() {
	t.schemaMu.Lock()
	t.schema = nil
	t.schemaMu.Unlock()
}

// SchemaCached reports whether a schema is currently cached.
func (t *Table) SchemaCached() bool {
	t.schemaMu.Lock()
	defer t.schemaMu.Unlock()
	return t.schema != nil
}

// openAPIPath converts a ServeMux pattern path to an OpenAPI path and its
// path parameters.
func openAPIPath(pattern string) (string, []parameter) {
	segs := strings.Split(pattern, "/")
	var params []parameter
	out := segs[:0]
	for _, seg := range segs {
		if seg == "{$}" {
			seg = ""
		} else if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			name := strings.TrimSuffix(seg[1:len(seg)-1], "...")
			params = append(params, parameter{
				Name:     name,
				In:       "path",
				Required: true,
				Schema:   map[string]string{"type": "string"},
			})
			seg = "{" + name + "}"
		}
		out = append(out, seg)
	}
	path := strings.Join(out, "/")
	if path == "" {
		path = "/"
	}
	return path, params
}
