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

package api

import (
	"bytes"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/tombee/addonhost/internal/log"
)

var pages = template.Must(template.New("pages").Parse(`
{{define "root"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.3/dist/css/bootstrap.min.css">
</head>
<body class="bg-light">
  <div class="container py-5">
    <h1 class="display-4 text-center mb-3">{{.Title}}</h1>
    <p class="lead text-center mb-5">{{.Modules}} modules, {{.Routes}} live routes.</p>
    <div class="row">
      <div class="col-md-6 text-center mb-3">
        <a href="/docs" class="btn btn-primary btn-lg">API Documentation</a>
      </div>
      <div class="col-md-6 text-center mb-3">
        <a href="/openapi.json" class="btn btn-secondary btn-lg">OpenAPI Schema</a>
      </div>
    </div>
  </div>
</body>
</html>
{{end}}
{{define "docs"}}<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}} - API Documentation</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({url: "/openapi.json", dom_id: "#swagger-ui"});
  </script>
</body>
</html>
{{end}}`))

type pageData struct {
	Title   string
	Modules int
	Routes  int
}

// handleRoot handles GET /.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	r.render(w, "root", pageData{
		Title:   r.config.Title,
		Modules: len(r.config.Lifecycle.Modules()),
		Routes:  len(r.config.Lifecycle.Routes()),
	})
}

// handleDocs handles GET /docs.
func (r *Router) handleDocs(w http.ResponseWriter, req *http.Request) {
	r.render(w, "docs", pageData{Title: r.config.Title})
}

func (r *Router) render(w http.ResponseWriter, name string, data pageData) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		r.logger.Error("failed to render page", slog.String("page", name), log.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
