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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tombee/addonhost/internal/config"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestCORS_Disabled(t *testing.T) {
	handler := CORS(CORSConfig{Enabled: false})(okHandler())

	req := httptest.NewRequest("GET", "/routes", nil)
	req.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Error("expected no CORS headers when disabled")
	}
}

func TestCORS_AllowedOrigin(t *testing.T) {
	handler := CORS(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost", "http://localhost:8080", "*.example.com"},
	})(okHandler())

	tests := []struct {
		name          string
		origin        string
		expectAllowed bool
	}{
		{
			name:          "exact match allowed",
			origin:        "http://localhost",
			expectAllowed: true,
		},
		{
			name:          "port must match",
			origin:        "http://localhost:3000",
			expectAllowed: false,
		},
		{
			name:          "subdomain matches wildcard",
			origin:        "https://app.example.com",
			expectAllowed: true,
		},
		{
			name:          "different domain not allowed",
			origin:        "https://example.org",
			expectAllowed: false,
		},
		{
			name:          "no origin header",
			origin:        "",
			expectAllowed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/routes", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			allowOrigin := rec.Header().Get("Access-Control-Allow-Origin")
			if tt.expectAllowed {
				if allowOrigin != tt.origin {
					t.Errorf("expected Allow-Origin %q, got %q", tt.origin, allowOrigin)
				}
			} else if allowOrigin != "" {
				t.Errorf("expected no Allow-Origin, got %q", allowOrigin)
			}
			if tt.origin != "" && rec.Header().Get("Vary") != "Origin" {
				t.Errorf("expected Vary: Origin, got %q", rec.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_PreflightEchoesRequest(t *testing.T) {
	called := false
	handler := CORS(CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{"*"},
		AllowCredentials: true,
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("OPTIONS", "/billing/invoices", nil)
	req.Header.Set("Origin", "http://localhost:8000")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	req.Header.Set("Access-Control-Request-Headers", "X-API-Key, Content-Type")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if called {
		t.Error("preflight must not reach the route table")
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected status 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "DELETE" {
		t.Errorf("expected Allow-Methods DELETE, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "X-API-Key, Content-Type" {
		t.Errorf("expected echoed Allow-Headers, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("expected default Max-Age 600, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("expected Allow-Credentials true, got %q", got)
	}
}

func TestCORS_PreflightFixedLists(t *testing.T) {
	handler := CORS(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"http://localhost"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         3600,
	})(okHandler())

	req := httptest.NewRequest("OPTIONS", "/routes", nil)
	req.Header.Set("Origin", "http://localhost")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST" {
		t.Errorf("expected Allow-Methods, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("expected Allow-Headers, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "3600" {
		t.Errorf("expected Max-Age 3600, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("expected no Allow-Credentials, got %q", got)
	}
}

func TestCORS_PlainOptionsPassesThrough(t *testing.T) {
	handler := CORS(CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}})(okHandler())

	req := httptest.NewRequest("OPTIONS", "/routes", nil)
	req.Header.Set("Origin", "http://localhost")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected the route to answer, got %d", rec.Code)
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.Default().CORS)

	if !cfg.Enabled {
		t.Error("expected CORS to be enabled by default")
	}
	if len(cfg.AllowedOrigins) != 3 {
		t.Errorf("expected 3 default origins, got %v", cfg.AllowedOrigins)
	}
	if !cfg.AllowCredentials {
		t.Error("expected credentials to be allowed by default")
	}
	if len(cfg.ExposedHeaders) == 0 {
		t.Error("expected default exposed headers")
	}
}
