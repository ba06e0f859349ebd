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

// Package middleware holds the HTTP middleware applied outside the route
// table, so it covers base routes and addon routes alike.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tombee/addonhost/internal/config"
)

// CORSConfig holds CORS middleware configuration.
type CORSConfig struct {
	// Enabled determines if CORS middleware is active
	Enabled bool

	// AllowedOrigins specifies which origins can make cross-origin requests.
	// "*" allows all origins and "*.example.com" allows subdomains.
	AllowedOrigins []string

	// AllowedMethods is sent on preflight. Empty allows every method the
	// client asks for.
	AllowedMethods []string

	// AllowedHeaders is sent on preflight. Empty echoes the headers the
	// client asks for.
	AllowedHeaders []string

	// ExposedHeaders can be read by the browser
	ExposedHeaders []string

	// MaxAge specifies how long (in seconds) preflight results can be cached
	MaxAge int

	// AllowCredentials indicates whether credentials (cookies, auth) can be sent
	AllowCredentials bool
}

// DefaultCORSConfig returns the defaults used for fields left empty.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
		MaxAge:           600,
		AllowCredentials: true,
	}
}

// FromConfig builds the middleware configuration from the host config.
func FromConfig(c config.CORSConfig) CORSConfig {
	cfg := DefaultCORSConfig()
	cfg.Enabled = c.Enabled
	cfg.AllowedOrigins = c.AllowedOrigins
	cfg.AllowCredentials = c.AllowCredentials
	return cfg
}

// CORS creates a CORS middleware with the given configuration.
// If config.Enabled is false, returns a no-op middleware.
func CORS(config CORSConfig) func(http.Handler) http.Handler {
	if !config.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	if config.MaxAge == 0 {
		config.MaxAge = DefaultCORSConfig().MaxAge
	}
	methods := strings.Join(config.AllowedMethods, ", ")
	headers := strings.Join(config.AllowedHeaders, ", ")
	exposed := strings.Join(config.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if !isOriginAllowed(origin, config.AllowedOrigins) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if config.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}

			// preflight
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				allowMethods := methods
				if allowMethods == "" {
					allowMethods = r.Header.Get("Access-Control-Request-Method")
				}
				allowHeaders := headers
				if allowHeaders == "" {
					allowHeaders = r.Header.Get("Access-Control-Request-Headers")
				}
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				if allowHeaders != "" {
					w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				}
				w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if exposed != "" {
				w.Header().Set("Access-Control-Expose-Headers", exposed)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed checks if the given origin is in the allowed list.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		// Support wildcard suffixes (e.g., "*.example.com")
		if suffix, ok := strings.CutPrefix(allowed, "*"); ok && strings.HasPrefix(suffix, ".") {
			if strings.HasSuffix(origin, suffix) {
				return true
			}
		}
	}
	return false
}
