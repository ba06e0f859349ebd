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
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/tombee/addonhost/internal/controller/httputil"
	"github.com/tombee/addonhost/internal/registry"
)

// HealthResponse is the response format for /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// handleHealth handles GET /health.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	uptime := time.Since(r.started)

	checks := map[string]string{
		"api":     "ok",
		"runtime": runtime.Version(),
		"modules": formatModuleStatus(r.config.Lifecycle.Modules()),
		"routes":  fmt.Sprintf("%d live", len(r.config.Lifecycle.Routes())),
	}

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    uptime.Round(time.Second).String(),
		Checks:    checks,
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// formatModuleStatus formats registry status for display.
func formatModuleStatus(records []*registry.Record) string {
	if len(records) == 0 {
		return "none"
	}
	enabled := 0
	for _, rec := range records {
		if rec.Status == registry.StatusEnabled {
			enabled++
		}
	}
	return fmt.Sprintf("%d/%d enabled", enabled, len(records))
}
