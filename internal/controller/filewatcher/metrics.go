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

package filewatcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// fileWatcherEvents tracks file events seen under the addon tree
	fileWatcherEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonhost_filewatcher_events_total",
			Help: "Total file watcher events by event type",
		},
		[]string{"event_type"},
	)

	// fileWatcherReloads tracks lifecycle calls issued by the watcher
	fileWatcherReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonhost_filewatcher_reloads_total",
			Help: "Total module reloads triggered by file changes, by action and result",
		},
		[]string{"action", "result"},
	)

	// fileWatcherErrors tracks errors during event processing
	fileWatcherErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addonhost_filewatcher_errors_total",
			Help: "Total file watcher errors by error type",
		},
		[]string{"error_type"},
	)

	// fileWatcherPatternExcluded tracks pattern-excluded events
	fileWatcherPatternExcluded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "addonhost_filewatcher_pattern_excluded_total",
			Help: "Total file events ignored by exclude patterns",
		},
	)
)

func recordEvent(eventType string) {
	fileWatcherEvents.WithLabelValues(eventType).Inc()
}

func recordReload(action string, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	fileWatcherReloads.WithLabelValues(action, result).Inc()
}

func recordError(errorType string) {
	fileWatcherErrors.WithLabelValues(errorType).Inc()
}

func recordPatternExcluded() {
	fileWatcherPatternExcluded.Inc()
}
