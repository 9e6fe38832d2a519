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

package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// monitorEvents tracks qualifying filesystem changes
	monitorEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerun_monitor_events_total",
			Help: "Total qualifying filesystem changes by type",
		},
		[]string{"event_type"},
	)

	// monitorExcluded tracks events dropped by include/exclude patterns
	monitorExcluded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rerun_monitor_pattern_excluded_total",
			Help: "Total filesystem events excluded by patterns",
		},
	)

	// monitorDropped tracks changes dropped because one was already queued
	monitorDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rerun_monitor_dropped_total",
			Help: "Total changes dropped because the queue was full",
		},
	)

	// monitorErrors tracks watcher errors
	monitorErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerun_monitor_errors_total",
			Help: "Total change monitor errors by type",
		},
		[]string{"error_type"},
	)

	// monitorWatchedDirs tracks directories registered with the OS
	monitorWatchedDirs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rerun_monitor_watched_directories",
			Help: "Number of directories currently watched",
		},
	)
)

// recordEvent increments the event counter
func recordEvent(op Op) {
	monitorEvents.WithLabelValues(string(op)).Inc()
}

// recordError increments the error counter
func recordError(errorType string) {
	monitorErrors.WithLabelValues(errorType).Inc()
}
