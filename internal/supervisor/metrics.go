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

package supervisor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// supervisorSpawns tracks watcher spawns by outcome
	supervisorSpawns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerun_supervisor_spawns_total",
			Help: "Total watcher spawns by outcome (launched, launch_failed, error)",
		},
		[]string{"outcome"},
	)

	// supervisorLaunchFailures tracks launch failures by errno name
	supervisorLaunchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerun_supervisor_launch_failures_total",
			Help: "Total target launch failures by error",
		},
		[]string{"errno"},
	)

	// supervisorAbortDuration tracks how long teardown of a generation takes
	supervisorAbortDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rerun_supervisor_abort_duration_seconds",
			Help:    "Time from abort request until the watcher was reaped",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2, 2.5, 5},
		},
	)

	// supervisorLiveWatchers tracks watchers that have not been reaped
	supervisorLiveWatchers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rerun_supervisor_live_watchers",
			Help: "Number of watcher processes started and not yet reaped",
		},
	)
)

// recordSpawn increments the spawn counter
func recordSpawn(outcome string) {
	supervisorSpawns.WithLabelValues(outcome).Inc()
}

// recordLaunchFailure increments the launch failure counter
func recordLaunchFailure(errno string) {
	supervisorLaunchFailures.WithLabelValues(errno).Inc()
}

// recordAbort observes the duration of an abort
func recordAbort(d time.Duration) {
	supervisorAbortDuration.Observe(d.Seconds())
}
