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

package runloop

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// runloopRestarts tracks restarts triggered by changes
	runloopRestarts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rerun_restarts_total",
			Help: "Total restarts of the supervised command",
		},
	)

	// runloopLaunchFailures tracks launch failures by phase
	runloopLaunchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rerun_launch_failures_total",
			Help: "Total failed launches by phase (first, restart)",
		},
		[]string{"phase"},
	)

	// runloopRateLimited tracks restarts delayed by the restart limit
	runloopRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rerun_restarts_rate_limited_total",
			Help: "Total restarts delayed by the per-minute restart limit",
		},
	)

	// runloopGeneration tracks the current generation number
	runloopGeneration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rerun_generation",
			Help: "Generation number of the supervised command",
		},
	)
)
