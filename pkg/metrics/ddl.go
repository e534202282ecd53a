// Copyright 2024 Stratum, Inc.
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

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics for the ddl package.
var (
	// DDLJobGaugeVec tracks live alter jobs by state.
	DDLJobGaugeVec *prometheus.GaugeVec
	// DDLJobTerminalCounterVec counts jobs reaching a terminal state by
	// outcome (finished, force_finished, cancelled).
	DDLJobTerminalCounterVec *prometheus.CounterVec
	// DDLWorkerTickDuration observes one full driver tick over all jobs.
	DDLWorkerTickDuration prometheus.Histogram
	// BackendTaskCounterVec counts tasks sent to backends by type and result.
	BackendTaskCounterVec *prometheus.CounterVec
)

// Terminal outcome label values.
const (
	JobOutcomeFinished      = "finished"
	JobOutcomeForceFinished = "force_finished"
	JobOutcomeCancelled     = "cancelled"
)

// InitDDLMetrics initializes metrics for the ddl package.
func InitDDLMetrics() {
	DDLJobGaugeVec = NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "stratum",
			Subsystem: "ddl",
			Name:      "running_jobs",
			Help:      "Number of live alter jobs by state.",
		}, []string{LblState})

	DDLJobTerminalCounterVec = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stratum",
			Subsystem: "ddl",
			Name:      "terminal_jobs_total",
			Help:      "Counter of alter jobs reaching a terminal state.",
		}, []string{LblResult})

	DDLWorkerTickDuration = NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "stratum",
			Subsystem: "ddl",
			Name:      "worker_tick_duration_seconds",
			Help:      "Bucketed histogram of one driver tick over all live jobs.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 20),
		})

	BackendTaskCounterVec = NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stratum",
			Subsystem: "ddl",
			Name:      "backend_task_total",
			Help:      "Counter of tasks sent to backends by type and result.",
		}, []string{LblType, LblResult})
}
