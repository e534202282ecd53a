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

// Label constants.
const (
	LblState  = "state"
	LblResult = "result"
	LblType   = "type"
	LblOp     = "op"
)

// NewGaugeVec creates a new prometheus GaugeVec.
func NewGaugeVec(opts prometheus.GaugeOpts, labelNames []string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(opts, labelNames)
}

// NewCounterVec creates a new prometheus CounterVec.
func NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(opts, labelNames)
}

// NewHistogram creates a new prometheus Histogram.
func NewHistogram(opts prometheus.HistogramOpts) prometheus.Histogram {
	return prometheus.NewHistogram(opts)
}

func init() {
	InitMetrics()
}

// InitMetrics builds every metric variable. It runs at import time so the
// variables are usable from tests without a registry.
func InitMetrics() {
	InitDDLMetrics()
	InitEditLogMetrics()
}

// RegisterMetrics registers the metrics with the given registry. The server
// calls it once at bootstrap.
func RegisterMetrics(r prometheus.Registerer) {
	r.MustRegister(DDLJobGaugeVec)
	r.MustRegister(DDLJobTerminalCounterVec)
	r.MustRegister(DDLWorkerTickDuration)
	r.MustRegister(BackendTaskCounterVec)
	r.MustRegister(EditLogWriteCounter)
}
