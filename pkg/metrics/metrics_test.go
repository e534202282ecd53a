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
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestRegisterMetrics(t *testing.T) {
	r := prometheus.NewRegistry()
	RegisterMetrics(r)

	DDLJobGaugeVec.WithLabelValues("RUNNING").Inc()
	DDLJobTerminalCounterVec.WithLabelValues(JobOutcomeFinished).Inc()
	DDLWorkerTickDuration.Observe(0.002)
	BackendTaskCounterVec.WithLabelValues("rollup", "success").Inc()
	EditLogWriteCounter.WithLabelValues("save_rollup_job").Inc()

	families, err := r.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"stratum_ddl_running_jobs",
		"stratum_ddl_terminal_jobs_total",
		"stratum_ddl_worker_tick_duration_seconds",
		"stratum_ddl_backend_task_total",
		"stratum_editlog_write_total",
	} {
		require.True(t, names[want], "metric %s not gathered", want)
	}
}
