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

package backend

import (
	"context"

	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/metrics"
)

// TaskDispatcher sends agent tasks to backends. Implementations may do
// network IO, so callers must never hold a table lock across a dispatch.
type TaskDispatcher interface {
	DispatchRollupTask(ctx context.Context, task *RollupTask) error
	DispatchClearAlterTask(ctx context.Context, task *ClearAlterTask) error
}

// Dispatcher routes tasks into the task table after a liveness check. The
// actual transport to a node is the agent report channel; a task sits in the
// table until the node's report flips it.
type Dispatcher struct {
	registry *Registry
	tasks    *TaskTable
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(registry *Registry, tasks *TaskTable) *Dispatcher {
	return &Dispatcher{registry: registry, tasks: tasks}
}

func (d *Dispatcher) checkAlive(backendID int64) error {
	b, err := d.registry.Get(backendID)
	if err != nil {
		return errors.Trace(err)
	}
	if !b.IsAlive() {
		return ErrBackendDown.GenWithStackByArgs(backendID)
	}
	return nil
}

// DispatchRollupTask implements TaskDispatcher.
func (d *Dispatcher) DispatchRollupTask(_ context.Context, task *RollupTask) error {
	if err := d.checkAlive(task.BackendID); err != nil {
		metrics.BackendTaskCounterVec.WithLabelValues(TaskRollup.String(), "dispatch_failed").Inc()
		return err
	}
	d.tasks.Add(&AgentTask{
		Type:      TaskRollup,
		JobID:     task.JobID,
		BackendID: task.BackendID,
		TabletID:  task.TabletID,
		ReplicaID: task.ReplicaID,
	})
	metrics.BackendTaskCounterVec.WithLabelValues(TaskRollup.String(), "sent").Inc()
	return nil
}

// DispatchClearAlterTask implements TaskDispatcher.
func (d *Dispatcher) DispatchClearAlterTask(_ context.Context, task *ClearAlterTask) error {
	if err := d.checkAlive(task.BackendID); err != nil {
		metrics.BackendTaskCounterVec.WithLabelValues(TaskClearAlter.String(), "dispatch_failed").Inc()
		return err
	}
	d.tasks.Add(&AgentTask{
		Type:      TaskClearAlter,
		JobID:     task.JobID,
		BackendID: task.BackendID,
		TabletID:  task.TabletID,
	})
	metrics.BackendTaskCounterVec.WithLabelValues(TaskClearAlter.String(), "sent").Inc()
	return nil
}
