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
	"sync"

	"github.com/stratumdb/stratum/pkg/meta/model"
)

// TaskType is the kind of an agent task.
type TaskType byte

// Task types.
const (
	// TaskRollup builds one rollup replica from its base tablet.
	TaskRollup TaskType = iota + 1
	// TaskClearAlter tells a backend to drop the alter scaffolding of a
	// finished or cancelled job.
	TaskClearAlter
)

// String implements fmt.Stringer interface.
func (t TaskType) String() string {
	switch t {
	case TaskRollup:
		return "rollup"
	case TaskClearAlter:
		return "clear_alter"
	}
	return "unknown"
}

// TaskStatus is the report state of an agent task.
type TaskStatus byte

// Task statuses.
const (
	// TaskStatusPending tasks were sent and not yet reported.
	TaskStatusPending TaskStatus = iota
	// TaskStatusSucceeded tasks reported success.
	TaskStatusSucceeded
	// TaskStatusFailed tasks reported failure; FailedTimes counts reports.
	TaskStatusFailed
	// TaskStatusAmbiguous responses are non-definitive (lost ack, unknown
	// tablet on the backend). Only clear tasks use it.
	TaskStatusAmbiguous
)

// String implements fmt.Stringer interface.
func (s TaskStatus) String() string {
	switch s {
	case TaskStatusPending:
		return "pending"
	case TaskStatusSucceeded:
		return "succeeded"
	case TaskStatusFailed:
		return "failed"
	case TaskStatusAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

// RollupTask describes one replica build.
type RollupTask struct {
	JobID          int64
	BackendID      int64
	TabletID       int64
	ReplicaID      int64
	BaseTabletID   int64
	SchemaHash     uint32
	BaseSchemaHash uint32
	Schema         []*model.ColumnInfo
}

// ClearAlterTask releases a backend's alter scaffolding for one tablet.
type ClearAlterTask struct {
	JobID      int64
	BackendID  int64
	TabletID   int64
	SchemaHash uint32
}

// AgentTask is one tracked task instance.
type AgentTask struct {
	Type        TaskType
	JobID       int64
	BackendID   int64
	TabletID    int64
	ReplicaID   int64
	Status      TaskStatus
	FailedTimes int
	ErrMsg      string
	// SendCount counts dispatches including resends.
	SendCount int
}

type taskKey struct {
	typ       TaskType
	backendID int64
	tabletID  int64
}

// TaskTable tracks in-flight agent tasks. Dispatchers add entries, report
// handling flips their status, and the job driver polls them. All methods are
// safe for concurrent use and none blocks on the network.
type TaskTable struct {
	mu    sync.Mutex
	tasks map[taskKey]*AgentTask
}

// NewTaskTable creates an empty table.
func NewTaskTable() *TaskTable {
	return &TaskTable{tasks: make(map[taskKey]*AgentTask)}
}

// Add registers a task. Re-adding the same (type, backend, tablet) keeps the
// existing entry and bumps its send count, so resends do not reset progress.
func (tt *TaskTable) Add(task *AgentTask) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	key := taskKey{task.Type, task.BackendID, task.TabletID}
	if old, ok := tt.tasks[key]; ok {
		old.SendCount++
		return
	}
	task.SendCount = 1
	tt.tasks[key] = task
}

// ReportSuccess marks a task succeeded.
func (tt *TaskTable) ReportSuccess(typ TaskType, backendID, tabletID int64) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if task, ok := tt.tasks[taskKey{typ, backendID, tabletID}]; ok {
		task.Status = TaskStatusSucceeded
	}
}

// ReportFailure marks a task failed and counts the failure.
func (tt *TaskTable) ReportFailure(typ TaskType, backendID, tabletID int64, errMsg string) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if task, ok := tt.tasks[taskKey{typ, backendID, tabletID}]; ok {
		task.Status = TaskStatusFailed
		task.FailedTimes++
		task.ErrMsg = errMsg
	}
}

// ReportAmbiguous marks a clear task's response non-definitive.
func (tt *TaskTable) ReportAmbiguous(typ TaskType, backendID, tabletID int64) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	if task, ok := tt.tasks[taskKey{typ, backendID, tabletID}]; ok {
		task.Status = TaskStatusAmbiguous
	}
}

// Get returns a copy of one task.
func (tt *TaskTable) Get(typ TaskType, backendID, tabletID int64) (AgentTask, bool) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	task, ok := tt.tasks[taskKey{typ, backendID, tabletID}]
	if !ok {
		return AgentTask{}, false
	}
	return *task, true
}

// TasksOfJob snapshots every task of one job and type.
func (tt *TaskTable) TasksOfJob(jobID int64, typ TaskType) []AgentTask {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	var tasks []AgentTask
	for _, task := range tt.tasks {
		if task.JobID == jobID && task.Type == typ {
			tasks = append(tasks, *task)
		}
	}
	return tasks
}

// RemoveJob drops every task of a job, called when the job turns terminal.
func (tt *TaskTable) RemoveJob(jobID int64) {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	for key, task := range tt.tasks {
		if task.JobID == jobID {
			delete(tt.tasks, key)
		}
	}
}

// Len returns the number of tracked tasks.
func (tt *TaskTable) Len() int {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	return len(tt.tasks)
}
