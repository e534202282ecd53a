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

package model

// TableState is the structural-change state of a table. DDL handlers guard on
// it before admitting a new change.
type TableState byte

// Table states.
const (
	TableStateNormal TableState = iota
	TableStateRollup
	TableStateSchemaChange
)

// String implements fmt.Stringer interface.
func (s TableState) String() string {
	switch s {
	case TableStateNormal:
		return "NORMAL"
	case TableStateRollup:
		return "ROLLUP"
	case TableStateSchemaChange:
		return "SCHEMA_CHANGE"
	}
	return "unknown"
}

// IndexState is the visibility state of a materialized index.
type IndexState byte

// Index states.
const (
	// IndexStateNormal indexes serve queries.
	IndexStateNormal IndexState = iota
	// IndexStateShadow indexes are under construction and excluded from
	// query routing until their build job finishes.
	IndexStateShadow
)

// String implements fmt.Stringer interface.
func (s IndexState) String() string {
	switch s {
	case IndexStateShadow:
		return "SHADOW"
	default:
		return "NORMAL"
	}
}

// ReplicaState is the lifecycle state of one tablet copy on a backend.
type ReplicaState byte

// Replica states.
const (
	// ReplicaStateNormal replicas serve reads and report versions.
	ReplicaStateNormal ReplicaState = iota
	// ReplicaStateAlter replicas belong to an unfinished alter job and are
	// excluded from read and report paths.
	ReplicaStateAlter
	// ReplicaStateClone replicas are being bootstrapped or repaired from a
	// peer replica.
	ReplicaStateClone
	// ReplicaStateDecommission replicas are draining off their backend.
	ReplicaStateDecommission
)

// String implements fmt.Stringer interface.
func (s ReplicaState) String() string {
	switch s {
	case ReplicaStateAlter:
		return "ALTER"
	case ReplicaStateClone:
		return "CLONE"
	case ReplicaStateDecommission:
		return "DECOMMISSION"
	default:
		return "NORMAL"
	}
}

// JobState is the state of an alter job.
//
//	                ┌───────────┐
//	                │  pending  │
//	                └─────┬─────┘
//	                      │ build tasks dispatched
//	                      ▼
//	                ┌───────────┐
//	                │  running  │
//	                └─────┬─────┘
//	                      │ every replica built
//	                      ▼
//	                ┌───────────┐
//	                │ finishing │
//	                └─────┬─────┘
//	                      │ txn barrier drained, clear tasks acked
//	                      ▼
//	                ┌───────────┐
//	                │ finished  │
//	                └───────────┘
//
// pending, running and finishing may transition to cancelled at any tick on
// dispatch failure, replica failure, timeout or user cancel. finished and
// cancelled are terminal.
type JobState byte

// Job states.
const (
	JobStatePending JobState = iota + 1
	JobStateRunning
	JobStateFinishing
	JobStateFinished
	JobStateCancelled
)

// String implements fmt.Stringer interface.
func (s JobState) String() string {
	switch s {
	case JobStatePending:
		return "PENDING"
	case JobStateRunning:
		return "RUNNING"
	case JobStateFinishing:
		return "FINISHING"
	case JobStateFinished:
		return "FINISHED"
	case JobStateCancelled:
		return "CANCELLED"
	}
	return "unknown"
}

// IsTerminal reports whether the state accepts no further transitions.
func (s JobState) IsTerminal() bool {
	return s == JobStateFinished || s == JobStateCancelled
}
