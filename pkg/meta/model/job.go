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

// RollupTabletInfo is one shadow tablet of a rollup under construction,
// bound to the base tablet it is derived from.
type RollupTabletInfo struct {
	ID           int64         `json:"id"`
	BaseTabletID int64         `json:"base_tablet_id"`
	Replicas     []ReplicaInfo `json:"replicas"`
}

// RollupPartitionInfo is the shadow skeleton of one partition: every rollup
// tablet allocated there with its replicas.
type RollupPartitionInfo struct {
	PartitionID int64               `json:"partition_id"`
	Tablets     []*RollupTabletInfo `json:"tablets"`
}

// RollupJobInfo is the serializable form of a rollup alter job. It is what
// the edit log records at creation and at every committed transition, and
// what replay reconstructs the job and its shadow skeleton from. Times are
// unix milliseconds.
type RollupJobInfo struct {
	JobID   int64 `json:"job_id"`
	DBID    int64 `json:"db_id"`
	TableID int64 `json:"table_id"`
	// TableName is carried for listing only; the ids are authoritative.
	TableName CIStr `json:"table_name"`

	BaseIndexID    int64  `json:"base_index_id"`
	BaseIndexName  CIStr  `json:"base_index_name"`
	BaseSchemaHash uint32 `json:"base_schema_hash"`

	RollupIndexID       int64         `json:"rollup_index_id"`
	RollupIndexName     CIStr         `json:"rollup_index_name"`
	RollupSchemaHash    uint32        `json:"rollup_schema_hash"`
	RollupSchema        []*ColumnInfo `json:"rollup_schema"`
	ShortKeyColumnCount int           `json:"short_key_column_count"`

	// Partitions is the allocated shadow skeleton, one entry per partition
	// of the table at allocation time.
	Partitions []*RollupPartitionInfo `json:"partitions"`

	State JobState `json:"state"`
	// Reason is the human readable cause of a cancellation.
	Reason string `json:"reason"`
	// ForceFinished marks a job finished after the clear-task resend budget
	// ran out with ambiguous responses.
	ForceFinished bool `json:"force_finished"`
	// WatershedTxnID is the transaction watermark captured when the last
	// replica reported success. The job finishes only after every
	// transaction at or below it has drained.
	WatershedTxnID int64 `json:"watershed_txn_id"`

	TimeoutMs    int64 `json:"timeout_ms"`
	CreateTimeMs int64 `json:"create_time_ms"`
	FinishTimeMs int64 `json:"finish_time_ms"`
}

// Clone deep copies the job info.
func (j *RollupJobInfo) Clone() *RollupJobInfo {
	nj := *j
	nj.RollupSchema = CloneColumns(j.RollupSchema)
	nj.Partitions = make([]*RollupPartitionInfo, 0, len(j.Partitions))
	for _, p := range j.Partitions {
		np := &RollupPartitionInfo{PartitionID: p.PartitionID}
		np.Tablets = make([]*RollupTabletInfo, 0, len(p.Tablets))
		for _, t := range p.Tablets {
			nt := *t
			nt.Replicas = append([]ReplicaInfo(nil), t.Replicas...)
			np.Tablets = append(np.Tablets, &nt)
		}
		nj.Partitions = append(nj.Partitions, np)
	}
	return &nj
}

// Partition returns the shadow skeleton of one partition, nil if absent.
func (j *RollupJobInfo) Partition(partitionID int64) *RollupPartitionInfo {
	for _, p := range j.Partitions {
		if p.PartitionID == partitionID {
			return p
		}
	}
	return nil
}

// TabletIDMap returns base tablet id to rollup tablet id for one partition.
func (j *RollupJobInfo) TabletIDMap(partitionID int64) map[int64]int64 {
	p := j.Partition(partitionID)
	if p == nil {
		return nil
	}
	m := make(map[int64]int64, len(p.Tablets))
	for _, t := range p.Tablets {
		m[t.BaseTabletID] = t.ID
	}
	return m
}

// TotalReplicas counts every allocated shadow replica.
func (j *RollupJobInfo) TotalReplicas() int {
	n := 0
	for _, p := range j.Partitions {
		for _, t := range p.Tablets {
			n += len(t.Replicas)
		}
	}
	return n
}
