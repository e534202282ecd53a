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

// Version watermark of an empty partition. Replicas created by an alter job
// are pinned to it so the build starts from the partition's first visible
// version.
const (
	PartitionInitVersion     int64  = 1
	PartitionInitVersionHash uint64 = 0
)

// ReplicaInfo is the serializable form of one tablet copy.
type ReplicaInfo struct {
	ID                int64        `json:"id"`
	BackendID         int64        `json:"backend_id"`
	State             ReplicaState `json:"state"`
	Version           int64        `json:"version"`
	VersionHash       uint64       `json:"version_hash"`
	SchemaHash        uint32       `json:"schema_hash"`
	LastFailedVersion int64        `json:"last_failed_version"`
}

// DropIndexInfo is the payload of a drop-rollup log record.
type DropIndexInfo struct {
	DBID    int64 `json:"db_id"`
	TableID int64 `json:"table_id"`
	IndexID int64 `json:"index_id"`
}
