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

package catalog

import (
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/util/intest"
)

// Replica is one copy of a tablet on a backend.
type Replica struct {
	ID                int64
	BackendID         int64
	State             model.ReplicaState
	Version           int64
	VersionHash       uint64
	SchemaHash        uint32
	LastFailedVersion int64
}

// Info returns the serializable form.
func (r *Replica) Info() model.ReplicaInfo {
	return model.ReplicaInfo{
		ID:                r.ID,
		BackendID:         r.BackendID,
		State:             r.State,
		Version:           r.Version,
		VersionHash:       r.VersionHash,
		SchemaHash:        r.SchemaHash,
		LastFailedVersion: r.LastFailedVersion,
	}
}

// Tablet is a horizontal shard of one materialized index, replicated across
// backends.
type Tablet struct {
	ID       int64
	Replicas []*Replica
}

// AddReplica appends a replica. Replicas are unique by backend; a duplicate
// returns ErrReplicaOnBackendExists.
func (t *Tablet) AddReplica(r *Replica) error {
	for _, old := range t.Replicas {
		if old.BackendID == r.BackendID {
			return ErrReplicaOnBackendExists.GenWithStackByArgs(t.ID, r.BackendID)
		}
	}
	t.Replicas = append(t.Replicas, r)
	return nil
}

// GetReplicaOnBackend returns the replica on one backend, nil if absent.
func (t *Tablet) GetReplicaOnBackend(backendID int64) *Replica {
	for _, r := range t.Replicas {
		if r.BackendID == backendID {
			return r
		}
	}
	return nil
}

// MaterializedIndex is the per-partition instantiation of one index id: a set
// of tablets holding the index's data for that partition.
type MaterializedIndex struct {
	ID      int64
	State   model.IndexState
	Tablets []*Tablet
}

// AddTablet appends a tablet.
func (mi *MaterializedIndex) AddTablet(t *Tablet) {
	mi.Tablets = append(mi.Tablets, t)
}

// GetTablet returns a tablet by id, nil if absent.
func (mi *MaterializedIndex) GetTablet(id int64) *Tablet {
	for _, t := range mi.Tablets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// Partition owns one MaterializedIndex per index id.
type Partition struct {
	ID            int64
	Name          model.CIStr
	StorageMedium model.StorageMedium
	// VisibleVersion is the partition's publish watermark; a fresh
	// partition starts at model.PartitionInitVersion.
	VisibleVersion     int64
	VisibleVersionHash uint64
	Indexes            map[int64]*MaterializedIndex
}

// NewPartition creates a partition at the initial version with no indexes.
func NewPartition(id int64, name model.CIStr, medium model.StorageMedium) *Partition {
	return &Partition{
		ID:                 id,
		Name:               name,
		StorageMedium:      medium,
		VisibleVersion:     model.PartitionInitVersion,
		VisibleVersionHash: model.PartitionInitVersionHash,
		Indexes:            make(map[int64]*MaterializedIndex),
	}
}

// AddIndex binds a materialized index to the partition.
func (p *Partition) AddIndex(mi *MaterializedIndex) {
	intest.Assert(p.Indexes[mi.ID] == nil, "index %d already in partition %d", mi.ID, p.ID)
	p.Indexes[mi.ID] = mi
}

// DeleteIndex unbinds an index id. Unknown ids are a no-op.
func (p *Partition) DeleteIndex(indexID int64) {
	delete(p.Indexes, indexID)
}

// GetIndex returns the materialized index for an index id, nil if absent.
func (p *Partition) GetIndex(indexID int64) *MaterializedIndex {
	return p.Indexes[indexID]
}

// IndexMeta is the table-level description of one index: its name, schema
// and derived physical attributes shared by every partition's instantiation.
type IndexMeta struct {
	ID                  int64
	Name                model.CIStr
	Schema              []*model.ColumnInfo
	SchemaHash          uint32
	ShortKeyColumnCount int
}
