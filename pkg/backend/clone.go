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

	"github.com/stratumdb/stratum/pkg/meta/model"
)

// CloneRequest asks a storage node to bootstrap or repair one replica from a
// peer. With MissingVersions set the node fetches only those deltas
// (incremental clone); otherwise it snapshots the whole tablet.
type CloneRequest struct {
	TabletID          int64
	TargetVersion     int64
	TargetVersionHash uint64
	SrcBackendID      int64
	MissingVersions   []int64
	AllowIncremental  bool
}

// CloneResult is the node's terminal answer.
type CloneResult struct {
	Status  TaskStatus
	Replica model.ReplicaInfo
	ErrMsg  string
}

// CloneExecutor runs on storage nodes; the control plane only prepares the
// request and consumes the result.
type CloneExecutor interface {
	Clone(ctx context.Context, req *CloneRequest) (*CloneResult, error)
}

// ChooseCloneMode decides incremental versus full clone for a replica that
// must reach targetVersion. Incremental needs the local version range to be
// contiguous with the target: some local data, no recorded failure gap, and
// the target strictly ahead. The returned missing versions are what the node
// fetches from the source.
func ChooseCloneMode(local *model.ReplicaInfo, targetVersion int64) (missing []int64, incremental bool) {
	if local == nil || local.Version < model.PartitionInitVersion {
		return nil, false
	}
	if local.LastFailedVersion > 0 {
		// Versions after the failure cannot be trusted contiguous.
		return nil, false
	}
	if local.Version >= targetVersion {
		return nil, false
	}
	missing = make([]int64, 0, targetVersion-local.Version)
	for v := local.Version + 1; v <= targetVersion; v++ {
		missing = append(missing, v)
	}
	return missing, true
}
