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

package ddl

import (
	"testing"

	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/meta/autoid"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stretchr/testify/require"
)

// fusedAlloc hands out sequential ids until the fuse burns through.
type fusedAlloc struct {
	next   int64
	calls  int
	failAt int
}

func (a *fusedAlloc) Next() (int64, error) {
	a.calls++
	if a.failAt > 0 && a.calls >= a.failAt {
		return 0, errors.New("id allocation failed")
	}
	a.next++
	return a.next, nil
}

func (a *fusedAlloc) ReplayBatchEnd(int64) {}

func builderFixture(t *testing.T) (*catalog.Table, *catalog.TabletInvertedIndex, *model.RollupJobInfo) {
	tbl := newTestTable(model.DuplicateKeys)
	inverted := catalog.NewTabletInvertedIndex()
	info := &model.RollupJobInfo{
		JobID:            1,
		TableID:          tbl.ID,
		RollupIndexID:    2,
		RollupIndexName:  model.NewCIStr("r1"),
		RollupSchemaHash: 4242,
	}
	return tbl, inverted, info
}

func TestBuildShadowIndexes(t *testing.T) {
	tbl, inverted, info := builderFixture(t)
	b := newIndexBuilder(autoid.NewAllocator(&memEditLog{}), inverted)
	require.NoError(t, b.buildShadowIndexes(tbl, info))

	require.Len(t, info.Partitions, 2)
	require.Equal(t, int64(20), info.Partitions[0].PartitionID)
	require.Len(t, info.Partitions[0].Tablets, 2)
	require.Equal(t, int64(21), info.Partitions[1].PartitionID)
	require.Len(t, info.Partitions[1].Tablets, 1)
	require.Equal(t, 9, info.TotalReplicas())

	for _, pinfo := range info.Partitions {
		p := tbl.GetPartition(pinfo.PartitionID)
		mi := p.GetIndex(info.RollupIndexID)
		require.NotNil(t, mi)
		require.Equal(t, model.IndexStateShadow, mi.State)
		require.Len(t, mi.Tablets, len(pinfo.Tablets))

		base := p.GetIndex(tbl.BaseIndexID)
		for i, tinfo := range pinfo.Tablets {
			// Fresh ids, bound to the base tablet they derive from.
			require.GreaterOrEqual(t, tinfo.ID, autoid.InitialID)
			require.Equal(t, base.Tablets[i].ID, tinfo.BaseTabletID)

			tab := mi.GetTablet(tinfo.ID)
			require.NotNil(t, tab)
			require.Len(t, tab.Replicas, 3)
			for _, r := range tab.Replicas {
				require.Equal(t, model.ReplicaStateAlter, r.State)
				require.Equal(t, model.PartitionInitVersion, r.Version)
				require.Equal(t, model.PartitionInitVersionHash, r.VersionHash)
				require.Equal(t, info.RollupSchemaHash, r.SchemaHash)
			}

			meta, ok := inverted.GetTabletMeta(tinfo.ID)
			require.True(t, ok)
			require.Equal(t, tbl.ID, meta.TableID)
			require.Equal(t, p.ID, meta.PartitionID)
			require.Equal(t, info.RollupIndexID, meta.IndexID)
			require.Equal(t, p.StorageMedium, meta.Medium)
		}
	}

	// The name stays hidden until the job finishes.
	_, visible := tbl.IndexIDByName("r1")
	require.False(t, visible)
}

func TestBuildSkipsIneligibleReplicas(t *testing.T) {
	tbl, inverted, info := builderFixture(t)
	base := tbl.GetPartition(20).GetIndex(tbl.BaseIndexID)
	// Tablet 100 loses backend 1 to a drain, tablet 101 loses backend 2 to a
	// version failure. Both keep a 2 of 3 quorum.
	base.GetTablet(100).GetReplicaOnBackend(1).State = model.ReplicaStateDecommission
	base.GetTablet(101).GetReplicaOnBackend(2).LastFailedVersion = 5

	b := newIndexBuilder(autoid.NewAllocator(&memEditLog{}), inverted)
	require.NoError(t, b.buildShadowIndexes(tbl, info))

	pinfo := info.Partitions[0]
	require.Len(t, pinfo.Tablets[0].Replicas, 2)
	require.Len(t, pinfo.Tablets[1].Replicas, 2)
	for _, r := range pinfo.Tablets[0].Replicas {
		require.NotEqual(t, int64(1), r.BackendID)
	}
	for _, r := range pinfo.Tablets[1].Replicas {
		require.NotEqual(t, int64(2), r.BackendID)
	}
}

func TestBuildQuorumFailureUnwinds(t *testing.T) {
	tbl, inverted, info := builderFixture(t)
	// Partition 21's only tablet keeps one eligible replica of three, short of
	// the 2 replica quorum. Partition 20 builds first and must be unwound.
	base := tbl.GetPartition(21).GetIndex(tbl.BaseIndexID)
	base.GetTablet(102).GetReplicaOnBackend(1).State = model.ReplicaStateClone
	base.GetTablet(102).GetReplicaOnBackend(2).LastFailedVersion = 3

	b := newIndexBuilder(autoid.NewAllocator(&memEditLog{}), inverted)
	err := b.buildShadowIndexes(tbl, info)
	require.True(t, ErrTabletFewReplicas.Equal(err))

	require.Nil(t, info.Partitions)
	for _, p := range tbl.Partitions {
		require.Nil(t, p.GetIndex(info.RollupIndexID))
	}
	require.Zero(t, inverted.Len())
}

func TestBuildAllocFailureUnwinds(t *testing.T) {
	tbl, inverted, info := builderFixture(t)
	// Partition 20 consumes eight ids (two tablets, three replicas each); the
	// ninth call fails while starting partition 21.
	alloc := &fusedAlloc{next: autoid.InitialID, failAt: 9}
	b := newIndexBuilder(alloc, inverted)
	err := b.buildShadowIndexes(tbl, info)
	require.Error(t, err)
	require.False(t, ErrTabletFewReplicas.Equal(err))

	require.Nil(t, info.Partitions)
	for _, p := range tbl.Partitions {
		require.Nil(t, p.GetIndex(info.RollupIndexID))
	}
	require.Zero(t, inverted.Len())
}
