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
	"context"
	"testing"

	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stretchr/testify/require"
)

// replayFrom builds a fresh environment holding the same fixture table and
// replays src's captured log into it, the way a restart would.
func replayFrom(t *testing.T, src *testEnv, keysType model.KeysType, forCheckpoint bool) *testEnv {
	dst := newTestEnv(t, keysType)
	require.NoError(t, src.editLog.replayInto(dst.d.Replayer(forCheckpoint)))
	return dst
}

// replicaShape flattens one rollup index's catalog state for comparison.
type replicaShape struct {
	partitionID int64
	tabletID    int64
	backendID   int64
	state       model.ReplicaState
	version     int64
}

func rollupShape(tbl *catalog.Table, indexID int64) []replicaShape {
	var shape []replicaShape
	for _, p := range tbl.Partitions {
		mi := p.GetIndex(indexID)
		if mi == nil {
			continue
		}
		for _, tab := range mi.Tablets {
			for _, r := range tab.Replicas {
				shape = append(shape, replicaShape{
					partitionID: p.ID,
					tabletID:    tab.ID,
					backendID:   r.BackendID,
					state:       r.State,
					version:     r.Version,
				})
			}
		}
	}
	return shape
}

func TestReplayPendingJob(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	j := src.addRollup(t, "r1", []string{"k1", "k2", "k3", "v1"})

	dst := replayFrom(t, src, model.DuplicateKeys, false)

	rj := dst.liveJob(t)
	require.Equal(t, j.JobID(), rj.JobID())
	require.Equal(t, model.JobStatePending, rj.State())

	// The shadow skeleton came back with the recorded ids, and the restart
	// sees the identical catalog shape the original instance had.
	srcTbl, dstTbl := src.table(t), dst.table(t)
	require.Equal(t, model.TableStateRollup, dstTbl.State)
	require.Equal(t,
		rollupShape(srcTbl, j.info.RollupIndexID),
		rollupShape(dstTbl, j.info.RollupIndexID))
	for _, p := range dstTbl.Partitions {
		require.Equal(t, model.IndexStateShadow, p.GetIndex(j.info.RollupIndexID).State)
	}
	require.Equal(t,
		src.catalog.TabletIndex().TabletIDsOfIndex(j.info.RollupIndexID),
		dst.catalog.TabletIndex().TabletIDsOfIndex(j.info.RollupIndexID))

	// The replayed batch bound keeps new ids above every recorded one.
	id, err := dst.alloc.Next()
	require.NoError(t, err)
	require.Greater(t, id, j.info.RollupIndexID)

	// The replayed job is runnable: a tick dispatches its builds.
	dst.tick(rj)
	require.Equal(t, model.JobStateRunning, rj.State())
}

func TestReplayRunningJob(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	j := src.addRollup(t, "r1", []string{"k1", "k2", "k3"})
	src.tick(j)
	require.Equal(t, model.JobStateRunning, j.State())

	dst := replayFrom(t, src, model.DuplicateKeys, false)
	rj := dst.liveJob(t)
	require.Equal(t, model.JobStateRunning, rj.State())
	require.Equal(t, model.TableStateRollup, dst.table(t).State)

	// No tasks are tracked after a restart; the driver resends the builds
	// and the job finishes as if nothing happened.
	dst.tick(rj)
	dst.reportRollupSuccess(rj.JobID())
	dst.tick(rj)
	require.Equal(t, model.JobStateFinishing, rj.State())
}

func TestReplayFinishedJob(t *testing.T) {
	src := newTestEnv(t, model.AggregateKeys)
	j := src.addRollup(t, "daily", []string{"k1", "k2", "k3", "v1"})
	src.driveToFinished(t, j)

	dst := replayFrom(t, src, model.AggregateKeys, false)

	srcTbl, dstTbl := src.table(t), dst.table(t)
	require.Equal(t, model.TableStateNormal, dstTbl.State)
	id, ok := dstTbl.IndexIDByName("daily")
	require.True(t, ok)
	require.Equal(t, j.info.RollupIndexID, id)
	require.Equal(t, j.info.RollupSchemaHash, dstTbl.IndexMetas[id].SchemaHash)

	// Same visible shape: NORMAL replicas pinned at each partition's
	// watermark, exactly as on the instance that ran the job.
	require.Equal(t, rollupShape(srcTbl, id), rollupShape(dstTbl, id))
	for _, p := range dstTbl.Partitions {
		require.Equal(t, model.IndexStateNormal, p.GetIndex(id).State)
	}

	// The job is history, not live, and keeps its watershed.
	_, live := dst.d.runningJobs.liveOnTable(testTableID)
	require.False(t, live)
	got, ok := dst.d.runningJobs.get(j.JobID())
	require.True(t, ok)
	require.Equal(t, model.JobStateFinished, got.State())
	require.Equal(t, j.watershed(), got.(*rollupJob).watershed())
}

func TestReplayCancelledJob(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	j := src.addRollup(t, "r1", []string{"k1", "k2", "k3"})
	src.tick(j)
	j.cancelWithReason(context.Background(), src.d.ddlCtx, "replica build failed")

	dst := replayFrom(t, src, model.DuplicateKeys, false)

	dstTbl := dst.table(t)
	require.Equal(t, model.TableStateNormal, dstTbl.State)
	for _, p := range dstTbl.Partitions {
		require.Nil(t, p.GetIndex(j.info.RollupIndexID))
	}
	require.Empty(t, dst.catalog.TabletIndex().TabletIDsOfIndex(j.info.RollupIndexID))
	_, visible := dstTbl.IndexIDByName("r1")
	require.False(t, visible)

	_, live := dst.d.runningJobs.liveOnTable(testTableID)
	require.False(t, live)
	got, ok := dst.d.runningJobs.get(j.JobID())
	require.True(t, ok)
	require.Equal(t, model.JobStateCancelled, got.State())

	// The listing still shows the cancelled job with its reason.
	rows, err := dst.d.ListRollupJobs(context.Background(), "root", "db")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "replica build failed", rows[0].Msg)
}

// TestReplayTrimmedLog feeds only the terminal record of each job, the way a
// log trimmed behind a checkpoint opens.
func TestReplayTrimmedLog(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	finished := src.addRollup(t, "r1", []string{"k1", "k2", "k3", "v1"})
	src.driveToFinished(t, finished)
	cancelled := src.addRollup(t, "r2", []string{"k1", "k2", "k3"})
	require.NoError(t, cancelSales(src))

	dst := newTestEnv(t, model.DuplicateKeys)
	h := dst.d.Replayer(false)
	require.NoError(t, h.ReplayIDBatchEnd(cancelled.info.RollupIndexID+1))
	require.NoError(t, h.ReplayRollupJob(src.editLog.lastJobRec(finished.JobID())))
	require.NoError(t, h.ReplayRollupJob(src.editLog.lastJobRec(cancelled.JobID())))

	dstTbl := dst.table(t)
	require.Equal(t, model.TableStateNormal, dstTbl.State)

	// The finished job's index is fully visible even though its creation
	// record is gone.
	id, ok := dstTbl.IndexIDByName("r1")
	require.True(t, ok)
	for _, p := range dstTbl.Partitions {
		mi := p.GetIndex(id)
		require.NotNil(t, mi)
		require.Equal(t, model.IndexStateNormal, mi.State)
		for _, tab := range mi.Tablets {
			for _, r := range tab.Replicas {
				require.Equal(t, model.ReplicaStateNormal, r.State)
				require.Equal(t, p.VisibleVersion, r.Version)
			}
		}
	}

	// The cancelled job left no trace beyond its history entry.
	_, visible := dstTbl.IndexIDByName("r2")
	require.False(t, visible)
	for _, p := range dstTbl.Partitions {
		require.Nil(t, p.GetIndex(cancelled.info.RollupIndexID))
	}
	_, live := dst.d.runningJobs.liveOnTable(testTableID)
	require.False(t, live)
	rows, err := dst.d.ListRollupJobs(context.Background(), "root", "db")
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestReplayDropRollup(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	j := src.addRollup(t, "r1", []string{"k1", "k2", "k3"})
	src.driveToFinished(t, j)
	require.NoError(t, src.d.DropRollup(context.Background(), &DropRollupRequest{
		DBName: "db", TableName: "sales", RollupName: "r1",
	}))

	dst := replayFrom(t, src, model.DuplicateKeys, false)

	dstTbl := dst.table(t)
	_, visible := dstTbl.IndexIDByName("r1")
	require.False(t, visible)
	require.NotContains(t, dstTbl.IndexMetas, j.info.RollupIndexID)
	for _, p := range dstTbl.Partitions {
		require.Nil(t, p.GetIndex(j.info.RollupIndexID))
	}
	require.Empty(t, dst.catalog.TabletIndex().TabletIDsOfIndex(j.info.RollupIndexID))
}

// TestCheckpointReplaySkipsTabletLookup covers the checkpoint writer's image:
// the catalog tree is rebuilt but the global tablet lookup stays untouched.
func TestCheckpointReplaySkipsTabletLookup(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	j := src.addRollup(t, "r1", []string{"k1", "k2", "k3"})

	dst := replayFrom(t, src, model.DuplicateKeys, true)

	dstTbl := dst.table(t)
	require.Equal(t, model.TableStateRollup, dstTbl.State)
	for _, p := range dstTbl.Partitions {
		require.NotNil(t, p.GetIndex(j.info.RollupIndexID))
	}
	require.Zero(t, dst.catalog.TabletIndex().Len())
}

func TestReplayRejectsForeignJobType(t *testing.T) {
	src := newTestEnv(t, model.DuplicateKeys)
	j := src.addRollup(t, "r1", []string{"k1", "k2", "k3"})

	dst := newTestEnv(t, model.DuplicateKeys)
	require.NoError(t, dst.d.runningJobs.add(&stubJob{
		jobID: j.JobID(), dbID: testDBID, tableID: testTableID, state: model.JobStatePending,
	}))
	err := src.editLog.replayInto(dst.d.Replayer(false))
	require.ErrorContains(t, err, "unexpected job type")
}
