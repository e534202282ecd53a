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
	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/ddl/logutil"
	"github.com/stratumdb/stratum/pkg/editlog"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"go.uber.org/zap"
)

// replayer rebuilds jobs and their catalog footprint from edit log records.
// Every record was written after its mutation committed, so replaying the log
// in order reproduces the structures the live path built, including the
// shadow skeletons of jobs that died mid flight. Replay runs single threaded
// before the driver starts.
type replayer struct {
	d *ddl
	// forCheckpoint skips global tablet lookup maintenance: a checkpoint
	// replays into a throwaway catalog image that does not carry the
	// lookup, it is rebuilt from backend reports on a real start.
	forCheckpoint bool
}

// Replayer implements DDL.Replayer interface.
func (d *ddl) Replayer(forCheckpoint bool) editlog.Handler {
	return &replayer{d: d, forCheckpoint: forCheckpoint}
}

// ReplayRollupJob implements editlog.Handler interface. The first record of a
// job id reproduces the creation effects; every later record reproduces one
// committed transition.
func (r *replayer) ReplayRollupJob(rec *model.RollupJobInfo) error {
	if existing, ok := r.d.runningJobs.get(rec.JobID); ok {
		j, isRollup := existing.(*rollupJob)
		if !isRollup {
			return errors.Errorf("replay job %d: unexpected job type %T", rec.JobID, existing)
		}
		return errors.Trace(r.replayTransition(j, rec))
	}
	return errors.Trace(r.replayCreation(rec))
}

func (r *replayer) replayCreation(rec *model.RollupJobInfo) error {
	d := r.d
	tbl, err := d.catalog.TableByID(rec.TableID)
	if err != nil {
		return errors.Trace(err)
	}

	tbl.Lock()
	defer tbl.Unlock()

	switch {
	case !rec.State.IsTerminal():
		if err := r.installShadow(tbl, rec); err != nil {
			return errors.Trace(err)
		}
		tbl.State = model.TableStateRollup
	case rec.State == model.JobStateFinished:
		// A log trimmed behind a checkpoint may open with a terminal
		// record; the visible index must still appear.
		if err := r.installShadow(tbl, rec); err != nil {
			return errors.Trace(err)
		}
		makeRollupVisible(tbl, rec)
	}
	if err := d.runningJobs.add(newRollupJob(rec)); err != nil {
		return errors.Trace(err)
	}
	logutil.DDLLogger().Debug("replayed rollup job",
		zap.Int64("jobID", rec.JobID),
		zap.Stringer("state", rec.State))
	return nil
}

func (r *replayer) replayTransition(j *rollupJob, rec *model.RollupJobInfo) error {
	d := r.d
	tbl, err := d.catalog.TableByID(rec.TableID)
	if err != nil {
		return errors.Trace(err)
	}

	tbl.Lock()
	defer tbl.Unlock()

	j.mu.Lock()
	j.info.State = rec.State
	j.info.WatershedTxnID = rec.WatershedTxnID
	j.info.Reason = rec.Reason
	j.info.ForceFinished = rec.ForceFinished
	j.info.FinishTimeMs = rec.FinishTimeMs
	j.mu.Unlock()

	switch rec.State {
	case model.JobStateFinished:
		makeRollupVisible(tbl, j.info)
		if !d.runningJobs.otherLiveOnTable(tbl.ID, j.info.JobID) {
			tbl.State = model.TableStateNormal
		}
		d.runningJobs.markDone(j)
	case model.JobStateCancelled:
		dropIndexFromPartitions(tbl, j.info.RollupIndexID, d.catalog.TabletIndex(), r.forCheckpoint)
		if !d.runningJobs.otherLiveOnTable(tbl.ID, j.info.JobID) {
			tbl.State = model.TableStateNormal
		}
		d.runningJobs.markDone(j)
	}
	logutil.DDLLogger().Debug("replayed rollup job transition",
		zap.Int64("jobID", rec.JobID),
		zap.Stringer("state", rec.State))
	return nil
}

// installShadow rebuilds the shadow index of every partition from the job's
// recorded skeleton, reusing the recorded ids. The caller holds the table's
// write lock.
func (r *replayer) installShadow(tbl *catalog.Table, info *model.RollupJobInfo) error {
	inverted := r.d.catalog.TabletIndex()
	for _, pinfo := range info.Partitions {
		p := tbl.GetPartition(pinfo.PartitionID)
		if p == nil {
			return errors.Errorf("replay rollup job %d: partition %d does not exist", info.JobID, pinfo.PartitionID)
		}
		mi := &catalog.MaterializedIndex{ID: info.RollupIndexID, State: model.IndexStateShadow}
		for _, tinfo := range pinfo.Tablets {
			t := &catalog.Tablet{ID: tinfo.ID}
			for _, rinfo := range tinfo.Replicas {
				rep := &catalog.Replica{
					ID:                rinfo.ID,
					BackendID:         rinfo.BackendID,
					State:             rinfo.State,
					Version:           rinfo.Version,
					VersionHash:       rinfo.VersionHash,
					SchemaHash:        rinfo.SchemaHash,
					LastFailedVersion: rinfo.LastFailedVersion,
				}
				if err := t.AddReplica(rep); err != nil {
					return errors.Trace(err)
				}
			}
			mi.AddTablet(t)
			if !r.forCheckpoint {
				inverted.AddTablet(t.ID, &catalog.TabletMeta{
					DBID:        info.DBID,
					TableID:     info.TableID,
					PartitionID: p.ID,
					IndexID:     info.RollupIndexID,
					SchemaHash:  info.RollupSchemaHash,
					Medium:      p.StorageMedium,
				})
			}
		}
		p.AddIndex(mi)
	}
	return nil
}

// ReplayDropRollup implements editlog.Handler interface.
func (r *replayer) ReplayDropRollup(info *model.DropIndexInfo) error {
	d := r.d
	tbl, err := d.catalog.TableByID(info.TableID)
	if err != nil {
		return errors.Trace(err)
	}
	tbl.Lock()
	defer tbl.Unlock()
	dropIndexFromPartitions(tbl, info.IndexID, d.catalog.TabletIndex(), r.forCheckpoint)
	tbl.UnregisterIndex(info.IndexID)
	return nil
}

// ReplayIDBatchEnd implements editlog.Handler interface.
func (r *replayer) ReplayIDBatchEnd(end int64) error {
	r.d.idAlloc.ReplayBatchEnd(end)
	return nil
}
