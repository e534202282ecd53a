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
	"fmt"
	"sync"
	"time"

	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/ddl/logutil"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/util/intest"
	"go.uber.org/zap"
)

// rollupJob drives one rollup build from PENDING to FINISHED. The identity
// fields of info (ids, names, schema, partitions) are immutable once the job
// is registered; the mutable fields (state, watershed, reason, finish time)
// change only under the owning table's write lock, and mu additionally
// serializes readers that do not hold that lock, such as listing.
type rollupJob struct {
	mu   sync.Mutex
	info *model.RollupJobInfo

	// clearRounds counts finishing ticks spent resending unresolved clear
	// tasks. It bounds the resends before the force finish fallback.
	clearRounds int
}

func newRollupJob(info *model.RollupJobInfo) *rollupJob {
	return &rollupJob{info: info}
}

// JobID implements AlterJob.
func (j *rollupJob) JobID() int64 { return j.info.JobID }

// DBID implements AlterJob.
func (j *rollupJob) DBID() int64 { return j.info.DBID }

// TableID implements AlterJob.
func (j *rollupJob) TableID() int64 { return j.info.TableID }

// State implements AlterJob.
func (j *rollupJob) State() model.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info.State
}

// IsDone implements AlterJob.
func (j *rollupJob) IsDone() bool {
	return j.State().IsTerminal()
}

func (j *rollupJob) infoClone() *model.RollupJobInfo {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info.Clone()
}

func (j *rollupJob) watershed() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.info.WatershedTxnID
}

func (j *rollupJob) timedOut(now time.Time) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return now.UnixMilli()-j.info.CreateTimeMs > j.info.TimeoutMs
}

func (j *rollupJob) logger() *zap.Logger {
	return logutil.DDLLogger().With(
		zap.Int64("jobID", j.info.JobID),
		zap.Int64("tableID", j.info.TableID),
		zap.String("rollup", j.info.RollupIndexName.O))
}

// RunOnce implements AlterJob. Each call advances the job by at most one
// transition; backend traffic always happens with the table lock released.
func (j *rollupJob) RunOnce(ctx context.Context, d *ddlCtx) {
	if j.IsDone() {
		return
	}
	if j.timedOut(time.Now()) {
		j.cancelWithReason(ctx, d, "timeout")
		return
	}
	switch j.State() {
	case model.JobStatePending:
		j.runPending(ctx, d)
	case model.JobStateRunning:
		j.runRunning(ctx, d)
	case model.JobStateFinishing:
		j.runFinishing(ctx, d)
	}
	// A cancellation racing one of the dispatch loops above may purge the
	// task table before a late dispatch re-adds an entry. Purge again once
	// the job is terminal so no task outlives its job.
	if j.IsDone() {
		d.taskTable.RemoveJob(j.JobID())
	}
}

// runPending dispatches one build task per shadow replica, then flips the job
// to RUNNING. Any dispatch failure cancels the whole job: a backend that
// cannot accept the build now will not construct the replica later either.
func (j *rollupJob) runPending(ctx context.Context, d *ddlCtx) {
	tasks := j.buildRollupTasks()
	for _, task := range tasks {
		if err := d.dispatchRollup(ctx, task); err != nil {
			j.cancelWithReason(ctx, d, fmt.Sprintf("dispatch failed: %v", err))
			return
		}
	}
	if j.advance(d, model.JobStatePending, model.JobStateRunning, nil) {
		j.logger().Info("rollup build tasks dispatched", zap.Int("tasks", len(tasks)))
	}
}

// runRunning polls the replica build tasks. Failed builds are resent until
// the failure budget runs out; once every replica reported success the job
// captures the transaction watershed and enters FINISHING.
func (j *rollupJob) runRunning(ctx context.Context, d *ddlCtx) {
	tasks := d.taskTable.TasksOfJob(j.JobID(), backend.TaskRollup)
	if len(tasks) == 0 {
		// A job replayed in RUNNING state has no tracked tasks yet.
		j.logger().Info("no build tasks tracked, dispatching")
		for _, task := range j.buildRollupTasks() {
			if err := d.dispatchRollup(ctx, task); err != nil {
				j.cancelWithReason(ctx, d, fmt.Sprintf("dispatch failed: %v", err))
				return
			}
		}
		return
	}

	succeeded := 0
	retry := make(map[taskRef]struct{})
	for i := range tasks {
		task := &tasks[i]
		switch task.Status {
		case backend.TaskStatusSucceeded:
			succeeded++
		case backend.TaskStatusFailed:
			if task.FailedTimes >= d.maxReplicaFailures {
				j.cancelWithReason(ctx, d, fmt.Sprintf(
					"replica build failed on backend %d tablet %d after %d attempts: %s",
					task.BackendID, task.TabletID, task.FailedTimes, task.ErrMsg))
				return
			}
			retry[taskRef{task.BackendID, task.TabletID}] = struct{}{}
		}
	}

	if total := j.info.TotalReplicas(); succeeded >= total {
		watershed := d.txns.Watershed()
		ok := j.advance(d, model.JobStateRunning, model.JobStateFinishing, func(info *model.RollupJobInfo) {
			info.WatershedTxnID = watershed
		})
		if ok {
			j.logger().Info("all replicas built, waiting for transactions to drain",
				zap.Int64("watershedTxnID", watershed))
		}
		return
	}

	if len(retry) > 0 {
		for _, task := range j.buildRollupTasks() {
			if _, ok := retry[taskRef{task.BackendID, task.TabletID}]; !ok {
				continue
			}
			if err := d.dispatchRollup(ctx, task); err != nil {
				j.cancelWithReason(ctx, d, fmt.Sprintf("dispatch failed: %v", err))
				return
			}
		}
	}
}

// runFinishing first waits for every transaction at or below the watershed to
// drain, so the rollup holds all data visible to readers. It then pushes
// clear notifications to the backends; after clearTaskResendLimit unresolved
// rounds the job force finishes with a recorded warning instead of hanging on
// an unreachable backend.
func (j *rollupJob) runFinishing(ctx context.Context, d *ddlCtx) {
	if !d.txns.IsPreviousTxnsFinished(j.watershed(), j.TableID()) {
		j.logger().Debug("transactions before watershed still running",
			zap.Int64("watershedTxnID", j.watershed()))
		return
	}

	tasks := d.taskTable.TasksOfJob(j.JobID(), backend.TaskClearAlter)
	if len(tasks) == 0 {
		tbl, err := d.catalog.TableByID(j.TableID())
		if err != nil {
			j.terminateLost(d, "table does not exist")
			return
		}
		clearTasks := j.buildClearTasks(tbl)
		for _, task := range clearTasks {
			if err := d.dispatchClear(ctx, task); err != nil {
				// Clear traffic is best effort; the resend budget decides.
				j.logger().Warn("dispatch clear task failed",
					zap.Int64("backendID", task.BackendID), zap.Error(err))
			}
		}
		j.logger().Info("clear tasks dispatched", zap.Int("tasks", len(clearTasks)))
		return
	}

	unresolved := make(map[taskRef]struct{})
	for i := range tasks {
		if tasks[i].Status != backend.TaskStatusSucceeded {
			unresolved[taskRef{tasks[i].BackendID, tasks[i].TabletID}] = struct{}{}
		}
	}
	if len(unresolved) == 0 {
		j.finish(d, false)
		return
	}
	if j.clearRounds >= d.clearTaskResendLimit {
		j.logger().Warn("clear tasks unresolved after resend budget, force finishing",
			zap.Int("unresolved", len(unresolved)), zap.Int("rounds", j.clearRounds))
		j.finish(d, true)
		return
	}
	j.clearRounds++

	tbl, err := d.catalog.TableByID(j.TableID())
	if err != nil {
		j.terminateLost(d, "table does not exist")
		return
	}
	for _, task := range j.buildClearTasks(tbl) {
		if _, ok := unresolved[taskRef{task.BackendID, task.TabletID}]; !ok {
			continue
		}
		if err := d.dispatchClear(ctx, task); err != nil {
			j.logger().Warn("resend clear task failed",
				zap.Int64("backendID", task.BackendID), zap.Error(err))
		}
	}
}

// finish makes the rollup visible: replicas leave ALTER at the partition's
// visible watermark, the index leaves SHADOW and is registered under its
// name, and the table returns to NORMAL once no other unfinished job remains.
// All of that happens inside one table lock acquisition; the terminal record
// is persisted after the lock is released.
func (j *rollupJob) finish(d *ddlCtx, forced bool) {
	tbl, err := d.catalog.TableByID(j.TableID())
	if err != nil {
		j.terminateLost(d, "table does not exist")
		return
	}

	tbl.Lock()
	j.mu.Lock()
	if j.info.State != model.JobStateFinishing {
		j.mu.Unlock()
		tbl.Unlock()
		return
	}
	makeRollupVisible(tbl, j.info)
	if !d.runningJobs.otherLiveOnTable(tbl.ID, j.info.JobID) {
		tbl.State = model.TableStateNormal
	}
	j.info.State = model.JobStateFinished
	j.info.ForceFinished = forced
	j.info.FinishTimeMs = time.Now().UnixMilli()
	rec := j.info.Clone()
	j.mu.Unlock()
	tbl.Unlock()

	jobGaugeTransition(model.JobStateFinishing, model.JobStateFinished)
	outcome := metrics.JobOutcomeFinished
	if forced {
		outcome = metrics.JobOutcomeForceFinished
	}
	metrics.DDLJobTerminalCounterVec.WithLabelValues(outcome).Inc()
	if err := d.editLog.SaveRollupJob(rec); err != nil {
		j.logger().Error("persist finished job failed", zap.Error(err))
	}
	d.runningJobs.markDone(j)
	d.taskTable.RemoveJob(j.JobID())
	j.logger().Info("rollup job finished", zap.Bool("forced", forced),
		zap.Duration("cost", time.Duration(rec.FinishTimeMs-rec.CreateTimeMs)*time.Millisecond))
}

// makeRollupVisible flips the shadow index out of SHADOW, publishes its
// replicas at each partition's visible watermark and registers the index
// under its name. The caller holds the table's write lock.
func makeRollupVisible(tbl *catalog.Table, info *model.RollupJobInfo) {
	for _, pinfo := range info.Partitions {
		p := tbl.GetPartition(pinfo.PartitionID)
		intest.AssertNotNil(p, "partition %d vanished under rollup job %d", pinfo.PartitionID, info.JobID)
		if p == nil {
			continue
		}
		mi := p.GetIndex(info.RollupIndexID)
		intest.AssertNotNil(mi, "shadow index %d vanished in partition %d", info.RollupIndexID, p.ID)
		if mi == nil {
			continue
		}
		mi.State = model.IndexStateNormal
		for _, t := range mi.Tablets {
			for _, r := range t.Replicas {
				if r.State == model.ReplicaStateAlter {
					r.State = model.ReplicaStateNormal
					r.Version = p.VisibleVersion
					r.VersionHash = p.VisibleVersionHash
				}
			}
		}
	}
	tbl.RegisterIndex(&catalog.IndexMeta{
		ID:                  info.RollupIndexID,
		Name:                info.RollupIndexName,
		Schema:              model.CloneColumns(info.RollupSchema),
		SchemaHash:          info.RollupSchemaHash,
		ShortKeyColumnCount: info.ShortKeyColumnCount,
	})
}

// advance commits one non-terminal transition under the table's write lock,
// re-checking the from state after acquiring it: a concurrent cancellation on
// the same table may have converged the job first. The committed transition
// is persisted after the lock is released.
func (j *rollupJob) advance(d *ddlCtx, from, to model.JobState, mutate func(*model.RollupJobInfo)) bool {
	tbl, err := d.catalog.TableByID(j.TableID())
	if err != nil {
		j.terminateLost(d, "table does not exist")
		return false
	}

	tbl.Lock()
	j.mu.Lock()
	if j.info.State != from {
		j.mu.Unlock()
		tbl.Unlock()
		return false
	}
	j.info.State = to
	if mutate != nil {
		mutate(j.info)
	}
	rec := j.info.Clone()
	j.mu.Unlock()
	tbl.Unlock()

	jobGaugeTransition(from, to)
	if err := d.editLog.SaveRollupJob(rec); err != nil {
		j.logger().Error("persist job transition failed",
			zap.Stringer("state", to), zap.Error(err))
	}
	return true
}

func (d *ddlCtx) dispatchRollup(ctx context.Context, task *backend.RollupTask) (err error) {
	failpoint.Inject("mockDispatchRollupErr", func(_ failpoint.Value) {
		err = errors.New("mock dispatch rollup error")
	})
	if err != nil {
		return err
	}
	return d.dispatcher.DispatchRollupTask(ctx, task)
}

func (d *ddlCtx) dispatchClear(ctx context.Context, task *backend.ClearAlterTask) (err error) {
	failpoint.Inject("mockDispatchClearErr", func(_ failpoint.Value) {
		err = errors.New("mock dispatch clear error")
	})
	if err != nil {
		return err
	}
	return d.dispatcher.DispatchClearAlterTask(ctx, task)
}

// buildRollupTasks renders one build task per shadow replica from the job's
// immutable skeleton.
func (j *rollupJob) buildRollupTasks() []*backend.RollupTask {
	info := j.info
	var tasks []*backend.RollupTask
	for _, p := range info.Partitions {
		for _, t := range p.Tablets {
			for _, r := range t.Replicas {
				tasks = append(tasks, &backend.RollupTask{
					JobID:          info.JobID,
					BackendID:      r.BackendID,
					TabletID:       t.ID,
					ReplicaID:      r.ID,
					BaseTabletID:   t.BaseTabletID,
					SchemaHash:     info.RollupSchemaHash,
					BaseSchemaHash: info.BaseSchemaHash,
					Schema:         info.RollupSchema,
				})
			}
		}
	}
	return tasks
}

// buildClearTasks renders one clear task per base replica: backends hold the
// alter scaffolding against the base tablets they built the rollup from.
func (j *rollupJob) buildClearTasks(tbl *catalog.Table) []*backend.ClearAlterTask {
	tbl.RLock()
	defer tbl.RUnlock()
	var tasks []*backend.ClearAlterTask
	for _, p := range tbl.Partitions {
		base := p.GetIndex(tbl.BaseIndexID)
		if base == nil {
			continue
		}
		for _, t := range base.Tablets {
			for _, r := range t.Replicas {
				tasks = append(tasks, &backend.ClearAlterTask{
					JobID:      j.info.JobID,
					BackendID:  r.BackendID,
					TabletID:   t.ID,
					SchemaHash: j.info.BaseSchemaHash,
				})
			}
		}
	}
	return tasks
}

// taskRef identifies one agent task within a job.
type taskRef struct {
	backendID int64
	tabletID  int64
}

// jobGaugeTransition keeps the per-state job gauge aligned with transitions.
// A zero from means job creation; terminal states are tracked by the outcome
// counter instead of the gauge.
func jobGaugeTransition(from, to model.JobState) {
	if from != 0 {
		metrics.DDLJobGaugeVec.WithLabelValues(from.String()).Dec()
	}
	if to != 0 && !to.IsTerminal() {
		metrics.DDLJobGaugeVec.WithLabelValues(to.String()).Inc()
	}
}
