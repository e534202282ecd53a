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
	"time"

	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// CancelAlter implements DDL.CancelAlter interface. User cancellation and
// driver cancellation (timeout, replica failure) converge on the same
// operation; the user entry additionally rejects jobs that are finishing or
// already terminal.
func (d *ddl) CancelAlter(ctx context.Context, req *CancelAlterRequest) error {
	db, err := d.catalog.Database(req.DBName)
	if err != nil {
		return errors.Trace(err)
	}
	tbl, err := db.Table(req.TableName)
	if err != nil {
		return errors.Trace(err)
	}
	j, ok := d.runningJobs.liveOnTable(tbl.ID)
	if !ok {
		return ErrNoAlterJobOnTable.GenWithStackByArgs(tbl.Name.O)
	}
	return j.Cancel(ctx, d.ddlCtx, "user cancelled")
}

// Cancel implements AlterJob.
func (j *rollupJob) Cancel(ctx context.Context, d *ddlCtx, reason string) error {
	if st := j.State(); st == model.JobStateFinishing || st.IsTerminal() {
		return ErrCancelFinishedJob.GenWithStackByArgs(j.JobID(), st)
	}
	return j.cancelImpl(ctx, d, reason, true)
}

// cancelWithReason is the driver-side cancel: it may take down a finishing
// job (timeout during the barrier) and reports nothing to a caller.
func (j *rollupJob) cancelWithReason(ctx context.Context, d *ddlCtx, reason string) {
	_ = j.cancelImpl(ctx, d, reason, false)
}

// cancelImpl converges the job to CANCELLED: under the table's write lock it
// re-checks the job state, reverses every builder allocation and restores the
// table state; with the lock released it notifies backends and persists the
// cancellation record. The out-of-lock tail never re-acquires the table lock,
// so a slow or unreachable backend cannot block unrelated DDL.
func (j *rollupJob) cancelImpl(ctx context.Context, d *ddlCtx, reason string, userInitiated bool) error {
	tbl, err := d.catalog.TableByID(j.TableID())
	if err != nil {
		j.terminateLost(d, reason)
		return nil
	}

	tbl.Lock()
	j.mu.Lock()
	from := j.info.State
	if from.IsTerminal() || (userInitiated && from == model.JobStateFinishing) {
		j.mu.Unlock()
		tbl.Unlock()
		if userInitiated {
			return ErrCancelFinishedJob.GenWithStackByArgs(j.info.JobID, from)
		}
		return nil
	}
	dropIndexFromPartitions(tbl, j.info.RollupIndexID, d.catalog.TabletIndex(), false)
	if !d.runningJobs.otherLiveOnTable(tbl.ID, j.info.JobID) {
		tbl.State = model.TableStateNormal
	}
	j.info.State = model.JobStateCancelled
	j.info.Reason = reason
	j.info.FinishTimeMs = time.Now().UnixMilli()
	rec := j.info.Clone()
	j.mu.Unlock()
	tbl.Unlock()

	jobGaugeTransition(from, model.JobStateCancelled)
	metrics.DDLJobTerminalCounterVec.WithLabelValues(metrics.JobOutcomeCancelled).Inc()
	j.notifyBackendsClear(ctx, d, rec)
	if err := d.editLog.SaveRollupJob(rec); err != nil {
		j.logger().Error("persist cancelled job failed", zap.Error(err))
	}
	d.runningJobs.markDone(j)
	d.taskTable.RemoveJob(j.JobID())
	j.logger().Info("rollup job cancelled", zap.String("reason", reason))
	return nil
}

// terminateLost marks a job cancelled when its table no longer exists; there
// is nothing left to unwind.
func (j *rollupJob) terminateLost(d *ddlCtx, reason string) {
	j.mu.Lock()
	if j.info.State.IsTerminal() {
		j.mu.Unlock()
		return
	}
	from := j.info.State
	j.info.State = model.JobStateCancelled
	j.info.Reason = reason
	j.info.FinishTimeMs = time.Now().UnixMilli()
	rec := j.info.Clone()
	j.mu.Unlock()

	jobGaugeTransition(from, model.JobStateCancelled)
	metrics.DDLJobTerminalCounterVec.WithLabelValues(metrics.JobOutcomeCancelled).Inc()
	if err := d.editLog.SaveRollupJob(rec); err != nil {
		j.logger().Error("persist cancelled job failed", zap.Error(err))
	}
	d.runningJobs.markDone(j)
	d.taskTable.RemoveJob(j.JobID())
	j.logger().Warn("rollup job cancelled, table lost", zap.String("reason", reason))
}

// notifyBackendsClear tells every backend involved in the job to drop the
// rollup tablets it holds. Failures are logged and dropped; backends converge
// through their regular report diff eventually.
func (j *rollupJob) notifyBackendsClear(ctx context.Context, d *ddlCtx, rec *model.RollupJobInfo) {
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range rec.Partitions {
		for _, t := range p.Tablets {
			for _, r := range t.Replicas {
				task := &backend.ClearAlterTask{
					JobID:      rec.JobID,
					BackendID:  r.BackendID,
					TabletID:   t.ID,
					SchemaHash: rec.RollupSchemaHash,
				}
				g.Go(func() error {
					return d.dispatchClear(gctx, task)
				})
			}
		}
	}
	if err := g.Wait(); err != nil {
		j.logger().Warn("notify backends to clear rollup failed", zap.Error(err))
	}
}
