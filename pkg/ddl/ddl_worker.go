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
	"time"

	"github.com/stratumdb/stratum/pkg/ddl/logutil"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/util"
	tidblogutil "github.com/stratumdb/stratum/pkg/util/logutil"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// ddlWorkerID is used for generating the next DDL worker ID.
var ddlWorkerID = atomic.NewInt32(0)

// worker is the single driver of all live alter jobs. Each tick sweeps the
// registry in job id order and gives every job one chance to advance. One
// worker suffices: a tick never blocks on a backend, it only inspects task
// reports and mutates metadata.
type worker struct {
	id     int32
	ctx    context.Context
	logCtx context.Context
	*ddlCtx
}

func newWorker(ctx context.Context, dCtx *ddlCtx) *worker {
	w := &worker{
		id:     ddlWorkerID.Add(1),
		ctx:    ctx,
		ddlCtx: dCtx,
	}
	w.logCtx = tidblogutil.WithFields(context.Background(),
		zap.String("worker", w.String()),
		zap.String("category", "ddl"))
	return w
}

func (w *worker) String() string {
	return fmt.Sprintf("worker %d", w.id)
}

// loop wakes on the check interval, on a creation notification and on
// shutdown. Waking early on creation keeps the pending-to-running latency
// well under the interval.
func (w *worker) loop() {
	defer logutil.DDLLogger().Info("DDL worker closed", zap.String("worker", w.String()))
	ticker := time.NewTicker(w.jobCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
		case <-w.notifyCh:
		case <-w.ctx.Done():
			return
		}
		w.runOneTick()
	}
}

func (w *worker) runOneTick() {
	startTime := time.Now()
	for _, job := range w.runningJobs.live() {
		if w.ctx.Err() != nil {
			return
		}
		w.runJob(job)
	}
	metrics.DDLWorkerTickDuration.Observe(time.Since(startTime).Seconds())
}

// runJob isolates one job's step: a panic inside a job skips that job for the
// round instead of taking the worker down.
func (w *worker) runJob(job AlterJob) {
	util.WithRecovery(
		func() { job.RunOnce(w.ctx, w.ddlCtx) },
		func(r any) {
			if r != nil {
				tidblogutil.Logger(w.logCtx).Error("run alter job panicked, skip this round",
					zap.Int64("jobID", job.JobID()))
			}
		})
}

// asyncNotify posts to ch without blocking when a notification is already
// pending.
func asyncNotify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
