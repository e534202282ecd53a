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

// Package ddl orchestrates structural changes to tables: validating rollup
// requests, allocating shadow metadata, and driving the asynchronous jobs
// that build replicas on backends to completion or roll them back.
package ddl

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/ddl/logutil"
	"github.com/stratumdb/stratum/pkg/editlog"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/privilege"
	"github.com/stratumdb/stratum/pkg/util"
	"go.uber.org/zap"
)

// DDL handles the statements that change the structure of tables: adding and
// dropping rollup indexes, cancelling the jobs that build them, and listing
// those jobs.
type DDL interface {
	// Start launches the job driver.
	Start() error
	// Stop stops the driver and waits for an in-flight tick to return.
	Stop() error
	// GetID gets the ddl instance ID.
	GetID() string

	// AddRollup validates an add-rollup request, allocates the shadow
	// skeleton and registers an asynchronous build job. A nil return means
	// the job was accepted, not that it finished.
	AddRollup(ctx context.Context, req *AddRollupRequest) error
	// DropRollup removes a visible rollup index synchronously.
	DropRollup(ctx context.Context, req *DropRollupRequest) error
	// CancelAlter cancels the unfinished alter job on one table.
	CancelAlter(ctx context.Context, req *CancelAlterRequest) error
	// ListRollupJobs renders every rollup job of one database the user may
	// alter, live and historical.
	ListRollupJobs(ctx context.Context, user, dbName string) ([]JobListRow, error)

	// Replayer returns an edit log handler that rebuilds this instance's
	// jobs and catalog entries. Handlers for checkpointing skip global
	// tablet lookup mutation already performed by the live path.
	Replayer(forCheckpoint bool) editlog.Handler
}

// EditLogger persists committed alter transitions. *editlog.EditLog is the
// production implementation.
type EditLogger interface {
	SaveRollupJob(job *model.RollupJobInfo) error
	DropRollup(info *model.DropIndexInfo) error
}

// TxnTracker exposes the transaction watermark that the finishing barrier
// drains against. *txn.Tracker is the production implementation.
type TxnTracker interface {
	Watershed() int64
	IsPreviousTxnsFinished(watermark, tableID int64) bool
}

// IDAllocator hands out globally exclusive monotonic ids for jobs, indexes,
// tablets and replicas. *autoid.Allocator is the production implementation.
type IDAllocator interface {
	Next() (int64, error)
	// ReplayBatchEnd lifts the floor to a persisted batch bound during
	// replay, so a restarted instance never reissues an id.
	ReplayBatchEnd(end int64)
}

// AlterJob is one asynchronous structural change on one table. The driver
// advances it through RunOnce until IsDone; user cancellation goes through
// Cancel. Implementations keep every state transition under the owning
// table's write lock and never hold that lock across backend traffic.
type AlterJob interface {
	JobID() int64
	DBID() int64
	TableID() int64
	State() model.JobState
	IsDone() bool
	// RunOnce advances the job by at most one transition.
	RunOnce(ctx context.Context, d *ddlCtx)
	// Cancel rejects jobs already finishing or terminal, then converges the
	// job to CANCELLED.
	Cancel(ctx context.Context, d *ddlCtx, reason string) error
	// ListRow renders one row of the listing interface.
	ListRow(d *ddlCtx) JobListRow
}

// AddRollupRequest describes one add-rollup clause.
type AddRollupRequest struct {
	DBName    string
	TableName string
	// RollupName names the new index.
	RollupName string
	// Columns is the requested column name list, in order.
	Columns []string
	// DupKeys optionally redefines the key prefix. Only valid for duplicate
	// keys tables.
	DupKeys []string
	// BaseIndexName selects the index the rollup derives from. Empty means
	// the base index, which shares the table's name.
	BaseIndexName string
	// TimeoutSecond overrides the configured job timeout. It wins over the
	// timeout property when both are set.
	TimeoutSecond int64
	// Properties may set the short key column count and the job timeout in
	// seconds.
	Properties map[string]string
}

// DropRollupRequest describes one drop-rollup clause.
type DropRollupRequest struct {
	DBName     string
	TableName  string
	RollupName string
}

// CancelAlterRequest cancels the running alter job on one table.
type CancelAlterRequest struct {
	DBName    string
	TableName string
}

// ddlCtx carries every dependency a job transition needs. Handlers and the
// driver receive it explicitly; there is no package-global catalog or
// registry.
type ddlCtx struct {
	ctx    context.Context
	cancel context.CancelFunc
	uuid   string

	catalog     *catalog.Catalog
	editLog     EditLogger
	idAlloc     IDAllocator
	txns        TxnTracker
	dispatcher  backend.TaskDispatcher
	taskTable   *backend.TaskTable
	privChecker privilege.Checker

	jobCheckInterval     time.Duration
	jobTimeout           time.Duration
	maxReplicaFailures   int
	clearTaskResendLimit int

	runningJobs *runningJobs
	// notifyCh wakes the driver ahead of its tick when a job is created.
	notifyCh chan struct{}
}

// ddl implements DDL.
type ddl struct {
	m       sync.Mutex
	wg      util.WaitGroupWrapper
	started bool

	*ddlCtx
}

// NewDDL creates a DDL instance from options. Catalog, edit log, id
// allocator, transaction tracker, dispatcher and task table are required.
func NewDDL(ctx context.Context, options ...Option) DDL {
	return newDDL(ctx, options...)
}

func newDDL(ctx context.Context, options ...Option) *ddl {
	opt := &Options{
		PrivChecker:          privilege.AllowAll(),
		JobCheckInterval:     DefJobCheckInterval,
		JobTimeout:           DefJobTimeout,
		MaxReplicaFailures:   DefMaxReplicaFailures,
		ClearTaskResendLimit: DefClearTaskResendLimit,
	}
	for _, o := range options {
		o(opt)
	}

	if opt.Catalog == nil {
		panic("catalog should not be nil")
	}
	if opt.EditLog == nil {
		panic("edit log should not be nil")
	}
	if opt.IDAllocator == nil {
		panic("id allocator should not be nil")
	}
	if opt.TxnTracker == nil {
		panic("txn tracker should not be nil")
	}
	if opt.Dispatcher == nil {
		panic("dispatcher should not be nil")
	}
	if opt.TaskTable == nil {
		panic("task table should not be nil")
	}

	dCtx := &ddlCtx{
		uuid:                 uuid.New().String(),
		catalog:              opt.Catalog,
		editLog:              opt.EditLog,
		idAlloc:              opt.IDAllocator,
		txns:                 opt.TxnTracker,
		dispatcher:           opt.Dispatcher,
		taskTable:            opt.TaskTable,
		privChecker:          opt.PrivChecker,
		jobCheckInterval:     opt.JobCheckInterval,
		jobTimeout:           opt.JobTimeout,
		maxReplicaFailures:   opt.MaxReplicaFailures,
		clearTaskResendLimit: opt.ClearTaskResendLimit,
		runningJobs:          newRunningJobs(),
		notifyCh:             make(chan struct{}, 1),
	}
	dCtx.ctx, dCtx.cancel = context.WithCancel(ctx)
	return &ddl{ddlCtx: dCtx}
}

// Start implements DDL.Start interface.
func (d *ddl) Start() error {
	d.m.Lock()
	defer d.m.Unlock()
	if d.started {
		return nil
	}
	d.started = true

	logutil.DDLLogger().Info("start DDL",
		zap.String("ID", d.uuid),
		zap.Duration("jobCheckInterval", d.jobCheckInterval))
	w := newWorker(d.ctx, d.ddlCtx)
	d.wg.Run(w.loop)
	return nil
}

// Stop implements DDL.Stop interface.
func (d *ddl) Stop() error {
	d.m.Lock()
	defer d.m.Unlock()

	d.cancel()
	d.wg.Wait()
	logutil.DDLLogger().Info("stop DDL", zap.String("ID", d.uuid))
	return nil
}

// GetID implements DDL.GetID interface.
func (d *ddl) GetID() string {
	return d.uuid
}
