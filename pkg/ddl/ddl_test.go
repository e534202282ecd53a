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
	"sync"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/editlog"
	"github.com/stratumdb/stratum/pkg/meta/autoid"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/txn"
	"github.com/stretchr/testify/require"
)

const (
	testDBID    int64 = 1
	testTableID int64 = 10
)

// testDispatcher implements backend.TaskDispatcher against the shared task
// table, mirroring the production dispatcher. With autoAck set it reports
// success the moment a task is dispatched, so lifecycle tests can run the
// driver without a report channel.
type testDispatcher struct {
	mu      sync.Mutex
	tasks   *backend.TaskTable
	autoAck bool

	failRollup bool
	failClear  bool

	rollups []backend.RollupTask
	clears  []backend.ClearAlterTask
}

func (td *testDispatcher) DispatchRollupTask(_ context.Context, task *backend.RollupTask) error {
	td.mu.Lock()
	defer td.mu.Unlock()
	if td.failRollup {
		return errors.New("backend unreachable")
	}
	td.rollups = append(td.rollups, *task)
	td.tasks.Add(&backend.AgentTask{
		Type:      backend.TaskRollup,
		JobID:     task.JobID,
		BackendID: task.BackendID,
		TabletID:  task.TabletID,
		ReplicaID: task.ReplicaID,
	})
	if td.autoAck {
		td.tasks.ReportSuccess(backend.TaskRollup, task.BackendID, task.TabletID)
	}
	return nil
}

func (td *testDispatcher) DispatchClearAlterTask(_ context.Context, task *backend.ClearAlterTask) error {
	td.mu.Lock()
	defer td.mu.Unlock()
	if td.failClear {
		return errors.New("backend unreachable")
	}
	td.clears = append(td.clears, *task)
	td.tasks.Add(&backend.AgentTask{
		Type:      backend.TaskClearAlter,
		JobID:     task.JobID,
		BackendID: task.BackendID,
		TabletID:  task.TabletID,
	})
	if td.autoAck {
		td.tasks.ReportSuccess(backend.TaskClearAlter, task.BackendID, task.TabletID)
	}
	return nil
}

func (td *testDispatcher) clearTasks() []backend.ClearAlterTask {
	td.mu.Lock()
	defer td.mu.Unlock()
	return append([]backend.ClearAlterTask(nil), td.clears...)
}

func (td *testDispatcher) rollupTasks() []backend.RollupTask {
	td.mu.Lock()
	defer td.mu.Unlock()
	return append([]backend.RollupTask(nil), td.rollups...)
}

// memEditLog captures persisted records in order. It stands in for
// *editlog.EditLog and doubles as the allocator's batch persister, so a
// test's record stream interleaves id bounds and job snapshots exactly like
// the durable log would.
type memEditLog struct {
	mu       sync.Mutex
	failSave bool
	recs     []memLogRec
}

type memLogRec struct {
	job   *model.RollupJobInfo
	drop  *model.DropIndexInfo
	idEnd int64
}

func (l *memEditLog) SaveRollupJob(job *model.RollupJobInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSave {
		return errors.New("edit log unavailable")
	}
	l.recs = append(l.recs, memLogRec{job: job.Clone()})
	return nil
}

func (l *memEditLog) DropRollup(info *model.DropIndexInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSave {
		return errors.New("edit log unavailable")
	}
	cp := *info
	l.recs = append(l.recs, memLogRec{drop: &cp})
	return nil
}

// PersistIDBatchEnd implements autoid.BatchPersister.
func (l *memEditLog) PersistIDBatchEnd(end int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failSave {
		return errors.New("edit log unavailable")
	}
	l.recs = append(l.recs, memLogRec{idEnd: end})
	return nil
}

// replayInto feeds the captured records to a handler in append order, the way
// editlog.Replay would.
func (l *memEditLog) replayInto(h editlog.Handler) error {
	l.mu.Lock()
	recs := append([]memLogRec(nil), l.recs...)
	l.mu.Unlock()
	for _, rec := range recs {
		var err error
		switch {
		case rec.job != nil:
			err = h.ReplayRollupJob(rec.job.Clone())
		case rec.drop != nil:
			cp := *rec.drop
			err = h.ReplayDropRollup(&cp)
		default:
			err = h.ReplayIDBatchEnd(rec.idEnd)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// jobStates lists the states persisted for one job, in append order.
func (l *memEditLog) jobStates(jobID int64) []model.JobState {
	l.mu.Lock()
	defer l.mu.Unlock()
	var states []model.JobState
	for _, rec := range l.recs {
		if rec.job != nil && rec.job.JobID == jobID {
			states = append(states, rec.job.State)
		}
	}
	return states
}

// lastJobRec returns the last persisted snapshot of one job.
func (l *memEditLog) lastJobRec(jobID int64) *model.RollupJobInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.recs) - 1; i >= 0; i-- {
		if l.recs[i].job != nil && l.recs[i].job.JobID == jobID {
			return l.recs[i].job.Clone()
		}
	}
	return nil
}

func testBaseSchema(keysType model.KeysType) []*model.ColumnInfo {
	key := func(name string) *model.ColumnInfo {
		return &model.ColumnInfo{Name: model.NewCIStr(name), Type: model.TypeInt, IsKey: true}
	}
	v1 := &model.ColumnInfo{Name: model.NewCIStr("v1"), Type: model.TypeBigInt}
	v2 := &model.ColumnInfo{Name: model.NewCIStr("v2"), Type: model.TypeVarchar, Len: 32}
	switch keysType {
	case model.AggregateKeys:
		v1.Aggregation = model.AggSum
		v2.Aggregation = model.AggReplace
	case model.UniqueKeys:
		v1.Aggregation = model.AggReplace
		v2.Aggregation = model.AggReplace
	}
	return []*model.ColumnInfo{key("k1"), key("k2"), key("k3"), v1, v2}
}

// newTestTable builds the sales table: two partitions at different visible
// versions, three base tablets, three replicas each on backends 1..3. All
// fixture ids sit below autoid.InitialID.
func newTestTable(keysType model.KeysType) *catalog.Table {
	tbl := catalog.NewTable(testTableID, model.NewCIStr("sales"), 0, keysType, testBaseSchema(keysType), 2)
	tabletID, replicaID := int64(100), int64(200)
	addPartition := func(pid int64, name string, medium model.StorageMedium, visible int64, tablets int) {
		p := catalog.NewPartition(pid, model.NewCIStr(name), medium)
		p.VisibleVersion = visible
		base := &catalog.MaterializedIndex{ID: tbl.BaseIndexID, State: model.IndexStateNormal}
		for i := 0; i < tablets; i++ {
			tab := &catalog.Tablet{ID: tabletID}
			tabletID++
			for b := int64(1); b <= 3; b++ {
				if err := tab.AddReplica(&catalog.Replica{
					ID:        replicaID,
					BackendID: b,
					State:     model.ReplicaStateNormal,
					Version:   visible,
				}); err != nil {
					panic(err)
				}
				replicaID++
			}
			base.AddTablet(tab)
		}
		p.AddIndex(base)
		tbl.AddPartition(p)
	}
	addPartition(20, "p0", model.StorageMediumSSD, 7, 2)
	addPartition(21, "p1", model.StorageMediumHDD, 3, 1)
	return tbl
}

// testEnv wires a DDL instance against in-memory collaborators and one
// database holding the sales table.
type testEnv struct {
	catalog    *catalog.Catalog
	editLog    *memEditLog
	alloc      *autoid.Allocator
	tracker    *txn.Tracker
	tasks      *backend.TaskTable
	dispatcher *testDispatcher
	d          *ddl
}

func newTestEnv(t *testing.T, keysType model.KeysType, options ...Option) *testEnv {
	env := &testEnv{
		catalog: catalog.New(),
		editLog: &memEditLog{},
		tracker: txn.NewTracker(),
		tasks:   backend.NewTaskTable(),
	}
	env.alloc = autoid.NewAllocator(env.editLog)
	env.dispatcher = &testDispatcher{tasks: env.tasks}

	_, err := env.catalog.CreateDatabase(testDBID, model.NewCIStr("db"))
	require.NoError(t, err)
	require.NoError(t, env.catalog.CreateTable("db", newTestTable(keysType)))

	opts := append([]Option{
		WithCatalog(env.catalog),
		WithEditLog(env.editLog),
		WithIDAllocator(env.alloc),
		WithTxnTracker(env.tracker),
		WithDispatcher(env.dispatcher),
		WithTaskTable(env.tasks),
	}, options...)
	env.d = newDDL(context.Background(), opts...)
	t.Cleanup(func() { require.NoError(t, env.d.Stop()) })
	return env
}

func (env *testEnv) table(t *testing.T) *catalog.Table {
	tbl, err := env.catalog.TableByID(testTableID)
	require.NoError(t, err)
	return tbl
}

func (env *testEnv) addRollup(t *testing.T, name string, cols []string) *rollupJob {
	require.NoError(t, env.d.AddRollup(context.Background(), &AddRollupRequest{
		DBName:     "db",
		TableName:  "sales",
		RollupName: name,
		Columns:    cols,
	}))
	return env.liveJob(t)
}

func (env *testEnv) liveJob(t *testing.T) *rollupJob {
	j, ok := env.d.runningJobs.liveOnTable(testTableID)
	require.True(t, ok)
	rj, ok := j.(*rollupJob)
	require.True(t, ok)
	return rj
}

func (env *testEnv) tick(j *rollupJob) {
	j.RunOnce(context.Background(), env.d.ddlCtx)
}

func (env *testEnv) reportRollupSuccess(jobID int64) {
	for _, task := range env.tasks.TasksOfJob(jobID, backend.TaskRollup) {
		env.tasks.ReportSuccess(backend.TaskRollup, task.BackendID, task.TabletID)
	}
}

func (env *testEnv) reportClearSuccess(jobID int64) {
	for _, task := range env.tasks.TasksOfJob(jobID, backend.TaskClearAlter) {
		env.tasks.ReportSuccess(backend.TaskClearAlter, task.BackendID, task.TabletID)
	}
}

// driveToFinished walks the job through the happy path with manual ticks.
func (env *testEnv) driveToFinished(t *testing.T, j *rollupJob) {
	env.tick(j)
	require.Equal(t, model.JobStateRunning, j.State())
	env.reportRollupSuccess(j.JobID())
	env.tick(j)
	require.Equal(t, model.JobStateFinishing, j.State())
	env.tick(j)
	env.reportClearSuccess(j.JobID())
	env.tick(j)
	require.Equal(t, model.JobStateFinished, j.State())
}

func TestNewDDLRequiresDependencies(t *testing.T) {
	ctx := context.Background()
	cat := catalog.New()
	log := &memEditLog{}
	alloc := autoid.NewAllocator(log)
	tracker := txn.NewTracker()
	tasks := backend.NewTaskTable()
	disp := &testDispatcher{tasks: tasks}

	require.PanicsWithValue(t, "catalog should not be nil", func() {
		newDDL(ctx)
	})
	require.PanicsWithValue(t, "edit log should not be nil", func() {
		newDDL(ctx, WithCatalog(cat))
	})
	require.PanicsWithValue(t, "id allocator should not be nil", func() {
		newDDL(ctx, WithCatalog(cat), WithEditLog(log))
	})
	require.PanicsWithValue(t, "txn tracker should not be nil", func() {
		newDDL(ctx, WithCatalog(cat), WithEditLog(log), WithIDAllocator(alloc))
	})
	require.PanicsWithValue(t, "dispatcher should not be nil", func() {
		newDDL(ctx, WithCatalog(cat), WithEditLog(log), WithIDAllocator(alloc), WithTxnTracker(tracker))
	})
	require.PanicsWithValue(t, "task table should not be nil", func() {
		newDDL(ctx, WithCatalog(cat), WithEditLog(log), WithIDAllocator(alloc), WithTxnTracker(tracker), WithDispatcher(disp))
	})
}

func TestStartStop(t *testing.T) {
	env := newTestEnv(t, model.DuplicateKeys)
	require.NotEmpty(t, env.d.GetID())
	require.NoError(t, env.d.Start())
	// A second Start is a no-op.
	require.NoError(t, env.d.Start())
	require.NoError(t, env.d.Stop())
}

// TestDDLEndToEnd runs the driver for real: backends acknowledge every task
// immediately and the job must converge without manual ticks.
func TestDDLEndToEnd(t *testing.T) {
	env := newTestEnv(t, model.AggregateKeys, WithJobCheckInterval(10*time.Millisecond))
	env.dispatcher.autoAck = true
	require.NoError(t, env.d.Start())

	require.NoError(t, env.d.AddRollup(context.Background(), &AddRollupRequest{
		DBName:     "db",
		TableName:  "sales",
		RollupName: "daily",
		Columns:    []string{"k1", "v1"},
	}))

	tbl := env.table(t)
	require.Eventually(t, func() bool {
		tbl.RLock()
		defer tbl.RUnlock()
		_, visible := tbl.IndexNameToID["daily"]
		return visible && tbl.State == model.TableStateNormal
	}, 5*time.Second, 10*time.Millisecond)

	rows, err := env.d.ListRollupJobs(context.Background(), "root", "db")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, model.JobStateFinished.String(), rows[0].State)
	require.Equal(t, "daily", rows[0].RollupIndexName)
}
