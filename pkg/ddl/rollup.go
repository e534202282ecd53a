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
	"sort"
	"strconv"
	"time"

	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/ddl/logutil"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/privilege"
	"go.uber.org/zap"
)

// propertyTimeout sets the job timeout in seconds in a request's properties.
const propertyTimeout = "timeout"

// AddRollup implements DDL.AddRollup interface. Everything from validation to
// the table state flip happens inside one table lock acquisition: either the
// whole shadow skeleton becomes visible together with the ROLLUP state, or
// nothing does.
func (d *ddl) AddRollup(_ context.Context, req *AddRollupRequest) error {
	if req.RollupName == "" || len(req.Columns) == 0 {
		return ErrEmptyRollupColumns.GenWithStackByArgs(req.RollupName)
	}
	timeout, err := jobTimeoutFromProperties(req.Properties, d.jobTimeout)
	if err != nil {
		return errors.Trace(err)
	}
	if req.TimeoutSecond > 0 {
		timeout = time.Duration(req.TimeoutSecond) * time.Second
	}
	db, err := d.catalog.Database(req.DBName)
	if err != nil {
		return errors.Trace(err)
	}
	tbl, err := db.Table(req.TableName)
	if err != nil {
		return errors.Trace(err)
	}

	tbl.Lock()
	defer tbl.Unlock()

	if tbl.State != model.TableStateNormal {
		return ErrTableStateNotNormal.GenWithStackByArgs(tbl.Name.O, tbl.State)
	}
	if j, ok := d.runningJobs.liveOnTable(tbl.ID); ok {
		return ErrUnfinishedAlterJob.GenWithStackByArgs(tbl.ID, j.JobID())
	}
	if _, ok := tbl.IndexIDByName(req.RollupName); ok {
		return ErrRollupExists.GenWithStackByArgs(req.RollupName, tbl.Name.O)
	}
	baseName := req.BaseIndexName
	if baseName == "" {
		baseName = tbl.Name.O
	}
	baseID, ok := tbl.IndexIDByName(baseName)
	if !ok {
		return ErrBaseIndexNotExists.GenWithStackByArgs(baseName, tbl.Name.O)
	}
	baseMeta := tbl.IndexMetas[baseID]

	schema, err := deriveRollupSchema(tbl.KeysType, baseMeta.Schema, req.Columns, req.DupKeys)
	if err != nil {
		return errors.Trace(err)
	}
	shortKey, err := model.CalcShortKeyColumnCount(schema, req.Properties)
	if err != nil {
		return errors.Trace(err)
	}

	jobID, err := d.idAlloc.Next()
	if err != nil {
		return errors.Trace(err)
	}
	rollupIndexID, err := d.idAlloc.Next()
	if err != nil {
		return errors.Trace(err)
	}

	info := &model.RollupJobInfo{
		JobID:               jobID,
		DBID:                db.ID,
		TableID:             tbl.ID,
		TableName:           tbl.Name,
		BaseIndexID:         baseID,
		BaseIndexName:       baseMeta.Name,
		BaseSchemaHash:      baseMeta.SchemaHash,
		RollupIndexID:       rollupIndexID,
		RollupIndexName:     model.NewCIStr(req.RollupName),
		RollupSchemaHash:    model.SchemaHash(0, schema, tbl.BloomFilterColumns, tbl.BloomFilterFpp),
		RollupSchema:        schema,
		ShortKeyColumnCount: shortKey,
		State:               model.JobStatePending,
		TimeoutMs:           timeout.Milliseconds(),
		CreateTimeMs:        time.Now().UnixMilli(),
	}

	builder := newIndexBuilder(d.idAlloc, d.catalog.TabletIndex())
	if err := builder.buildShadowIndexes(tbl, info); err != nil {
		return errors.Trace(err)
	}

	j := newRollupJob(info)
	if err := d.runningJobs.add(j); err != nil {
		builder.unwind(tbl, info)
		return errors.Trace(err)
	}
	tbl.State = model.TableStateRollup

	if err := d.editLog.SaveRollupJob(info.Clone()); err != nil {
		tbl.State = model.TableStateNormal
		d.runningJobs.remove(j)
		builder.unwind(tbl, info)
		return errors.Trace(err)
	}

	jobGaugeTransition(0, model.JobStatePending)
	asyncNotify(d.notifyCh)
	logutil.DDLLogger().Info("rollup job created",
		zap.Int64("jobID", jobID),
		zap.String("table", tbl.Name.O),
		zap.String("rollup", req.RollupName),
		zap.Int64("rollupIndexID", rollupIndexID),
		zap.Int("partitions", len(info.Partitions)),
		zap.Duration("timeout", timeout))
	return nil
}

// DropRollup implements DDL.DropRollup interface. The drop is synchronous:
// the drop record is written and the index, its tablets and their lookup
// entries disappear inside one table lock acquisition.
func (d *ddl) DropRollup(_ context.Context, req *DropRollupRequest) error {
	db, err := d.catalog.Database(req.DBName)
	if err != nil {
		return errors.Trace(err)
	}
	tbl, err := db.Table(req.TableName)
	if err != nil {
		return errors.Trace(err)
	}

	tbl.Lock()
	defer tbl.Unlock()

	if tbl.State != model.TableStateNormal {
		return ErrTableStateNotNormal.GenWithStackByArgs(tbl.Name.O, tbl.State)
	}
	indexID, ok := tbl.IndexIDByName(req.RollupName)
	if !ok {
		return ErrRollupNotExists.GenWithStackByArgs(req.RollupName, tbl.Name.O)
	}
	if indexID == tbl.BaseIndexID {
		return ErrDropBaseIndex.GenWithStackByArgs(req.RollupName, tbl.Name.O)
	}

	// The record goes first: the mutation below cannot fail, and replay of
	// the record reproduces it should the process die in between.
	if err := d.editLog.DropRollup(&model.DropIndexInfo{DBID: db.ID, TableID: tbl.ID, IndexID: indexID}); err != nil {
		return errors.Trace(err)
	}
	dropIndexFromPartitions(tbl, indexID, d.catalog.TabletIndex(), false)
	tbl.UnregisterIndex(indexID)

	logutil.DDLLogger().Info("rollup index dropped",
		zap.String("table", tbl.Name.O),
		zap.String("rollup", req.RollupName),
		zap.Int64("indexID", indexID))
	return nil
}

// dropIndexFromPartitions removes an index from every partition and, unless
// skipped for checkpoint replay, its global tablet lookup entries.
func dropIndexFromPartitions(tbl *catalog.Table, indexID int64, inverted *catalog.TabletInvertedIndex, skipLookup bool) {
	for _, p := range tbl.Partitions {
		mi := p.GetIndex(indexID)
		if mi == nil {
			continue
		}
		if !skipLookup {
			for _, t := range mi.Tablets {
				inverted.DeleteTablet(t.ID)
			}
		}
		p.DeleteIndex(indexID)
	}
}

// jobTimeoutFromProperties reads the per-job timeout in seconds, falling back
// to the configured default.
func jobTimeoutFromProperties(properties map[string]string, def time.Duration) (time.Duration, error) {
	v, ok := properties[propertyTimeout]
	if !ok {
		return def, nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil || secs <= 0 {
		return 0, ErrInvalidJobTimeout.GenWithStackByArgs(v)
	}
	return time.Duration(secs) * time.Second, nil
}

// JobListRow is one row of the job listing interface, rendered for live and
// historical jobs alike.
type JobListRow struct {
	JobID           int64
	TableName       string
	CreateTime      time.Time
	FinishTime      time.Time
	BaseIndexName   string
	RollupIndexName string
	State           string
	Progress        string
	Msg             string
}

func (r *JobListRow) less(o *JobListRow) bool {
	if r.JobID != o.JobID {
		return r.JobID < o.JobID
	}
	if r.TableName != o.TableName {
		return r.TableName < o.TableName
	}
	if !r.CreateTime.Equal(o.CreateTime) {
		return r.CreateTime.Before(o.CreateTime)
	}
	if !r.FinishTime.Equal(o.FinishTime) {
		return r.FinishTime.Before(o.FinishTime)
	}
	if r.BaseIndexName != o.BaseIndexName {
		return r.BaseIndexName < o.BaseIndexName
	}
	return r.RollupIndexName < o.RollupIndexName
}

// ListRollupJobs implements DDL.ListRollupJobs interface. Rows are filtered
// by the caller's alter privilege and sorted by job id, table name, create
// time, finish time, base index name and rollup index name.
func (d *ddl) ListRollupJobs(_ context.Context, user, dbName string) ([]JobListRow, error) {
	db, err := d.catalog.Database(dbName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	jobs := d.runningJobs.ofDB(db.ID)
	rows := make([]JobListRow, 0, len(jobs))
	for _, j := range jobs {
		row := j.ListRow(d.ddlCtx)
		if !d.privChecker.CheckTablePriv(user, dbName, row.TableName, privilege.AlterPriv) {
			continue
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, k int) bool { return rows[i].less(&rows[k]) })
	return rows, nil
}

// ListRow implements AlterJob.
func (j *rollupJob) ListRow(d *ddlCtx) JobListRow {
	j.mu.Lock()
	info := j.info
	row := JobListRow{
		JobID:           info.JobID,
		TableName:       info.TableName.O,
		CreateTime:      time.UnixMilli(info.CreateTimeMs),
		BaseIndexName:   info.BaseIndexName.O,
		RollupIndexName: info.RollupIndexName.O,
		State:           info.State.String(),
		Progress:        "N/A",
		Msg:             info.Reason,
	}
	if info.FinishTimeMs > 0 {
		row.FinishTime = time.UnixMilli(info.FinishTimeMs)
	}
	if info.ForceFinished && row.Msg == "" {
		row.Msg = "force finished with unresolved clear tasks"
	}
	jobID := info.JobID
	total := info.TotalReplicas()
	running := info.State == model.JobStateRunning
	j.mu.Unlock()

	if running {
		succeeded := 0
		for _, task := range d.taskTable.TasksOfJob(jobID, backend.TaskRollup) {
			if task.Status == backend.TaskStatusSucceeded {
				succeeded++
			}
		}
		row.Progress = fmt.Sprintf("%d/%d", succeeded, total)
	}
	return row
}
