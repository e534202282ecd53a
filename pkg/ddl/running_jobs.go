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
	"sort"
	"sync"
)

// runningJobs is the registry of alter jobs: live jobs keyed by id, a table
// reverse index enforcing one unfinished job per table, and terminal jobs
// retained in an append-only history for listing. Its mutex only guards the
// maps; job state itself is guarded by the owning table's lock.
type runningJobs struct {
	mu sync.RWMutex

	running    map[int64]AlterJob
	tableToJob map[int64]int64
	history    []AlterJob
}

func newRunningJobs() *runningJobs {
	return &runningJobs{
		running:    make(map[int64]AlterJob),
		tableToJob: make(map[int64]int64),
	}
}

// add registers a job. A second unfinished job on the same table is rejected.
// Jobs arriving already terminal (replay of a truncated log) go straight to
// history.
func (rj *runningJobs) add(j AlterJob) error {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	if j.IsDone() {
		rj.history = append(rj.history, j)
		return nil
	}
	if jobID, ok := rj.tableToJob[j.TableID()]; ok {
		return ErrUnfinishedAlterJob.GenWithStackByArgs(j.TableID(), jobID)
	}
	rj.running[j.JobID()] = j
	rj.tableToJob[j.TableID()] = j.JobID()
	return nil
}

// remove withdraws a job whose creation could not be persisted. It never
// touches history.
func (rj *runningJobs) remove(j AlterJob) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	delete(rj.running, j.JobID())
	if rj.tableToJob[j.TableID()] == j.JobID() {
		delete(rj.tableToJob, j.TableID())
	}
}

// get resolves a job id among both live and terminal jobs.
func (rj *runningJobs) get(jobID int64) (AlterJob, bool) {
	rj.mu.RLock()
	defer rj.mu.RUnlock()
	if j, ok := rj.running[jobID]; ok {
		return j, true
	}
	for _, j := range rj.history {
		if j.JobID() == jobID {
			return j, true
		}
	}
	return nil, false
}

// liveOnTable returns the unfinished job on a table, if any.
func (rj *runningJobs) liveOnTable(tableID int64) (AlterJob, bool) {
	rj.mu.RLock()
	defer rj.mu.RUnlock()
	jobID, ok := rj.tableToJob[tableID]
	if !ok {
		return nil, false
	}
	return rj.running[jobID], true
}

// otherLiveOnTable reports whether the table has an unfinished job besides
// the given one. The table state returns to NORMAL only when this is false.
func (rj *runningJobs) otherLiveOnTable(tableID, excludeJobID int64) bool {
	rj.mu.RLock()
	defer rj.mu.RUnlock()
	jobID, ok := rj.tableToJob[tableID]
	return ok && jobID != excludeJobID
}

// markDone moves a terminal job from the live map into history. Calling it
// twice for the same job is a no-op.
func (rj *runningJobs) markDone(j AlterJob) {
	rj.mu.Lock()
	defer rj.mu.Unlock()
	if _, ok := rj.running[j.JobID()]; !ok {
		return
	}
	delete(rj.running, j.JobID())
	if rj.tableToJob[j.TableID()] == j.JobID() {
		delete(rj.tableToJob, j.TableID())
	}
	rj.history = append(rj.history, j)
}

// live snapshots the unfinished jobs in job id order, so a driver tick visits
// them deterministically.
func (rj *runningJobs) live() []AlterJob {
	rj.mu.RLock()
	defer rj.mu.RUnlock()
	jobs := make([]AlterJob, 0, len(rj.running))
	for _, j := range rj.running {
		jobs = append(jobs, j)
	}
	sort.Slice(jobs, func(i, k int) bool { return jobs[i].JobID() < jobs[k].JobID() })
	return jobs
}

// ofDB snapshots every job, live and terminal, belonging to one database.
func (rj *runningJobs) ofDB(dbID int64) []AlterJob {
	rj.mu.RLock()
	defer rj.mu.RUnlock()
	var jobs []AlterJob
	for _, j := range rj.running {
		if j.DBID() == dbID {
			jobs = append(jobs, j)
		}
	}
	for _, j := range rj.history {
		if j.DBID() == dbID {
			jobs = append(jobs, j)
		}
	}
	return jobs
}
