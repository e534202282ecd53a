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

package autoid

import (
	"sync"

	"github.com/pingcap/errors"
)

const (
	// IDBatchSize is how many ids one persisted batch covers. Only the batch
	// upper bound hits the log, so allocation is one mutex away from free.
	IDBatchSize int64 = 1000
	// InitialID is the first id ever handed out. Lower ids are reserved.
	InitialID int64 = 10000
)

// BatchPersister records the upper bound of a reserved id batch durably. A
// restart resumes from the highest persisted bound, never reusing an id that
// may already have been handed out.
type BatchPersister interface {
	PersistIDBatchEnd(end int64) error
}

// Allocator hands out globally unique, monotonically increasing ids for every
// catalog object (job, index, tablet, replica). All concurrent DDL shares one
// allocator; the critical section is independent of any table lock.
type Allocator struct {
	mu        sync.Mutex
	nextID    int64
	batchEnd  int64
	persister BatchPersister
}

// NewAllocator creates an Allocator starting at InitialID.
func NewAllocator(persister BatchPersister) *Allocator {
	return &Allocator{
		nextID:    InitialID,
		batchEnd:  InitialID,
		persister: persister,
	}
}

// Next allocates one id.
func (a *Allocator) Next() (int64, error) {
	return a.Alloc(1)
}

// Alloc allocates n consecutive ids and returns the first. The ids are
// [first, first+n). The batch bound is persisted before any id of a new
// batch escapes, so a crash can leak ids but never double-issue them.
func (a *Allocator) Alloc(n int64) (int64, error) {
	if n <= 0 {
		return 0, errors.Errorf("invalid id count %d", n)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.nextID+n > a.batchEnd {
		newEnd := a.batchEnd
		for a.nextID+n > newEnd {
			newEnd += IDBatchSize
		}
		if err := a.persister.PersistIDBatchEnd(newEnd); err != nil {
			return 0, errors.Trace(err)
		}
		a.batchEnd = newEnd
	}
	first := a.nextID
	a.nextID += n
	return first, nil
}

// ReplayBatchEnd lifts the allocator floor to a persisted batch bound. Called
// while replaying the edit log; ids below the bound are considered spent.
func (a *Allocator) ReplayBatchEnd(end int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if end > a.batchEnd {
		a.batchEnd = end
		a.nextID = end
	}
}
