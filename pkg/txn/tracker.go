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

// Package txn tracks load transactions just enough to answer the alter job's
// consistency barrier: have all transactions that began at or below a
// watermark drained?
package txn

import (
	"sync"
)

// Tracker issues transaction ids and remembers which are still running.
type Tracker struct {
	mu      sync.Mutex
	lastID  int64
	running map[int64]map[int64]struct{} // txn id -> table ids written
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{running: make(map[int64]map[int64]struct{})}
}

// Begin starts a transaction writing the given tables and returns its id.
func (t *Tracker) Begin(tableIDs ...int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastID++
	tables := make(map[int64]struct{}, len(tableIDs))
	for _, id := range tableIDs {
		tables[id] = struct{}{}
	}
	t.running[t.lastID] = tables
	return t.lastID
}

// Finish marks a transaction drained. Unknown ids are a no-op.
func (t *Tracker) Finish(txnID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.running, txnID)
}

// Watershed returns the highest id issued so far. Every transaction that
// began before this call has an id at or below it.
func (t *Tracker) Watershed() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastID
}

// IsPreviousTxnsFinished reports whether no transaction with id at or below
// the watermark still writes the table.
func (t *Tracker) IsPreviousTxnsFinished(watermark int64, tableID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tables := range t.running {
		if id > watermark {
			continue
		}
		if _, ok := tables[tableID]; ok {
			return false
		}
	}
	return true
}
