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

package catalog

import (
	"sync"

	"github.com/google/btree"
	"github.com/stratumdb/stratum/pkg/meta/model"
)

// TabletMeta locates a tablet inside the catalog tree and carries the schema
// identity its replicas must report.
type TabletMeta struct {
	DBID        int64
	TableID     int64
	PartitionID int64
	IndexID     int64
	SchemaHash  uint32
	Medium      model.StorageMedium
}

type tabletItem struct {
	id   int64
	meta *TabletMeta
}

// TabletInvertedIndex maps every tablet id in the cluster back to its
// position in the catalog tree. Backend reports and repair decisions resolve
// tablets through it, so registrations must stay exactly symmetric: whoever
// adds a tablet on build removes it on drop or cancel.
type TabletInvertedIndex struct {
	mu      sync.RWMutex
	tablets *btree.BTreeG[tabletItem]
}

// NewTabletInvertedIndex creates an empty index.
func NewTabletInvertedIndex() *TabletInvertedIndex {
	return &TabletInvertedIndex{
		tablets: btree.NewG(8, func(a, b tabletItem) bool { return a.id < b.id }),
	}
}

// AddTablet registers a tablet. Re-adding an id overwrites its meta.
func (ti *TabletInvertedIndex) AddTablet(tabletID int64, meta *TabletMeta) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.tablets.ReplaceOrInsert(tabletItem{id: tabletID, meta: meta})
}

// DeleteTablet removes a tablet registration. Unknown ids are a no-op, so
// replay after a live drop stays idempotent.
func (ti *TabletInvertedIndex) DeleteTablet(tabletID int64) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.tablets.Delete(tabletItem{id: tabletID})
}

// GetTabletMeta resolves a tablet id.
func (ti *TabletInvertedIndex) GetTabletMeta(tabletID int64) (*TabletMeta, bool) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	item, ok := ti.tablets.Get(tabletItem{id: tabletID})
	if !ok {
		return nil, false
	}
	return item.meta, true
}

// Len returns the number of registered tablets.
func (ti *TabletInvertedIndex) Len() int {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	return ti.tablets.Len()
}

// Ascend visits every tablet in id order until fn returns false.
func (ti *TabletInvertedIndex) Ascend(fn func(tabletID int64, meta *TabletMeta) bool) {
	ti.mu.RLock()
	defer ti.mu.RUnlock()
	ti.tablets.Ascend(func(item tabletItem) bool {
		return fn(item.id, item.meta)
	})
}

// TabletIDsOfIndex collects the tablets registered under one materialized
// index.
func (ti *TabletInvertedIndex) TabletIDsOfIndex(indexID int64) []int64 {
	var ids []int64
	ti.Ascend(func(tabletID int64, meta *TabletMeta) bool {
		if meta.IndexID == indexID {
			ids = append(ids, tabletID)
		}
		return true
	})
	return ids
}
