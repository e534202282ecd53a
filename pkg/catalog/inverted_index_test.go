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
	"testing"

	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stretchr/testify/require"
)

func TestTabletInvertedIndex(t *testing.T) {
	ti := NewTabletInvertedIndex()
	require.Zero(t, ti.Len())

	meta := &TabletMeta{DBID: 1, TableID: 2, PartitionID: 3, IndexID: 4, SchemaHash: 99}
	ti.AddTablet(30, meta)
	ti.AddTablet(10, &TabletMeta{IndexID: 4})
	ti.AddTablet(20, &TabletMeta{IndexID: 5})
	require.Equal(t, 3, ti.Len())

	got, ok := ti.GetTabletMeta(30)
	require.True(t, ok)
	require.Equal(t, meta, got)
	_, ok = ti.GetTabletMeta(31)
	require.False(t, ok)

	var order []int64
	ti.Ascend(func(tabletID int64, _ *TabletMeta) bool {
		order = append(order, tabletID)
		return true
	})
	require.Equal(t, []int64{10, 20, 30}, order)

	require.ElementsMatch(t, []int64{10, 30}, ti.TabletIDsOfIndex(4))

	ti.DeleteTablet(10)
	ti.DeleteTablet(10) // deleting twice is a no-op
	require.Equal(t, 2, ti.Len())
	require.ElementsMatch(t, []int64{30}, ti.TabletIDsOfIndex(4))
}

func TestTabletInvertedIndexOverwrite(t *testing.T) {
	ti := NewTabletInvertedIndex()
	ti.AddTablet(7, &TabletMeta{SchemaHash: 1})
	ti.AddTablet(7, &TabletMeta{SchemaHash: 2})
	require.Equal(t, 1, ti.Len())
	meta, ok := ti.GetTabletMeta(7)
	require.True(t, ok)
	require.Equal(t, uint32(2), meta.SchemaHash)
	require.Equal(t, model.StorageMediumHDD, meta.Medium)
}
