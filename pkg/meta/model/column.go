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

package model

// ColumnInfo provides meta data describing one column of an index schema.
type ColumnInfo struct {
	Name CIStr      `json:"name"`
	Type ColumnType `json:"type"`
	// Len is the declared length for char and varchar columns, zero
	// otherwise.
	Len         int             `json:"len"`
	IsKey       bool            `json:"is_key"`
	Aggregation AggregationType `json:"aggregation"`
}

// Clone clones ColumnInfo.
func (c *ColumnInfo) Clone() *ColumnInfo {
	nc := *c
	return &nc
}

// CloneColumns deep copies a schema.
func CloneColumns(cols []*ColumnInfo) []*ColumnInfo {
	ncs := make([]*ColumnInfo, 0, len(cols))
	for _, c := range cols {
		ncs = append(ncs, c.Clone())
	}
	return ncs
}

// IndexSize returns the byte width the column contributes to the short key.
func (c *ColumnInfo) IndexSize() int {
	return c.Type.IndexSize(c.Len)
}
