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

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func key(name string, typ ColumnType, length int) *ColumnInfo {
	return &ColumnInfo{Name: NewCIStr(name), Type: typ, Len: length, IsKey: true}
}

func value(name string, typ ColumnType) *ColumnInfo {
	return &ColumnInfo{Name: NewCIStr(name), Type: typ, Aggregation: AggSum}
}

func TestCalcShortKeyColumnCount(t *testing.T) {
	cases := []struct {
		name   string
		schema []*ColumnInfo
		props  map[string]string
		want   int
		errMsg string
	}{
		{
			name:   "column cap",
			schema: []*ColumnInfo{key("k1", TypeInt, 0), key("k2", TypeInt, 0), key("k3", TypeInt, 0), key("k4", TypeInt, 0)},
			want:   3,
		},
		{
			name:   "fewer keys than cap",
			schema: []*ColumnInfo{key("k1", TypeInt, 0), key("k2", TypeInt, 0), value("v1", TypeBigInt)},
			want:   2,
		},
		{
			name:   "varchar terminates",
			schema: []*ColumnInfo{key("k1", TypeInt, 0), key("k2", TypeVarchar, 16), key("k3", TypeInt, 0)},
			want:   2,
		},
		{
			name:   "byte cap excludes non char overflow",
			schema: []*ColumnInfo{key("k1", TypeChar, 32), key("k2", TypeBigInt, 0), key("k3", TypeInt, 0)},
			want:   1,
		},
		{
			name:   "byte cap keeps char overflow",
			schema: []*ColumnInfo{key("k1", TypeBigInt, 0), key("k2", TypeChar, 40), key("k3", TypeInt, 0)},
			want:   2,
		},
		{
			name:   "float stops the walk",
			schema: []*ColumnInfo{key("k1", TypeInt, 0), key("k2", TypeFloat, 0), key("k3", TypeInt, 0)},
			want:   1,
		},
		{
			name:   "first key float rejected",
			schema: []*ColumnInfo{key("k1", TypeDouble, 0), key("k2", TypeInt, 0)},
			errMsg: "can not start the short key",
		},
		{
			name:   "property override",
			schema: []*ColumnInfo{key("k1", TypeInt, 0), key("k2", TypeInt, 0), key("k3", TypeInt, 0), key("k4", TypeInt, 0)},
			props:  map[string]string{PropertyShortKey: "4"},
			want:   4,
		},
		{
			name:   "property out of range",
			schema: []*ColumnInfo{key("k1", TypeInt, 0), key("k2", TypeInt, 0)},
			props:  map[string]string{PropertyShortKey: "3"},
			errMsg: "out of range",
		},
		{
			name:   "property not a number",
			schema: []*ColumnInfo{key("k1", TypeInt, 0)},
			props:  map[string]string{PropertyShortKey: "abc"},
			errMsg: "invalid short_key",
		},
		{
			name:   "no key column",
			schema: []*ColumnInfo{value("v1", TypeInt)},
			errMsg: "no key column",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CalcShortKeyColumnCount(tc.schema, tc.props)
			if tc.errMsg != "" {
				require.ErrorContains(t, err, tc.errMsg)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
