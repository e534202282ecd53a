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
	"strconv"

	"github.com/pingcap/errors"
)

// PropertyShortKey overrides the derived short key column count.
const PropertyShortKey = "short_key"

const (
	shortKeyMaxColumnCount = 3
	shortKeyMaxBytes       = 36
)

func couldBeShortKey(t ColumnType) bool {
	switch t {
	case TypeFloat, TypeDouble, TypeHLL, TypeBitmap:
		return false
	}
	return true
}

// CalcShortKeyColumnCount returns how many leading key columns form the sort
// index prefix of an index schema. A short_key property wins if present and
// within [1, key column count]. Otherwise leading key columns are taken until
// either the column or byte cap is hit; a varchar column is taken and
// terminates the walk, a column that overflows the byte cap is taken only if
// it is a character column.
func CalcShortKeyColumnCount(schema []*ColumnInfo, properties map[string]string) (int, error) {
	keyCols := make([]*ColumnInfo, 0, len(schema))
	for _, c := range schema {
		if c.IsKey {
			keyCols = append(keyCols, c)
		}
	}
	if len(keyCols) == 0 {
		return 0, errors.New("schema has no key column")
	}

	if v, ok := properties[PropertyShortKey]; ok {
		cnt, err := strconv.Atoi(v)
		if err != nil {
			return 0, errors.Errorf("invalid short_key property %q", v)
		}
		if cnt < 1 || cnt > len(keyCols) {
			return 0, errors.Errorf("short_key %d out of range [1, %d]", cnt, len(keyCols))
		}
		return cnt, nil
	}

	cnt := 0
	sizeBytes := 0
	maxCnt := len(keyCols)
	if maxCnt > shortKeyMaxColumnCount {
		maxCnt = shortKeyMaxColumnCount
	}
	for i := 0; i < maxCnt; i++ {
		col := keyCols[i]
		sizeBytes += col.IndexSize()
		if sizeBytes > shortKeyMaxBytes {
			if col.Type == TypeChar || col.Type == TypeVarchar {
				cnt++
			}
			break
		}
		if !couldBeShortKey(col.Type) {
			break
		}
		if col.Type == TypeVarchar {
			cnt++
			break
		}
		cnt++
	}
	if cnt == 0 {
		return 0, errors.Errorf("first key column %s can not start the short key", keyCols[0].Name)
	}
	return cnt, nil
}
