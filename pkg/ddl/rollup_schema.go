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
	"strings"

	"github.com/stratumdb/stratum/pkg/meta/model"
)

// deriveRollupSchema validates the requested rollup columns against the base
// schema and the table's key model and returns the fully annotated derived
// schema. It is a pure function: every error is synchronous and nothing is
// mutated on any path.
//
// The rules differ by key model:
//   - unique keys, or aggregate keys with a replace value column requested:
//     every base key column must be requested, so that the replaced value
//     stays well defined per key.
//   - duplicate keys without an explicit key list: the base table's leading
//     key run must be fully present and keeps its key flags.
//   - duplicate keys with an explicit key list: the list must be a positional
//     case-insensitive prefix of the requested columns and defines the new
//     key set from scratch.
func deriveRollupSchema(keysType model.KeysType, baseSchema []*model.ColumnInfo, rollupCols, dupKeys []string) ([]*model.ColumnInfo, error) {
	if len(dupKeys) > 0 && keysType != model.DuplicateKeys {
		return nil, ErrDupKeysNotAllowed.GenWithStackByArgs()
	}

	baseByName := make(map[string]*model.ColumnInfo, len(baseSchema))
	for _, col := range baseSchema {
		baseByName[col.Name.L] = col
	}
	seen := make(map[string]struct{}, len(rollupCols))
	for _, name := range rollupCols {
		lowered := strings.ToLower(name)
		if _, ok := baseByName[lowered]; !ok {
			return nil, ErrColumnNotFound.GenWithStackByArgs(name)
		}
		if _, ok := seen[lowered]; ok {
			return nil, ErrDupRollupColumn.GenWithStackByArgs(name)
		}
		seen[lowered] = struct{}{}
	}

	if keysType == model.DuplicateKeys && len(dupKeys) > 0 {
		return deriveWithDupKeys(baseByName, rollupCols, dupKeys)
	}

	if keysType == model.DuplicateKeys {
		// The base's leading key run must be fully present; its columns keep
		// their key flags in the derived schema.
		for _, col := range baseSchema {
			if !col.IsKey {
				break
			}
			if _, ok := seen[col.Name.L]; !ok {
				return nil, ErrMissingDupKey.GenWithStackByArgs(col.Name.O)
			}
		}
	}

	schema := make([]*model.ColumnInfo, 0, len(rollupCols))
	keyCount, hasReplace := 0, false
	meetValue := false
	for _, name := range rollupCols {
		col := baseByName[strings.ToLower(name)]
		if col.IsKey && meetValue {
			return nil, ErrInvalidColumnOrder.GenWithStackByArgs(col.Name.O)
		}
		if col.IsKey {
			keyCount++
		} else {
			meetValue = true
			if col.Aggregation == model.AggReplace {
				hasReplace = true
			}
		}
		schema = append(schema, col.Clone())
	}

	if keysType == model.UniqueKeys || (keysType == model.AggregateKeys && hasReplace) {
		baseKeyCount := 0
		for _, col := range baseSchema {
			if col.IsKey {
				baseKeyCount++
			}
		}
		if keyCount != baseKeyCount {
			cause := "the key model is unique keys"
			if keysType == model.AggregateKeys {
				cause = "a value column uses replace aggregation"
			}
			return nil, ErrMissingBaseKeys.GenWithStackByArgs(cause)
		}
	}
	if keyCount == 0 {
		return nil, ErrNoKeyColumn.GenWithStackByArgs()
	}
	return schema, nil
}

// deriveWithDupKeys handles the explicit duplicate-key form: the keys redefine
// the leading prefix, every remaining column becomes a bare value.
func deriveWithDupKeys(baseByName map[string]*model.ColumnInfo, rollupCols, dupKeys []string) ([]*model.ColumnInfo, error) {
	if len(dupKeys) > len(rollupCols) {
		return nil, ErrDupKeysNotPrefix.GenWithStackByArgs()
	}
	for i, key := range dupKeys {
		if !strings.EqualFold(key, rollupCols[i]) {
			return nil, ErrDupKeysNotPrefix.GenWithStackByArgs()
		}
	}

	schema := make([]*model.ColumnInfo, 0, len(rollupCols))
	for i, name := range rollupCols {
		col := baseByName[strings.ToLower(name)].Clone()
		col.IsKey = i < len(dupKeys)
		col.Aggregation = model.AggNone
		schema = append(schema, col)
	}
	return schema, nil
}
