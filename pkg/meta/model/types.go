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

// KeysType is the key model of a table. It decides how rows sharing the same
// key columns are merged and which rollup schemas are derivable.
type KeysType byte

// Key models.
const (
	// UniqueKeys tables keep the latest row per key.
	UniqueKeys KeysType = iota + 1
	// AggregateKeys tables merge value columns by their aggregation kind.
	AggregateKeys
	// DuplicateKeys tables keep every row; keys only order the data.
	DuplicateKeys
)

// String implements fmt.Stringer interface.
func (t KeysType) String() string {
	switch t {
	case UniqueKeys:
		return "UNIQUE_KEYS"
	case AggregateKeys:
		return "AGG_KEYS"
	case DuplicateKeys:
		return "DUP_KEYS"
	}
	return "unknown"
}

// AggregationType is how a value column merges rows sharing a key.
type AggregationType byte

// Aggregation kinds.
const (
	// AggNone marks a column without aggregation, used by duplicate tables
	// and by key columns everywhere.
	AggNone AggregationType = iota
	AggSum
	AggMin
	AggMax
	// AggReplace keeps the latest value. A unique table's value columns all
	// carry it implicitly.
	AggReplace
	AggHLLUnion
	AggBitmapUnion
)

// String implements fmt.Stringer interface.
func (t AggregationType) String() string {
	switch t {
	case AggNone:
		return "NONE"
	case AggSum:
		return "SUM"
	case AggMin:
		return "MIN"
	case AggMax:
		return "MAX"
	case AggReplace:
		return "REPLACE"
	case AggHLLUnion:
		return "HLL_UNION"
	case AggBitmapUnion:
		return "BITMAP_UNION"
	}
	return "unknown"
}

// ColumnType is the storage type of a column.
type ColumnType byte

// Column types.
const (
	TypeBool ColumnType = iota + 1
	TypeTinyInt
	TypeSmallInt
	TypeInt
	TypeBigInt
	TypeFloat
	TypeDouble
	TypeDate
	TypeDatetime
	TypeChar
	TypeVarchar
	TypeHLL
	TypeBitmap
)

// String implements fmt.Stringer interface.
func (t ColumnType) String() string {
	switch t {
	case TypeBool:
		return "BOOLEAN"
	case TypeTinyInt:
		return "TINYINT"
	case TypeSmallInt:
		return "SMALLINT"
	case TypeInt:
		return "INT"
	case TypeBigInt:
		return "BIGINT"
	case TypeFloat:
		return "FLOAT"
	case TypeDouble:
		return "DOUBLE"
	case TypeDate:
		return "DATE"
	case TypeDatetime:
		return "DATETIME"
	case TypeChar:
		return "CHAR"
	case TypeVarchar:
		return "VARCHAR"
	case TypeHLL:
		return "HLL"
	case TypeBitmap:
		return "BITMAP"
	}
	return "unknown"
}

// IndexSize returns the per-row byte width this type contributes to the
// short key index. Char columns contribute their declared length and varchar
// columns a fixed slice prefix.
func (t ColumnType) IndexSize(declaredLen int) int {
	switch t {
	case TypeBool, TypeTinyInt:
		return 1
	case TypeSmallInt:
		return 2
	case TypeInt, TypeFloat, TypeDate:
		return 4
	case TypeBigInt, TypeDouble, TypeDatetime:
		return 8
	case TypeChar:
		return declaredLen
	case TypeVarchar:
		return varcharIndexSize
	}
	// HLL and bitmap columns never join the short key.
	return 16
}

// varcharIndexSize is the sort key prefix stored for a varchar column.
const varcharIndexSize = 20

// StorageMedium is the disk class a partition's tablets live on.
type StorageMedium byte

// Storage media.
const (
	StorageMediumHDD StorageMedium = iota
	StorageMediumSSD
)

// String implements fmt.Stringer interface.
func (m StorageMedium) String() string {
	switch m {
	case StorageMediumSSD:
		return "SSD"
	default:
		return "HDD"
	}
}
