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

func testSchema() []*ColumnInfo {
	return []*ColumnInfo{
		{Name: NewCIStr("k1"), Type: TypeInt, IsKey: true},
		{Name: NewCIStr("k2"), Type: TypeVarchar, Len: 32, IsKey: true},
		{Name: NewCIStr("v1"), Type: TypeBigInt, Aggregation: AggSum},
	}
}

func TestSchemaHashDeterministic(t *testing.T) {
	h1 := SchemaHash(0, testSchema(), []string{"k2", "v1"}, 0.05)
	h2 := SchemaHash(0, testSchema(), []string{"k2", "v1"}, 0.05)
	require.Equal(t, h1, h2)

	// Bloom filter column order does not matter.
	h3 := SchemaHash(0, testSchema(), []string{"V1", "K2"}, 0.05)
	require.Equal(t, h1, h3)
}

func TestSchemaHashSensitivity(t *testing.T) {
	base := SchemaHash(0, testSchema(), nil, 0)

	swapped := testSchema()
	swapped[0], swapped[1] = swapped[1], swapped[0]
	require.NotEqual(t, base, SchemaHash(0, swapped, nil, 0))

	agg := testSchema()
	agg[2].Aggregation = AggMax
	require.NotEqual(t, base, SchemaHash(0, agg, nil, 0))

	key := testSchema()
	key[2].IsKey = true
	require.NotEqual(t, base, SchemaHash(0, key, nil, 0))

	require.NotEqual(t, base, SchemaHash(1, testSchema(), nil, 0))
	require.NotEqual(t,
		SchemaHash(0, testSchema(), []string{"k2"}, 0.05),
		SchemaHash(0, testSchema(), []string{"k2"}, 0.01))
}
