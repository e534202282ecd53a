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
	"bytes"
	"encoding/binary"
	"math"
	"sort"
	"strings"

	"github.com/twmb/murmur3"
)

// SchemaHash hashes a schema together with its bloom filter settings. It is a
// pure function: re-deriving it from equal inputs yields the same value, so a
// replica built remotely and the catalog agree on the schema identity.
// Column order is significant, bloom filter column order is not.
func SchemaHash(schemaVersion int32, cols []*ColumnInfo, bfColumns []string, bfFpp float64) uint32 {
	var buf bytes.Buffer
	var scratch [8]byte
	binary.BigEndian.PutUint32(scratch[:4], uint32(schemaVersion))
	buf.Write(scratch[:4])
	for _, c := range cols {
		buf.WriteString(c.Name.L)
		buf.WriteByte(0)
		buf.WriteByte(byte(c.Type))
		binary.BigEndian.PutUint32(scratch[:4], uint32(c.Len))
		buf.Write(scratch[:4])
		if c.IsKey {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		buf.WriteByte(byte(c.Aggregation))
	}
	if len(bfColumns) > 0 {
		lowered := make([]string, 0, len(bfColumns))
		for _, name := range bfColumns {
			lowered = append(lowered, strings.ToLower(name))
		}
		sort.Strings(lowered)
		for _, name := range lowered {
			buf.WriteString(name)
			buf.WriteByte(0)
		}
		binary.BigEndian.PutUint64(scratch[:], math.Float64bits(bfFpp))
		buf.Write(scratch[:])
	}
	return murmur3.Sum32(buf.Bytes())
}
