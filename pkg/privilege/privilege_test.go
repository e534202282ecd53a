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

package privilege

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllowAll(t *testing.T) {
	require.True(t, AllowAll().CheckTablePriv("anyone", "db", "tbl", AlterPriv))
}

func TestStaticChecker(t *testing.T) {
	c := NewStaticChecker()
	require.False(t, c.CheckTablePriv("alice", "db", "tbl", AlterPriv))

	c.Grant("alice", "DB", "Tbl", AlterPriv)
	require.True(t, c.CheckTablePriv("alice", "db", "TBL", AlterPriv))
	require.False(t, c.CheckTablePriv("alice", "db", "tbl", SelectPriv))
	require.False(t, c.CheckTablePriv("bob", "db", "tbl", AlterPriv))

	c.Grant("bob", "db", Wildcard, AlterPriv)
	require.True(t, c.CheckTablePriv("bob", "db", "anything", AlterPriv))
	require.False(t, c.CheckTablePriv("bob", "other", "anything", AlterPriv))

	c.Grant("root", Wildcard, Wildcard, AlterPriv)
	require.True(t, c.CheckTablePriv("root", "any", "thing", AlterPriv))
}
