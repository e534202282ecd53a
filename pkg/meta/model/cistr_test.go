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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCIStr(t *testing.T) {
	s := NewCIStr("RollupIdx")
	require.Equal(t, "RollupIdx", s.O)
	require.Equal(t, "rollupidx", s.L)
	require.Equal(t, "RollupIdx", s.String())
	require.True(t, s.Equal(NewCIStr("ROLLUPIDX")))
	require.False(t, s.Equal(NewCIStr("other")))
	require.False(t, s.Empty())
	require.True(t, CIStr{}.Empty())
}

func TestCIStrUnmarshalJSON(t *testing.T) {
	var s CIStr
	require.NoError(t, json.Unmarshal([]byte(`"MixedCase"`), &s))
	require.Equal(t, "MixedCase", s.O)
	require.Equal(t, "mixedcase", s.L)

	// The struct form recomputes the lower case field.
	require.NoError(t, json.Unmarshal([]byte(`{"O":"MixedCase","L":"stale"}`), &s))
	require.Equal(t, "MixedCase", s.O)
	require.Equal(t, "mixedcase", s.L)
}
