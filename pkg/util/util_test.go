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

package util

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWithRecovery(t *testing.T) {
	var got any
	WithRecovery(func() {
		panic("boom")
	}, func(r any) {
		got = r
	})
	require.Equal(t, "boom", got)

	called := false
	WithRecovery(func() {}, func(r any) {
		called = true
		require.Nil(t, r)
	})
	require.True(t, called)
}

func TestWaitGroupWrapper(t *testing.T) {
	var wg WaitGroupWrapper
	ch := make(chan struct{}, 2)
	wg.Run(func() { ch <- struct{}{} })
	wg.RunWithRecover(func() {
		ch <- struct{}{}
		panic("recovered")
	}, nil)
	wg.Wait()
	require.Len(t, ch, 2)
}
