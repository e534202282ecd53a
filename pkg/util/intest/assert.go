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

//go:build intest

package intest

import (
	"fmt"
	"reflect"
)

// InTest checks if the code is running in test.
const InTest = true

// Assert panics when cond is false. It is compiled in only under the intest
// build tag; production builds get the no-op stub.
func Assert(cond bool, msgAndArgs ...any) {
	if !cond {
		doPanic(msgAndArgs...)
	}
}

// AssertNoError panics when err is not nil.
func AssertNoError(err error, msgAndArgs ...any) {
	if err != nil {
		doPanic(append([]any{fmt.Sprintf("error is not nil: %+v", err)}, msgAndArgs...)...)
	}
}

// AssertNotNil panics when the object is nil.
func AssertNotNil(obj any, msgAndArgs ...any) {
	Assert(obj != nil, msgAndArgs...)
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Ptr, reflect.Slice:
		Assert(!v.IsNil(), msgAndArgs...)
	}
}

func doPanic(msgAndArgs ...any) {
	panic(assertionFailedMsg(msgAndArgs...))
}

func assertionFailedMsg(msgAndArgs ...any) string {
	if len(msgAndArgs) == 0 {
		return "assert failed"
	}
	if format, ok := msgAndArgs[0].(string); ok {
		return fmt.Sprintf("assert failed: "+format, msgAndArgs[1:]...)
	}
	return fmt.Sprintf("assert failed: %v", msgAndArgs...)
}
