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

//go:build !intest

package intest

// InTest checks if the code is running in test.
const InTest = false

// Assert is a stub function in release build.
// See the `intest` build tag version for the real assertion.
func Assert(_ bool, _ ...any) {}

// AssertNoError is a stub function in release build.
func AssertNoError(_ error, _ ...any) {}

// AssertNotNil is a stub function in release build.
func AssertNotNil(_ any, _ ...any) {}
