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

package config

import (
	"github.com/docker/go-units"
	"github.com/pingcap/errors"
)

// ByteSize is an int64 that accepts human-readable sizes like "128MB" when
// read from TOML. It marshals back as a plain byte count.
type ByteSize int64

// UnmarshalText implements encoding.TextUnmarshaler.
func (size *ByteSize) UnmarshalText(b []byte) error {
	res, err := units.RAMInBytes(string(b))
	if err != nil {
		return errors.Trace(err)
	}
	*size = ByteSize(res)
	return nil
}
