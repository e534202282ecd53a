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

package dbterror

import (
	"fmt"

	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// ErrClass represents a class of errors. Errors created through a class carry
// an RFC code of the form "<class>:<code>", so a log line or a job's cancel
// reason can be traced back to the subsystem that produced it.
type ErrClass struct {
	name string
}

// Error classes.
var (
	ClassDDL     = ErrClass{"ddl"}
	ClassCatalog = ErrClass{"catalog"}
	ClassAutoid  = ErrClass{"autoid"}
	ClassEditLog = ErrClass{"editlog"}
	ClassBackend = ErrClass{"backend"}
)

// String implements fmt.Stringer interface.
func (ec ErrClass) String() string {
	return ec.name
}

// New defines an error of the class with the given code and message template.
// Callers instantiate it with GenWithStackByArgs or FastGenByArgs and compare
// with Equal.
func (ec ErrClass) New(code int, format string) *errors.Error {
	return errors.Normalize(format, errors.RFCCodeText(fmt.Sprintf("%s:%d", ec.name, code)))
}

// MustNil cleans up and fatals if err is not nil. Boot-time use only.
func MustNil(err error, closeFuns ...func()) {
	if err != nil {
		for _, f := range closeFuns {
			f()
		}
		log.Fatal("encountered error", zap.Error(errors.AddStack(err)), zap.Stack("stack"))
	}
}
