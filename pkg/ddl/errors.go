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

package ddl

import (
	"github.com/stratumdb/stratum/pkg/util/dbterror"
)

// Validation errors returned synchronously to the caller. Nothing is mutated
// when one of these is returned.
var (
	// ErrTableStateNotNormal guards every structural change: a table under an
	// unfinished alter admits no new add or drop request.
	ErrTableStateNotNormal = dbterror.ClassDDL.New(1, "table %s state is %s, waiting for the current alter job to finish")
	// ErrUnfinishedAlterJob is the registry-level form of the same guard.
	ErrUnfinishedAlterJob = dbterror.ClassDDL.New(2, "table %d already has unfinished alter job %d")
	// ErrRollupExists rejects a duplicate rollup name.
	ErrRollupExists = dbterror.ClassDDL.New(3, "rollup index %s already exists in table %s")
	// ErrRollupNotExists rejects a drop of an unknown rollup.
	ErrRollupNotExists = dbterror.ClassDDL.New(4, "rollup index %s does not exist in table %s")
	// ErrDropBaseIndex rejects dropping the index that carries the full schema.
	ErrDropBaseIndex = dbterror.ClassDDL.New(5, "index %s is the base index of table %s, drop the table instead")
	// ErrBaseIndexNotExists rejects an add-rollup naming an unknown base.
	ErrBaseIndexNotExists = dbterror.ClassDDL.New(6, "base index %s does not exist in table %s")

	// Schema derivation errors.
	ErrEmptyRollupColumns = dbterror.ClassDDL.New(10, "rollup %s has no column")
	ErrColumnNotFound     = dbterror.ClassDDL.New(11, "column %s does not exist in base index")
	ErrDupRollupColumn    = dbterror.ClassDDL.New(12, "duplicate column %s in rollup")
	ErrInvalidColumnOrder = dbterror.ClassDDL.New(13, "invalid column order: key column %s must precede value columns")
	ErrMissingBaseKeys    = dbterror.ClassDDL.New(14, "rollup must contain all key columns of the base table when %s")
	ErrMissingDupKey      = dbterror.ClassDDL.New(15, "rollup must contain base table's duplicate key column %s")
	ErrDupKeysNotPrefix   = dbterror.ClassDDL.New(16, "duplicate keys must be the prefix of rollup columns")
	ErrDupKeysNotAllowed  = dbterror.ClassDDL.New(17, "explicit duplicate keys are only valid for duplicate keys tables")
	ErrNoKeyColumn        = dbterror.ClassDDL.New(18, "rollup contains no key column")

	// ErrTabletFewReplicas fails the build when a base tablet has too few
	// eligible replicas to host the rollup.
	ErrTabletFewReplicas = dbterror.ClassDDL.New(20, "base tablet %d has too few eligible replicas: %d of %d")

	// Cancellation errors.
	ErrNoAlterJobOnTable = dbterror.ClassDDL.New(30, "table %s has no running alter job")
	ErrCancelFinishedJob = dbterror.ClassDDL.New(31, "alter job %d is %s and can not be cancelled")
	ErrInvalidJobTimeout = dbterror.ClassDDL.New(32, "invalid alter job timeout %q")
)
