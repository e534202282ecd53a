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

package catalog

import (
	"github.com/stratumdb/stratum/pkg/util/dbterror"
)

// Catalog error definitions.
var (
	ErrDatabaseExists         = dbterror.ClassCatalog.New(1, "database %v already exists")
	ErrDatabaseNotExists      = dbterror.ClassCatalog.New(2, "database %v does not exist")
	ErrTableExists            = dbterror.ClassCatalog.New(3, "table %v already exists")
	ErrTableNotExists         = dbterror.ClassCatalog.New(4, "table %v does not exist")
	ErrReplicaOnBackendExists = dbterror.ClassCatalog.New(5, "tablet %d already has a replica on backend %d")
)
