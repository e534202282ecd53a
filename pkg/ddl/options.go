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
	"time"

	"github.com/stratumdb/stratum/pkg/backend"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/privilege"
)

// Default knobs of the job driver. All of them can be overridden through
// options; tests shrink the intervals.
const (
	// DefJobCheckInterval is how often the driver ticks live jobs.
	DefJobCheckInterval = time.Second
	// DefJobTimeout bounds every wait of one alter job, from creation to the
	// finishing barrier.
	DefJobTimeout = 24 * time.Hour
	// DefMaxReplicaFailures is how many times one replica build may fail
	// before the whole job is cancelled.
	DefMaxReplicaFailures = 3
	// DefClearTaskResendLimit is how many rounds of clear notifications are
	// resent before an unresolved job is force finished.
	DefClearTaskResendLimit = 3
)

// Option represents an option to initialize the DDL module.
type Option func(*Options)

// Options represents all the options the DDL module needs.
type Options struct {
	Catalog     *catalog.Catalog
	EditLog     EditLogger
	IDAllocator IDAllocator
	TxnTracker  TxnTracker
	Dispatcher  backend.TaskDispatcher
	TaskTable   *backend.TaskTable
	PrivChecker privilege.Checker

	JobCheckInterval     time.Duration
	JobTimeout           time.Duration
	MaxReplicaFailures   int
	ClearTaskResendLimit int
}

// WithCatalog specifies the catalog the handlers and the driver mutate.
func WithCatalog(c *catalog.Catalog) Option {
	return func(options *Options) {
		options.Catalog = c
	}
}

// WithEditLog specifies where committed transitions are persisted.
func WithEditLog(l EditLogger) Option {
	return func(options *Options) {
		options.EditLog = l
	}
}

// WithIDAllocator specifies the shared monotonic id source.
func WithIDAllocator(a IDAllocator) Option {
	return func(options *Options) {
		options.IDAllocator = a
	}
}

// WithTxnTracker specifies the transaction watermark source used by the
// finishing barrier.
func WithTxnTracker(t TxnTracker) Option {
	return func(options *Options) {
		options.TxnTracker = t
	}
}

// WithDispatcher specifies how tasks reach backends.
func WithDispatcher(d backend.TaskDispatcher) Option {
	return func(options *Options) {
		options.Dispatcher = d
	}
}

// WithTaskTable specifies the table tracking in-flight backend tasks.
func WithTaskTable(tt *backend.TaskTable) Option {
	return func(options *Options) {
		options.TaskTable = tt
	}
}

// WithPrivChecker specifies the privilege checker used by job listing.
func WithPrivChecker(c privilege.Checker) Option {
	return func(options *Options) {
		options.PrivChecker = c
	}
}

// WithJobCheckInterval overrides the driver tick interval.
func WithJobCheckInterval(d time.Duration) Option {
	return func(options *Options) {
		options.JobCheckInterval = d
	}
}

// WithJobTimeout overrides the default per-job timeout.
func WithJobTimeout(d time.Duration) Option {
	return func(options *Options) {
		options.JobTimeout = d
	}
}

// WithMaxReplicaFailures overrides the per-replica failure budget.
func WithMaxReplicaFailures(n int) Option {
	return func(options *Options) {
		options.MaxReplicaFailures = n
	}
}

// WithClearTaskResendLimit overrides the clear notification resend budget.
func WithClearTaskResendLimit(n int) Option {
	return func(options *Options) {
		options.ClearTaskResendLimit = n
	}
}
