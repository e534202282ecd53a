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

// Package backend is the control plane's view of storage nodes: which exist,
// which are alive, and which agent tasks are in flight against them. The
// byte-level work (index build, tablet clone) happens on the nodes; only the
// task and clone contracts live here.
package backend

import (
	"sync"

	"github.com/stratumdb/stratum/pkg/util/dbterror"
	"go.uber.org/atomic"
)

// Backend error definitions.
var (
	ErrBackendNotFound = dbterror.ClassBackend.New(1, "backend %d not found")
	ErrBackendDown     = dbterror.ClassBackend.New(2, "backend %d is not alive")
)

// Backend is one storage node.
type Backend struct {
	ID   int64
	Host string

	alive atomic.Bool
}

// NewBackend creates an alive backend.
func NewBackend(id int64, host string) *Backend {
	b := &Backend{ID: id, Host: host}
	b.alive.Store(true)
	return b
}

// IsAlive reports whether the node currently heartbeats.
func (b *Backend) IsAlive() bool {
	return b.alive.Load()
}

// SetAlive flips the liveness flag, driven by heartbeat handling.
func (b *Backend) SetAlive(alive bool) {
	b.alive.Store(alive)
}

// Registry holds every known backend.
type Registry struct {
	mu       sync.RWMutex
	backends map[int64]*Backend
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[int64]*Backend)}
}

// Register adds or replaces a backend.
func (r *Registry) Register(b *Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.ID] = b
}

// Get resolves a backend by id.
func (r *Registry) Get(id int64) (*Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[id]
	if !ok {
		return nil, ErrBackendNotFound.GenWithStackByArgs(id)
	}
	return b, nil
}

// AliveIDs snapshots the ids of alive backends.
func (r *Registry) AliveIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]int64, 0, len(r.backends))
	for id, b := range r.backends {
		if b.IsAlive() {
			ids = append(ids, id)
		}
	}
	return ids
}
