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

package privilege

import (
	"strings"
	"sync"
)

// Type is one grantable privilege.
type Type byte

// Privileges.
const (
	AlterPriv Type = iota + 1
	SelectPriv
	LoadPriv
)

// String implements fmt.Stringer interface.
func (t Type) String() string {
	switch t {
	case AlterPriv:
		return "ALTER"
	case SelectPriv:
		return "SELECT"
	case LoadPriv:
		return "LOAD"
	}
	return "unknown"
}

// Checker decides whether a user holds a privilege on a table. Listing uses
// it to filter rows; it never blocks a driver tick.
type Checker interface {
	CheckTablePriv(user, db, table string, priv Type) bool
}

type allowAll struct{}

func (allowAll) CheckTablePriv(string, string, string, Type) bool { return true }

// AllowAll grants everything. It is the default until an authorizer is wired.
func AllowAll() Checker {
	return allowAll{}
}

// Wildcard matches any database or table in a grant.
const Wildcard = "*"

// StaticChecker is a fixed grant table.
type StaticChecker struct {
	mu     sync.RWMutex
	grants map[grantKey]struct{}
}

type grantKey struct {
	user  string
	db    string
	table string
	priv  Type
}

// NewStaticChecker creates a checker with no grants.
func NewStaticChecker() *StaticChecker {
	return &StaticChecker{grants: make(map[grantKey]struct{})}
}

// Grant adds a privilege. db and table may be Wildcard.
func (c *StaticChecker) Grant(user, db, table string, priv Type) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants[grantKey{user, strings.ToLower(db), strings.ToLower(table), priv}] = struct{}{}
}

// CheckTablePriv implements Checker.
func (c *StaticChecker) CheckTablePriv(user, db, table string, priv Type) bool {
	db = strings.ToLower(db)
	table = strings.ToLower(table)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, key := range []grantKey{
		{user, db, table, priv},
		{user, db, Wildcard, priv},
		{user, Wildcard, Wildcard, priv},
	} {
		if _, ok := c.grants[key]; ok {
			return true
		}
	}
	return false
}
