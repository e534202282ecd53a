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

// Package catalog holds the in-memory metadata tree: databases own tables,
// tables own partitions, partitions own one materialized index per index id,
// indexes own tablets and tablets own replicas. Structural mutation of a
// table requires that table's write lock; the catalog-level maps have their
// own short mutex.
package catalog

import (
	"sync"

	"github.com/stratumdb/stratum/pkg/meta/model"
)

// Table is one table's metadata tree. The embedded lock covers every
// structural mutation below the table: partitions, indexes, tablets,
// replicas, state and index metas. Different tables lock independently.
type Table struct {
	sync.RWMutex

	ID       int64
	Name     model.CIStr
	DBID     int64
	KeysType model.KeysType
	State    model.TableState

	// BaseIndexID is the index holding the full schema. It shares the
	// table's id and name.
	BaseIndexID int64

	Partitions []*Partition

	// IndexNameToID maps a lowered index name to its id. Only visible
	// (finished) indexes appear here; a shadow index is registered when its
	// job finishes.
	IndexNameToID map[string]int64
	IndexMetas    map[int64]*IndexMeta

	BloomFilterColumns []string
	BloomFilterFpp     float64
}

// NewTable creates a table whose base index carries the given schema. The
// base index id equals the table id.
func NewTable(id int64, name model.CIStr, dbID int64, keysType model.KeysType, schema []*model.ColumnInfo, shortKeyColumnCount int) *Table {
	t := &Table{
		ID:            id,
		Name:          name,
		DBID:          dbID,
		KeysType:      keysType,
		State:         model.TableStateNormal,
		BaseIndexID:   id,
		IndexNameToID: make(map[string]int64),
		IndexMetas:    make(map[int64]*IndexMeta),
	}
	t.IndexNameToID[name.L] = id
	t.IndexMetas[id] = &IndexMeta{
		ID:                  id,
		Name:                name,
		Schema:              schema,
		SchemaHash:          model.SchemaHash(0, schema, nil, 0),
		ShortKeyColumnCount: shortKeyColumnCount,
	}
	return t
}

// AddPartition appends a partition. Callers hold the table write lock unless
// the table is still being constructed.
func (t *Table) AddPartition(p *Partition) {
	t.Partitions = append(t.Partitions, p)
}

// GetPartition returns a partition by id, nil if absent.
func (t *Table) GetPartition(id int64) *Partition {
	for _, p := range t.Partitions {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// IndexIDByName resolves a visible index name.
func (t *Table) IndexIDByName(name string) (int64, bool) {
	id, ok := t.IndexNameToID[model.NewCIStr(name).L]
	return id, ok
}

// RegisterIndex makes an index visible: name resolvable and meta attached.
func (t *Table) RegisterIndex(meta *IndexMeta) {
	t.IndexNameToID[meta.Name.L] = meta.ID
	t.IndexMetas[meta.ID] = meta
}

// UnregisterIndex removes an index's name and meta.
func (t *Table) UnregisterIndex(indexID int64) {
	meta, ok := t.IndexMetas[indexID]
	if !ok {
		return
	}
	delete(t.IndexNameToID, meta.Name.L)
	delete(t.IndexMetas, indexID)
}

// Database owns tables, addressable by name and id.
type Database struct {
	ID   int64
	Name model.CIStr

	mu        sync.RWMutex
	tables    map[string]*Table
	tableByID map[int64]*Table
}

// Table resolves a table by name.
func (db *Database) Table(name string) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[model.NewCIStr(name).L]
	if !ok {
		return nil, ErrTableNotExists.GenWithStackByArgs(name)
	}
	return t, nil
}

// TableByID resolves a table by id.
func (db *Database) TableByID(id int64) (*Table, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tableByID[id]
	if !ok {
		return nil, ErrTableNotExists.GenWithStackByArgs(id)
	}
	return t, nil
}

// Tables snapshots the database's tables.
func (db *Database) Tables() []*Table {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ts := make([]*Table, 0, len(db.tables))
	for _, t := range db.tables {
		ts = append(ts, t)
	}
	return ts
}

// Catalog is the root of the metadata tree plus the global tablet lookup.
// There is exactly one per process; every handler receives it explicitly.
type Catalog struct {
	mu        sync.RWMutex
	dbs       map[string]*Database
	dbByID    map[int64]*Database
	tableByID map[int64]*Table

	inverted *TabletInvertedIndex
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{
		dbs:       make(map[string]*Database),
		dbByID:    make(map[int64]*Database),
		tableByID: make(map[int64]*Table),
		inverted:  NewTabletInvertedIndex(),
	}
}

// TabletIndex returns the global tablet lookup.
func (c *Catalog) TabletIndex() *TabletInvertedIndex {
	return c.inverted
}

// CreateDatabase registers a new database.
func (c *Catalog) CreateDatabase(id int64, name model.CIStr) (*Database, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.dbs[name.L]; ok {
		return nil, ErrDatabaseExists.GenWithStackByArgs(name.O)
	}
	db := &Database{
		ID:        id,
		Name:      name,
		tables:    make(map[string]*Table),
		tableByID: make(map[int64]*Table),
	}
	c.dbs[name.L] = db
	c.dbByID[id] = db
	return db, nil
}

// Database resolves a database by name.
func (c *Catalog) Database(name string) (*Database, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	db, ok := c.dbs[model.NewCIStr(name).L]
	if !ok {
		return nil, ErrDatabaseNotExists.GenWithStackByArgs(name)
	}
	return db, nil
}

// DatabaseByID resolves a database by id.
func (c *Catalog) DatabaseByID(id int64) (*Database, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	db, ok := c.dbByID[id]
	if !ok {
		return nil, ErrDatabaseNotExists.GenWithStackByArgs(id)
	}
	return db, nil
}

// CreateTable registers a table under a database.
func (c *Catalog) CreateTable(dbName string, t *Table) error {
	db, err := c.Database(dbName)
	if err != nil {
		return err
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.tables[t.Name.L]; ok {
		return ErrTableExists.GenWithStackByArgs(t.Name.O)
	}
	t.DBID = db.ID
	db.tables[t.Name.L] = t
	db.tableByID[t.ID] = t

	c.mu.Lock()
	c.tableByID[t.ID] = t
	c.mu.Unlock()
	return nil
}

// TableByID resolves a table by id across all databases, used by replay.
func (c *Catalog) TableByID(id int64) (*Table, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tableByID[id]
	if !ok {
		return nil, ErrTableNotExists.GenWithStackByArgs(id)
	}
	return t, nil
}
