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

// Package editlog is the append-only record of catalog mutations. Every
// committed structural change writes one record under a monotonic sequence
// key; restart replays the records in order and must reproduce identical
// in-memory structures.
package editlog

import (
	"encoding/binary"
	"encoding/json"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pingcap/errors"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/metrics"
	"github.com/stratumdb/stratum/pkg/util/dbterror"
)

// OpType identifies the kind of one log record.
type OpType byte

// Log record kinds.
const (
	// OpSaveRollupJob is a full snapshot of a rollup job, written at
	// creation and at every committed state transition.
	OpSaveRollupJob OpType = iota + 1
	// OpDropRollup records a synchronous drop of a visible rollup index.
	OpDropRollup
	// OpIDBatchEnd records the upper bound of a reserved id batch.
	OpIDBatchEnd
)

// String implements fmt.Stringer interface.
func (op OpType) String() string {
	switch op {
	case OpSaveRollupJob:
		return "save_rollup_job"
	case OpDropRollup:
		return "drop_rollup"
	case OpIDBatchEnd:
		return "id_batch_end"
	}
	return "unknown"
}

var (
	// ErrCorruptedRecord reports a record that cannot be decoded.
	ErrCorruptedRecord = dbterror.ClassEditLog.New(1, "corrupted edit log record at seq %d: %s")
	// ErrClosed reports an append to a closed log.
	ErrClosed = dbterror.ClassEditLog.New(2, "edit log is closed")
)

type record struct {
	Op   OpType          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type idBatchEnd struct {
	End int64 `json:"end"`
}

// Options configures the log store.
type Options struct {
	// FS overrides the filesystem. Tests run on vfs.NewMem().
	FS vfs.FS
	// NoSync disables the per-append fsync.
	NoSync bool
	// CacheSize bounds pebble's block cache in bytes. Zero keeps pebble's
	// default.
	CacheSize int64
}

// EditLog is an ordered, durable log of catalog mutations on a pebble store.
// Appends are serialized; the sequence number is the pebble key, big endian
// so iteration order is replay order.
type EditLog struct {
	mu     sync.Mutex
	db     *pebble.DB
	seq    int64
	wo     *pebble.WriteOptions
	closed bool
}

// Open opens or creates the log at dir.
func Open(dir string, opt *Options) (*EditLog, error) {
	if opt == nil {
		opt = &Options{}
	}
	po := &pebble.Options{}
	if opt.FS != nil {
		po.FS = opt.FS
	}
	if opt.CacheSize > 0 {
		cache := pebble.NewCache(opt.CacheSize)
		defer cache.Unref()
		po.Cache = cache
	}
	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, errors.Trace(err)
	}
	l := &EditLog{db: db, wo: pebble.Sync}
	if opt.NoSync {
		l.wo = pebble.NoSync
	}
	if err := l.recoverSeq(); err != nil {
		_ = db.Close()
		return nil, errors.Trace(err)
	}
	return l, nil
}

func (l *EditLog) recoverSeq() error {
	iter, err := l.db.NewIter(nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer iter.Close()
	if iter.Last() {
		l.seq = int64(binary.BigEndian.Uint64(iter.Key()))
	}
	return errors.Trace(iter.Error())
}

func seqKey(seq int64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], uint64(seq))
	return key[:]
}

func (l *EditLog) append(op OpType, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Trace(err)
	}
	rec, err := json.Marshal(&record{Op: op, Data: data})
	if err != nil {
		return errors.Trace(err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed.GenWithStackByArgs()
	}
	if err := l.db.Set(seqKey(l.seq+1), rec, l.wo); err != nil {
		return errors.Trace(err)
	}
	l.seq++
	metrics.EditLogWriteCounter.WithLabelValues(op.String()).Inc()
	return nil
}

// SaveRollupJob appends a snapshot of the job in its current state.
func (l *EditLog) SaveRollupJob(job *model.RollupJobInfo) error {
	return l.append(OpSaveRollupJob, job)
}

// DropRollup appends a drop record for a visible rollup index.
func (l *EditLog) DropRollup(info *model.DropIndexInfo) error {
	return l.append(OpDropRollup, info)
}

// PersistIDBatchEnd appends an id batch bound. Implements
// autoid.BatchPersister.
func (l *EditLog) PersistIDBatchEnd(end int64) error {
	return l.append(OpIDBatchEnd, &idBatchEnd{End: end})
}

// LastSeq returns the sequence of the last appended record.
func (l *EditLog) LastSeq() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Handler consumes replayed records in append order.
type Handler interface {
	ReplayRollupJob(job *model.RollupJobInfo) error
	ReplayDropRollup(info *model.DropIndexInfo) error
	ReplayIDBatchEnd(end int64) error
}

// Replay feeds every record to h in append order. It stops at the first
// handler error or undecodable record.
func (l *EditLog) Replay(h Handler) error {
	iter, err := l.db.NewIter(nil)
	if err != nil {
		return errors.Trace(err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq := int64(binary.BigEndian.Uint64(iter.Key()))
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return ErrCorruptedRecord.GenWithStackByArgs(seq, err.Error())
		}
		if err := l.dispatch(h, seq, &rec); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(iter.Error())
}

func (l *EditLog) dispatch(h Handler, seq int64, rec *record) error {
	switch rec.Op {
	case OpSaveRollupJob:
		var job model.RollupJobInfo
		if err := json.Unmarshal(rec.Data, &job); err != nil {
			return ErrCorruptedRecord.GenWithStackByArgs(seq, err.Error())
		}
		return h.ReplayRollupJob(&job)
	case OpDropRollup:
		var info model.DropIndexInfo
		if err := json.Unmarshal(rec.Data, &info); err != nil {
			return ErrCorruptedRecord.GenWithStackByArgs(seq, err.Error())
		}
		return h.ReplayDropRollup(&info)
	case OpIDBatchEnd:
		var b idBatchEnd
		if err := json.Unmarshal(rec.Data, &b); err != nil {
			return ErrCorruptedRecord.GenWithStackByArgs(seq, err.Error())
		}
		return h.ReplayIDBatchEnd(b.End)
	}
	return ErrCorruptedRecord.GenWithStackByArgs(seq, "unknown op")
}

// Close closes the underlying store. Appends after Close fail.
func (l *EditLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return errors.Trace(l.db.Close())
}
