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
	"github.com/pingcap/errors"
	"github.com/pingcap/failpoint"
	"github.com/stratumdb/stratum/pkg/catalog"
	"github.com/stratumdb/stratum/pkg/meta/model"
	"github.com/stratumdb/stratum/pkg/util/intest"
)

// indexBuilder allocates the shadow skeleton of one rollup: per partition a
// SHADOW materialized index, per base tablet a new tablet, per eligible base
// replica a new replica in ALTER state pinned to the partition's initial
// watermark. The caller holds the table's write lock for the whole build, so
// the allocation is atomic with the table state flip.
type indexBuilder struct {
	alloc    IDAllocator
	inverted *catalog.TabletInvertedIndex
}

func newIndexBuilder(alloc IDAllocator, inverted *catalog.TabletInvertedIndex) *indexBuilder {
	return &indexBuilder{alloc: alloc, inverted: inverted}
}

// buildShadowIndexes fills info.Partitions and mutates tbl's partition tree.
// On error every already published partition is unwound before returning, so
// a failed build leaves no trace in the table or the global tablet lookup.
func (b *indexBuilder) buildShadowIndexes(tbl *catalog.Table, info *model.RollupJobInfo) (err error) {
	defer func() {
		if err != nil {
			b.unwind(tbl, info)
			info.Partitions = nil
		}
	}()

	for _, p := range tbl.Partitions {
		base := p.GetIndex(tbl.BaseIndexID)
		intest.AssertNotNil(base, "partition %d lost its base index", p.ID)
		if err = b.buildPartition(tbl, p, base, info); err != nil {
			return err
		}
	}
	return nil
}

func (b *indexBuilder) buildPartition(tbl *catalog.Table, p *catalog.Partition, base *catalog.MaterializedIndex, info *model.RollupJobInfo) error {
	mi := &catalog.MaterializedIndex{ID: info.RollupIndexID, State: model.IndexStateShadow}
	pinfo := &model.RollupPartitionInfo{PartitionID: p.ID}
	for _, baseTablet := range base.Tablets {
		tabletID, err := b.nextID()
		if err != nil {
			return errors.Trace(err)
		}
		t := &catalog.Tablet{ID: tabletID}
		tinfo := &model.RollupTabletInfo{ID: tabletID, BaseTabletID: baseTablet.ID}
		for _, br := range baseTablet.Replicas {
			if !replicaEligible(br) {
				continue
			}
			replicaID, err := b.nextID()
			if err != nil {
				return errors.Trace(err)
			}
			r := &catalog.Replica{
				ID:          replicaID,
				BackendID:   br.BackendID,
				State:       model.ReplicaStateAlter,
				Version:     model.PartitionInitVersion,
				VersionHash: model.PartitionInitVersionHash,
				SchemaHash:  info.RollupSchemaHash,
			}
			if err := t.AddReplica(r); err != nil {
				return errors.Trace(err)
			}
			tinfo.Replicas = append(tinfo.Replicas, r.Info())
		}
		if quorum := len(baseTablet.Replicas)/2 + 1; len(t.Replicas) < quorum {
			return ErrTabletFewReplicas.GenWithStackByArgs(baseTablet.ID, len(t.Replicas), len(baseTablet.Replicas))
		}
		mi.AddTablet(t)
		pinfo.Tablets = append(pinfo.Tablets, tinfo)
	}

	// Publish the shadow index and its lookup entries only once the whole
	// partition is built, so a failure above leaves nothing to undo here.
	p.AddIndex(mi)
	for _, t := range mi.Tablets {
		b.inverted.AddTablet(t.ID, &catalog.TabletMeta{
			DBID:        tbl.DBID,
			TableID:     tbl.ID,
			PartitionID: p.ID,
			IndexID:     info.RollupIndexID,
			SchemaHash:  info.RollupSchemaHash,
			Medium:      p.StorageMedium,
		})
	}
	info.Partitions = append(info.Partitions, pinfo)
	return nil
}

func (b *indexBuilder) nextID() (id int64, err error) {
	failpoint.Inject("mockBuilderAllocErr", func(_ failpoint.Value) {
		err = errors.New("mock builder alloc error")
	})
	if err != nil {
		return 0, err
	}
	return b.alloc.Next()
}

// unwind removes every partition buildPartition published for this job.
func (b *indexBuilder) unwind(tbl *catalog.Table, info *model.RollupJobInfo) {
	for _, pinfo := range info.Partitions {
		p := tbl.GetPartition(pinfo.PartitionID)
		if p == nil || p.GetIndex(info.RollupIndexID) == nil {
			continue
		}
		for _, t := range pinfo.Tablets {
			b.inverted.DeleteTablet(t.ID)
		}
		p.DeleteIndex(info.RollupIndexID)
	}
}

// replicaEligible reports whether a base replica can seed a rollup replica.
// Replicas being cloned or drained and replicas with a recorded version
// failure cannot be trusted to hold the full base data.
func replicaEligible(r *catalog.Replica) bool {
	return r.State == model.ReplicaStateNormal && r.LastFailedVersion <= 0
}
