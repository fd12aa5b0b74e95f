// Package delta computes structural snapshot diffs, spec §4.J: created and
// deleted entities between two snapshots, partitioned for continuous sync.
// Field mutations never appear in a delta — every peer derives identical
// new values from identical inputs, so only structural divergence (an
// entity appearing or disappearing) needs to cross the wire.
package delta

import (
	"sort"

	"lockstep/internal/snapshot"
)

// Delta is the structural diff between two snapshots.
type Delta struct {
	Frame      uint32
	BaseHash   uint32
	ResultHash uint32
	Created    []snapshot.EntityRecord // ascending eid, full component data
	Deleted    []uint32                // ascending eid
}

// Compute builds the delta from prev (may be nil, meaning "empty world") to
// curr. created/deleted are sorted ascending for determinism (spec §4.J).
func Compute(prev, curr *snapshot.Snapshot, frame uint32) *Delta {
	prevIDs := map[uint32]bool{}
	var baseHash uint32
	if prev != nil {
		baseHash = prev.Hash
		for _, rec := range prev.Entities {
			prevIDs[rec.EID] = true
		}
	}

	currIDs := map[uint32]bool{}
	var created []snapshot.EntityRecord
	for _, rec := range curr.Entities {
		currIDs[rec.EID] = true
		if !prevIDs[rec.EID] {
			created = append(created, rec)
		}
	}
	sort.Slice(created, func(i, j int) bool { return created[i].EID < created[j].EID })

	var deleted []uint32
	for eid := range prevIDs {
		if !currIDs[eid] {
			deleted = append(deleted, eid)
		}
	}
	sort.Slice(deleted, func(i, j int) bool { return deleted[i] < deleted[j] })

	return &Delta{
		Frame:      frame,
		BaseHash:   baseHash,
		ResultHash: curr.Hash,
		Created:    created,
		Deleted:    deleted,
	}
}

// IsEmpty reports whether the delta carries no structural change.
func (d *Delta) IsEmpty() bool {
	return len(d.Created) == 0 && len(d.Deleted) == 0
}

// GetPartition subsets d to entities whose eid mod n == p (spec §4.J
// get_partition), independently serializable by the partition's owner.
func GetPartition(d *Delta, p, n uint32) *Delta {
	if n == 0 {
		n = 1
	}
	out := &Delta{Frame: d.Frame, BaseHash: d.BaseHash, ResultHash: d.ResultHash}
	for _, rec := range d.Created {
		if rec.EID%n == p {
			out.Created = append(out.Created, rec)
		}
	}
	for _, eid := range d.Deleted {
		if eid%n == p {
			out.Deleted = append(out.Deleted, eid)
		}
	}
	return out
}
