package sync

import (
	"sort"

	"lockstep/internal/snapshot"
)

// EntityDiff is one entity's structural or field-level divergence between
// the local state and an authority-pushed resync snapshot.
type EntityDiff struct {
	EID      uint32
	Status   string // "missing_locally", "missing_remotely", "field_mismatch"
	Fields   []string
}

// diffSnapshots compares local against remote field-by-field for entities
// present in both, and flags entities present in only one side, producing
// the diagnostic breakdown spec §4.O step 2 calls "part of the contract"
// for a resync.
func diffSnapshots(local, remote *snapshot.Snapshot) []EntityDiff {
	localByEID := make(map[uint32]snapshot.EntityRecord, len(local.Entities))
	for _, rec := range local.Entities {
		localByEID[rec.EID] = rec
	}
	remoteByEID := make(map[uint32]snapshot.EntityRecord, len(remote.Entities))
	for _, rec := range remote.Entities {
		remoteByEID[rec.EID] = rec
	}

	var eids []uint32
	seen := make(map[uint32]bool)
	for eid := range localByEID {
		if !seen[eid] {
			seen[eid] = true
			eids = append(eids, eid)
		}
	}
	for eid := range remoteByEID {
		if !seen[eid] {
			seen[eid] = true
			eids = append(eids, eid)
		}
	}
	sort.Slice(eids, func(i, j int) bool { return eids[i] < eids[j] })

	var out []EntityDiff
	for _, eid := range eids {
		l, hasLocal := localByEID[eid]
		r, hasRemote := remoteByEID[eid]
		switch {
		case hasLocal && !hasRemote:
			out = append(out, EntityDiff{EID: eid, Status: "missing_remotely"})
		case !hasLocal && hasRemote:
			out = append(out, EntityDiff{EID: eid, Status: "missing_locally"})
		default:
			if fields := mismatchedFields(remote, r, l); len(fields) > 0 {
				out = append(out, EntityDiff{EID: eid, Status: "field_mismatch", Fields: fields})
			}
		}
	}
	return out
}

// mismatchedFields names every field index where l and r disagree, using
// the remote snapshot's schema (the side being adopted) for field names.
func mismatchedFields(remoteSnap *snapshot.Snapshot, r, l snapshot.EntityRecord) []string {
	var names []string
	if r.TypeIndex < 0 || r.TypeIndex >= len(remoteSnap.Schemas) {
		return names
	}
	idx := 0
	for _, cs := range remoteSnap.Schemas[r.TypeIndex] {
		for _, field := range cs.Fields {
			if idx < len(l.Values) && idx < len(r.Values) && l.Values[idx] != r.Values[idx] {
				names = append(names, string(cs.Component)+"."+field)
			}
			idx++
		}
	}
	return names
}
