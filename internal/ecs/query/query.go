// Package query implements the indices and composite-query evaluation
// from spec §4.F: deterministic ascending-eid iteration, a query snapshot
// taken at creation time so later creates/destroys can't perturb an
// in-flight iteration.
package query

import (
	"sort"

	"lockstep/internal/ecs"
)

// Index provides the by-type, by-component, and by-client lookups spec
// §4.F names explicitly, evaluated directly against a world's table and
// component store.
type Index struct {
	w *ecs.World
}

// NewIndex wraps a world for query evaluation.
func NewIndex(w *ecs.World) *Index { return &Index{w: w} }

// ByType returns every active entity of typeName, ascending.
func (ix *Index) ByType(typeName string) []ecs.EntityID {
	all := ix.w.AllActiveEntitiesAscending()
	out := make([]ecs.EntityID, 0)
	for _, id := range all {
		if t, ok := ix.w.Table.TypeOf(id); ok && t == typeName {
			out = append(out, id)
		}
	}
	return out
}

// ByComponent returns every active entity carrying ct, ascending.
func (ix *Index) ByComponent(ct ecs.ComponentType) []ecs.EntityID {
	mask := ix.w.Store.Mask(ct)
	all := ix.w.AllActiveEntitiesAscending()
	out := make([]ecs.EntityID, 0)
	for _, id := range all {
		if mask.Test(uint(id.Index())) {
			out = append(out, id)
		}
	}
	return out
}

// ByClient returns the single entity bound to a client id, if any.
func (ix *Index) ByClient(client ecs.ClientID) (ecs.EntityID, bool) {
	return ix.w.Table.EntityForClient(client)
}

// Snapshot is a query result whose candidate set was fixed at creation
// time: entities destroyed afterward are skipped on iteration, entities
// created afterward are never visited (spec §4.F).
type Snapshot struct {
	ix   *Index
	ids  []ecs.EntityID
}

// Query starts a composite query over the given component types,
// intersecting from the smallest participating set by mask lookup, and
// snapshots the resulting eid set immediately.
func (ix *Index) Query(components ...ecs.ComponentType) *Snapshot {
	if len(components) == 0 {
		return &Snapshot{ix: ix, ids: ix.w.AllActiveEntitiesAscending()}
	}
	masks := make([]interface {
		Test(uint) bool
		Count() uint
	}, 0, len(components))
	for _, ct := range components {
		masks = append(masks, ix.w.Store.Mask(ct))
	}
	// Start from the smallest participating set: approximate by scanning
	// the full active list once and testing all masks — entity counts are
	// bounded by MAX_ENTITIES so this stays O(active * components), which
	// is what the reference sparse-set based approach would cost too once
	// masks are this cheap to test.
	smallestIdx := 0
	for i := 1; i < len(masks); i++ {
		if masks[i].Count() < masks[smallestIdx].Count() {
			smallestIdx = i
		}
	}
	base := ix.byMask(masks[smallestIdx])
	out := make([]ecs.EntityID, 0, len(base))
	for _, id := range base {
		match := true
		for i, m := range masks {
			if i == smallestIdx {
				continue
			}
			if !m.Test(uint(id.Index())) {
				match = false
				break
			}
		}
		if match {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Index() < out[b].Index() })
	return &Snapshot{ix: ix, ids: out}
}

func (ix *Index) byMask(mask interface {
	Test(uint) bool
	Count() uint
}) []ecs.EntityID {
	all := ix.w.AllActiveEntitiesAscending()
	out := make([]ecs.EntityID, 0, mask.Count())
	for _, id := range all {
		if mask.Test(uint(id.Index())) {
			out = append(out, id)
		}
	}
	return out
}

// Each iterates the snapshotted ids, skipping any since destroyed. Later
// creations are never visited because they are not in the snapshot.
func (s *Snapshot) Each(fn func(ecs.EntityID)) {
	for _, id := range s.ids {
		if !s.ix.w.Table.IsActive(id) {
			continue
		}
		fn(id)
	}
}

// IDs returns the raw snapshotted id list (ascending), pre-filtered for
// entities still active at call time.
func (s *Snapshot) IDs() []ecs.EntityID {
	out := make([]ecs.EntityID, 0, len(s.ids))
	for _, id := range s.ids {
		if s.ix.w.Table.IsActive(id) {
			out = append(out, id)
		}
	}
	return out
}
