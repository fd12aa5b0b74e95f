// Package intern implements the namespaced string<->integer registry used
// for component field enums, entity type names, and client-id mapping.
// Allocation order is part of the deterministic contract: two peers that
// perform the same sequence of Intern calls must obtain the same ids
// (spec §4.B, invariant 8).
package intern

import "sort"

// Table is a single namespace's string<->id map.
type Table struct {
	toID   map[string]uint32
	toStr  map[uint32]string
	nextID uint32
}

func newTable() *Table {
	return &Table{
		toID:   make(map[string]uint32),
		toStr:  make(map[uint32]string),
		nextID: 1,
	}
}

// Registry holds one Table per namespace.
type Registry struct {
	namespaces map[string]*Table
	// order records namespace first-use order so serialization is stable
	// even though Go map iteration is not.
	order []string
}

// NewRegistry creates an empty, namespace-less registry.
func NewRegistry() *Registry {
	return &Registry{namespaces: make(map[string]*Table)}
}

func (r *Registry) table(namespace string) *Table {
	t, ok := r.namespaces[namespace]
	if !ok {
		t = newTable()
		r.namespaces[namespace] = t
		r.order = append(r.order, namespace)
	}
	return t
}

// Intern returns the existing id for (namespace, s) or allocates the next
// one. Allocation is strictly sequential per namespace starting at 1.
func (r *Registry) Intern(namespace, s string) uint32 {
	t := r.table(namespace)
	if id, ok := t.toID[s]; ok {
		return id
	}
	id := t.nextID
	t.nextID++
	t.toID[s] = id
	t.toStr[id] = s
	return id
}

// GetString is a pure lookup; ok is false if the id was never interned in
// that namespace.
func (r *Registry) GetString(namespace string, id uint32) (string, bool) {
	t, ok := r.namespaces[namespace]
	if !ok {
		return "", false
	}
	s, ok := t.toStr[id]
	return s, ok
}

// GetID is a pure lookup of an already-interned string.
func (r *Registry) GetID(namespace, s string) (uint32, bool) {
	t, ok := r.namespaces[namespace]
	if !ok {
		return 0, false
	}
	id, ok := t.toID[s]
	return id, ok
}

// NamespacePair is one (string, id) entry in insertion order.
type NamespacePair struct {
	String string
	ID     uint32
}

// NamespaceState is the serializable snapshot of a single namespace.
type NamespaceState struct {
	Namespace string
	Pairs     []NamespacePair
	NextID    uint32
}

// State is the full serializable interner snapshot: namespaces emitted in
// first-use order, each with its pairs in insertion order and next_id,
// per spec §4.B.
func (r *Registry) State() []NamespaceState {
	out := make([]NamespaceState, 0, len(r.order))
	for _, ns := range r.order {
		t := r.namespaces[ns]
		pairs := make([]NamespacePair, 0, len(t.toID))
		// Insertion order is recovered by sorting on id, since ids are
		// allocated strictly in insertion sequence.
		ids := make([]uint32, 0, len(t.toID))
		for id := range t.toStr {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			pairs = append(pairs, NamespacePair{String: t.toStr[id], ID: id})
		}
		out = append(out, NamespaceState{Namespace: ns, Pairs: pairs, NextID: t.nextID})
	}
	return out
}

// LoadState replaces the registry's contents with a previously captured
// State, preserving namespace order and each table's next_id so future
// Intern calls continue the same allocation sequence.
func (r *Registry) LoadState(states []NamespaceState) {
	r.namespaces = make(map[string]*Table)
	r.order = nil
	for _, ns := range states {
		t := newTable()
		for _, p := range ns.Pairs {
			t.toID[p.String] = p.ID
			t.toStr[p.ID] = p.String
		}
		t.nextID = ns.NextID
		r.namespaces[ns.Namespace] = t
		r.order = append(r.order, ns.Namespace)
	}
}

// Reset clears the registry entirely. Per spec §5 shared-resource policy,
// only used for testing / process-scoped registry teardown, never mid-room.
func (r *Registry) Reset() {
	r.namespaces = make(map[string]*Table)
	r.order = nil
}
