// Package snapshot implements the sparse, type-indexed snapshot codec
// from spec §4.H: only active, non-local-only, non-syncNone entities are
// encoded, grouped by entity type so each type's component data packs
// densely.
package snapshot

import (
	"lockstep/internal/alloc"
	"lockstep/internal/ecs"
	"lockstep/internal/fixed"
	"lockstep/internal/intern"
	"lockstep/internal/simerr"
)

// FieldValue is one field's raw value in the packed, field-ordered
// representation. It is an int64 whatever the schema's FieldType: the
// stored value (a fixed.Scalar for i32, a byte for u8/bool) is widened to
// it.
type FieldValue = int64

// EntityRecord is one (eid, type_index, values) triple from spec §4.H
// step 3; values follow the type's schema field order exactly.
type EntityRecord struct {
	EID       uint32
	TypeIndex int
	ClientID  string // empty if unbound
	Values    []FieldValue
}

// ComponentSchema is (component_name, fields_to_sync) for one entity
// type, built from the definition's sync_fields whitelist or, absent
// one, every schema field (spec §4.H step 2).
type ComponentSchema struct {
	Component ecs.ComponentType
	Fields    []string
}

// Snapshot is the full sparse snapshot described in spec §3/§4.H.
type Snapshot struct {
	Frame   uint32
	Seq     uint64
	Hash    uint32
	HasHash bool

	Types   []string            // entity type names, first-appearance order
	Schemas [][]ComponentSchema // per type index

	Entities []EntityRecord

	Allocator alloc.State
	Interner  []intern.NamespaceState
	RNG       uint32

	// ClientIDMap maps client id strings to the small numeric ids used
	// inside EntityRecord.ClientID-bearing entries' bookkeeping; kept as a
	// string map here since the numeric side only matters on the wire.
	ClientIDMap map[string]uint32
}

// Encode builds the snapshot from a live world. Active eids are
// enumerated ascending; entities whose definition marks sync_fields = ∅
// (syncNone) are skipped entirely, matching the hash's own exclusion.
func Encode(w *ecs.World, frame uint32, seq uint64, hash uint32) *Snapshot {
	snap := &Snapshot{Frame: frame, Seq: seq, Hash: hash, HasHash: true, ClientIDMap: map[string]uint32{}}

	typeIndex := map[string]int{}

	for _, id := range w.ActiveEntitiesAscending() {
		typeName, _ := w.Table.TypeOf(id)
		def, hasDef := w.Definition(typeName)
		if hasDef && def.IsSyncNone() {
			continue
		}
		idx, seen := typeIndex[typeName]
		if !seen {
			idx = len(snap.Types)
			typeIndex[typeName] = idx
			snap.Types = append(snap.Types, typeName)
			snap.Schemas = append(snap.Schemas, buildSchema(w, typeName))
		}

		rec := EntityRecord{EID: uint32(id), TypeIndex: idx}
		if cid, ok := w.Table.ClientOf(id); ok {
			rec.ClientID = string(cid)
		}
		for _, cs := range snap.Schemas[idx] {
			for _, field := range cs.Fields {
				rec.Values = append(rec.Values, readRawField(w, id, cs.Component, field))
			}
		}
		snap.Entities = append(snap.Entities, rec)
	}

	snap.Allocator = w.Alloc.Save()
	snap.Interner = w.Intern.State()
	snap.RNG = w.RNG.Save()
	return snap
}

func buildSchema(w *ecs.World, typeName string) []ComponentSchema {
	def, hasDef := w.Definition(typeName)
	components := def.Components
	out := make([]ComponentSchema, 0, len(components))
	for _, ct := range components {
		schema, ok := w.Store.Schema(ct)
		if !ok || !schema.Sync {
			continue
		}
		var fields []string
		if hasDef && def.SyncFields != nil {
			wl, ok := def.SyncFields[ct]
			if !ok {
				continue
			}
			fields = wl
		} else {
			for _, f := range schema.Fields {
				fields = append(fields, f.Name)
			}
		}
		out = append(out, ComponentSchema{Component: ct, Fields: fields})
	}
	return out
}

func readRawField(w *ecs.World, id ecs.EntityID, ct ecs.ComponentType, field string) int64 {
	schema, ok := w.Store.Schema(ct)
	if !ok {
		return 0
	}
	idx := schema.FieldIndex(field)
	if idx < 0 {
		return 0
	}
	switch schema.Fields[idx].Type {
	case ecs.FieldI32:
		return int64(w.Store.GetI32(id, ct, field))
	case ecs.FieldU8:
		return int64(w.Store.GetU8(id, ct, field))
	case ecs.FieldBool:
		if w.Store.GetBool(id, ct, field) {
			return 1
		}
		return 0
	default:
		return 0
	}
}

func writeRawField(w *ecs.World, id ecs.EntityID, ct ecs.ComponentType, field string, v int64) {
	schema, ok := w.Store.Schema(ct)
	if !ok {
		return
	}
	idx := schema.FieldIndex(field)
	if idx < 0 {
		return
	}
	switch schema.Fields[idx].Type {
	case ecs.FieldI32:
		w.Store.SetI32(id, ct, field, fixed.Scalar(int32(v)))
	case ecs.FieldU8:
		w.Store.SetU8(id, ct, field, byte(v))
	case ecs.FieldBool:
		w.Store.SetBool(id, ct, field, v != 0)
	}
}

// Load replaces w's instance state with the snapshot's: clears the world
// (keeping definitions), restores allocator/interner/rng, spawns entities
// via SpawnWithID, writes component arrays, then invokes each
// definition's on_restore hook (spec §4.H decode).
func Load(w *ecs.World, snap *Snapshot) error {
	w.Reset()
	w.Alloc.Load(snap.Allocator)
	w.Intern.LoadState(snap.Interner)
	w.RNG.Load(snap.RNG)

	for _, rec := range snap.Entities {
		if rec.TypeIndex < 0 || rec.TypeIndex >= len(snap.Types) {
			return simerr.DecodeFailed("snapshot: entity %d references out-of-range type index %d", rec.EID, rec.TypeIndex)
		}
		typeName := snap.Types[rec.TypeIndex]
		id := ecs.EntityID(rec.EID)
		if err := w.SpawnWithID(id, typeName, nil); err != nil {
			return err
		}
		if rec.ClientID != "" {
			w.BindClient(id, ecs.ClientID(rec.ClientID))
		}
		valueIdx := 0
		for _, cs := range snap.Schemas[rec.TypeIndex] {
			for _, field := range cs.Fields {
				if valueIdx >= len(rec.Values) {
					break
				}
				writeRawField(w, id, cs.Component, field, rec.Values[valueIdx])
				valueIdx++
			}
		}
	}

	for _, typeName := range snap.Types {
		def, ok := w.Definition(typeName)
		if !ok || def.OnRestore == nil {
			continue
		}
		for _, rec := range snap.Entities {
			if snap.Types[rec.TypeIndex] == typeName {
				def.OnRestore(ecs.EntityID(rec.EID))
			}
		}
	}
	return nil
}
