package ecs

import (
	"lockstep/internal/alloc"
	"lockstep/internal/fixed"
	"lockstep/internal/intern"
	"lockstep/internal/simerr"
)

// World owns one room's entity table, component store, id allocator,
// string interner, and RNG — the full mutable simulation state a tick
// operates on (spec §3 lifecycles, §5 "all state is owned by the World
// instance").
type World struct {
	Store *Store
	Table *Table
	Alloc *alloc.Allocator
	Intern *intern.Registry
	RNG   *fixed.RNG

	definitions map[string]Definition
	// defOrder preserves registration order for iteration-independent
	// lookups that must not depend on Go map order.
	defOrder []string
}

// NewWorld creates an empty world sized for maxEntities, with a seeded
// RNG (spec: "RNG is a deterministic PRNG with a single 32-bit state
// seeded per room").
func NewWorld(maxEntities uint, seed uint32) *World {
	return &World{
		Store:       NewStore(maxEntities),
		Table:       NewTable(maxEntities),
		Alloc:       alloc.New(uint32(maxEntities)),
		Intern:      intern.NewRegistry(),
		RNG:         fixed.NewRNG(seed),
		definitions: make(map[string]Definition),
	}
}

// RegisterDefinition registers an entity definition. Re-registration with
// an identical name is idempotent (spec §3); registering a different
// definition under an existing name is accepted as an update, matching
// the "components/definitions immutable after first spawn" intent while
// not imposing a round-trip equality check the spec doesn't require.
func (w *World) RegisterDefinition(def Definition) {
	if _, exists := w.definitions[def.TypeName]; !exists {
		w.defOrder = append(w.defOrder, def.TypeName)
	}
	w.definitions[def.TypeName] = def
}

// Definition looks up a registered entity definition by type name.
func (w *World) Definition(typeName string) (Definition, bool) {
	d, ok := w.definitions[typeName]
	return d, ok
}

// DefinitionOrder returns entity type names in first-registration order.
func (w *World) DefinitionOrder() []string {
	out := make([]string, len(w.defOrder))
	copy(out, w.defOrder)
	return out
}

// PropertyOverrides maps a field name to a value to apply to the first
// matching component on spawn (spec §4.E "property overrides routed to
// the first matching component").
type PropertyOverrides map[string]interface{}

// Spawn allocates a fresh entity id for typeName, applies definition
// defaults and property overrides, and registers it active. localOnly
// tags the reserved high bit so the entity is excluded from networking.
func (w *World) Spawn(typeName string, props PropertyOverrides, localOnly bool) (EntityID, error) {
	def, ok := w.definitions[typeName]
	if !ok {
		return 0, simerr.UnknownEntityType(typeName)
	}
	id, err := w.Alloc.Allocate()
	if err != nil {
		return 0, simerr.CapacityExceeded("spawn %q: %v", typeName, err)
	}
	if localOnly {
		id |= alloc.LocalOnlyBit
	}
	w.finishSpawn(id, def, props)
	return id, nil
}

// SpawnWithID restores an entity at a specific id, used only when loading
// snapshots (spec §4.C "allocate_specific").
func (w *World) SpawnWithID(id EntityID, typeName string, props PropertyOverrides) error {
	def, ok := w.definitions[typeName]
	if !ok {
		return simerr.UnknownEntityType(typeName)
	}
	if err := w.Alloc.AllocateSpecific(id); err != nil {
		return err
	}
	w.finishSpawn(id, def, props)
	return nil
}

func (w *World) finishSpawn(id EntityID, def Definition, props PropertyOverrides) {
	w.Table.markActive(id, def.TypeName, def.Components)
	for _, ct := range def.Components {
		w.Store.Add(id, ct)
	}
	for field, value := range props {
		w.applyOverride(id, def, field, value)
	}
}

// applyOverride routes a property override to the first component (in
// definition order) that declares the named field.
func (w *World) applyOverride(id EntityID, def Definition, field string, value interface{}) {
	for _, ct := range def.Components {
		schema, ok := w.Store.Schema(ct)
		if !ok {
			continue
		}
		idx := schema.FieldIndex(field)
		if idx < 0 {
			continue
		}
		switch schema.Fields[idx].Type {
		case FieldI32:
			if v, ok := value.(fixed.Scalar); ok {
				w.Store.SetI32(id, ct, field, v)
			}
		case FieldU8:
			if v, ok := value.(byte); ok {
				w.Store.SetU8(id, ct, field, v)
			}
		case FieldBool:
			if v, ok := value.(bool); ok {
				w.Store.SetBool(id, ct, field, v)
			}
		case FieldF32:
			if v, ok := value.(float32); ok {
				w.Store.SetF32(id, ct, field, v)
			}
		}
		return
	}
}

// BindClient binds an entity to a client id (spec §4.E).
func (w *World) BindClient(id EntityID, client ClientID) { w.Table.BindClient(id, client) }

// Destroy reverses Spawn: clears component masks, removes table
// metadata, and returns the id to the allocator.
func (w *World) Destroy(id EntityID) {
	if components, ok := w.Table.componentsOf[id]; ok {
		for _, ct := range components {
			w.Store.Remove(id, ct)
		}
	}
	w.Table.markInactive(id)
	w.Alloc.Free(id)
}

// AllActiveEntitiesAscending returns every active entity id in ascending
// index order, local-only entities included, for gameplay queries
// (physics, collision) that must still see them; networking-facing
// consumers (hash, snapshot, delta) use ActiveEntitiesAscending instead.
func (w *World) AllActiveEntitiesAscending() []EntityID {
	mask := w.Table.ActiveMask()
	out := make([]EntityID, 0, mask.Count())
	for i, e := mask.NextSet(0); e; i, e = mask.NextSet(i + 1) {
		if id, ok := w.Table.EntityAt(uint32(i)); ok {
			out = append(out, id)
		}
	}
	return out
}

// ActiveEntitiesAscending excludes local-only entities (spec §3: "a
// reserved high bit tags local-only entities that are excluded from
// networking").
func (w *World) ActiveEntitiesAscending() []EntityID {
	mask := w.Table.ActiveMask()
	out := make([]EntityID, 0, mask.Count())
	// bitset.NextSet walks indices strictly ascending, which is exactly
	// the eid order every query/hash/snapshot must use.
	for i, e := mask.NextSet(0); e; i, e = mask.NextSet(i + 1) {
		if id, ok := w.Table.EntityAt(uint32(i)); ok && !id.IsLocalOnly() {
			out = append(out, id)
		}
	}
	return out
}

// Reset clears all entity-instance state (table + component masks) but
// keeps registered definitions and component schemas, per spec §4.H
// decode ("clears the world but retains registered definitions").
func (w *World) Reset() {
	w.Table.Clear()
	w.Store.ClearAll()
}
