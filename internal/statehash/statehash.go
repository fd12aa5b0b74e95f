// Package statehash computes the 32-bit consensus state hash from spec
// §4.I: a stable, avalanche-mixed accumulator over entities in ascending
// eid order, each entity's components in registration order, each synced
// field in name-sorted order, each value as a raw 32-bit word.
package statehash

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"

	"lockstep/internal/ecs"
)

// FieldSource abstracts reading a synced field's raw 32-bit word,
// decoupling the hash from the store's concrete field-type dispatch.
type FieldSource interface {
	// Word returns the raw 32-bit representation of a field's current
	// value for the given entity.
	Word(id ecs.EntityID, ct ecs.ComponentType, field string) uint32
}

// storeFieldSource adapts *ecs.Store to FieldSource.
type storeFieldSource struct{ s *ecs.Store }

func (f storeFieldSource) Word(id ecs.EntityID, ct ecs.ComponentType, field string) uint32 {
	schema, ok := f.s.Schema(ct)
	if !ok {
		return 0
	}
	idx := schema.FieldIndex(field)
	if idx < 0 {
		return 0
	}
	switch schema.Fields[idx].Type {
	case ecs.FieldI32:
		return uint32(f.s.GetI32(id, ct, field))
	case ecs.FieldU8:
		return uint32(f.s.GetU8(id, ct, field))
	case ecs.FieldBool:
		if f.s.GetBool(id, ct, field) {
			return 1
		}
		return 0
	default:
		// f32 never participates in synced schemas (spec §4.D); if one
		// slips through, contribute nothing rather than a platform-varying
		// float bit pattern.
		return 0
	}
}

// Computer holds the (world-shaped) dependencies needed to hash a world:
// which components are synced and in what registration order, which
// fields are synced per the owning entity definition's whitelist, and a
// field-value source.
type Computer struct {
	world  *ecs.World
	source FieldSource
}

// New builds a Computer over a world, reading components/fields/values
// directly from it.
func New(w *ecs.World) *Computer {
	return &Computer{world: w, source: storeFieldSource{s: w.Store}}
}

// syncedFieldsFor resolves which fields of ct are synced for an entity of
// the given type: the definition's sync_fields whitelist if present,
// otherwise every schema field.
func syncedFieldsFor(w *ecs.World, typeName string, ct ecs.ComponentType, schema ecs.Schema) []string {
	def, ok := w.Definition(typeName)
	if ok && def.SyncFields != nil {
		fields, has := def.SyncFields[ct]
		if !has {
			return nil
		}
		return fields
	}
	names := make([]string, len(schema.Fields))
	for i, f := range schema.Fields {
		names[i] = f.Name
	}
	return names
}

// Compute returns the 32-bit state hash: a pure function of (entities
// present, synced-field values) per spec §4.I.
func (c *Computer) Compute() uint32 {
	var buf []byte
	var word [4]byte

	writeU32 := func(v uint32) {
		binary.LittleEndian.PutUint32(word[:], v)
		buf = append(buf, word[:]...)
	}

	for _, id := range c.world.ActiveEntitiesAscending() {
		typeName, _ := c.world.Table.TypeOf(id)
		def, hasDef := c.world.Definition(typeName)
		if hasDef && def.IsSyncNone() {
			continue
		}
		writeU32(uint32(id))
		for _, ct := range c.world.Store.RegistrationOrder() {
			if !c.world.Store.Has(id, ct) {
				continue
			}
			schema, ok := c.world.Store.Schema(ct)
			if !ok || !schema.Sync {
				continue
			}
			fields := syncedFieldsFor(c.world, typeName, ct, schema)
			sorted := append([]string(nil), fields...)
			sort.Strings(sorted)
			for _, field := range sorted {
				writeU32(c.source.Word(id, ct, field))
			}
		}
	}

	// Fold the 64-bit xxhash digest into 32 bits. xxhash's own mixing
	// provides the avalanche property the spec requires; folding the two
	// halves together (rather than truncating) keeps both halves'
	// entropy in the result.
	full := xxhash.Sum64(buf)
	return uint32(full) ^ uint32(full>>32)
}
