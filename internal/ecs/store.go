package ecs

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/sirupsen/logrus"

	"lockstep/internal/fixed"
)

// componentBlock is the structure-of-arrays storage for one component
// type: a presence mask over MAX_ENTITIES slots plus one typed array per
// schema field (spec §3/§4.D). i32 fields are quantized fixed-point
// scalars; bool fields are stored as 0/1 bytes; f32 is permitted for
// unsynced, host-display-only data but never appears in a synced schema.
type componentBlock struct {
	schema Schema
	mask   *bitset.BitSet
	i32    map[string][]fixed.Scalar
	u8     map[string][]byte
	boolv  map[string][]byte
	f32    map[string][]float32
}

func newComponentBlock(schema Schema, maxEntities uint) *componentBlock {
	b := &componentBlock{
		schema: schema,
		mask:   bitset.New(maxEntities),
		i32:    make(map[string][]fixed.Scalar),
		u8:     make(map[string][]byte),
		boolv:  make(map[string][]byte),
		f32:    make(map[string][]float32),
	}
	for _, f := range schema.Fields {
		switch f.Type {
		case FieldI32:
			arr := make([]fixed.Scalar, maxEntities)
			for i := range arr {
				arr[i] = f.Default
			}
			b.i32[f.Name] = arr
		case FieldU8:
			arr := make([]byte, maxEntities)
			for i := range arr {
				arr[i] = byte(f.Default)
			}
			b.u8[f.Name] = arr
		case FieldBool:
			arr := make([]byte, maxEntities)
			def := byte(0)
			if f.Default != 0 {
				def = 1
			}
			for i := range arr {
				arr[i] = def
			}
			b.boolv[f.Name] = arr
		case FieldF32:
			arr := make([]float32, maxEntities)
			def := float32(f.Default.ToFloat())
			for i := range arr {
				arr[i] = def
			}
			b.f32[f.Name] = arr
		}
	}
	return b
}

// Store owns every registered component's SoA storage, sized once for
// MAX_ENTITIES. Add/remove are bit operations on the presence mask;
// defaults are written at add-time per spec §4.D.
type Store struct {
	maxEntities uint
	blocks      map[ComponentType]*componentBlock
	// order records registration order; component hashing and snapshot
	// schema enumeration both need a stable "registration order" (spec
	// §4.I: "each of its components in registration order").
	order []ComponentType
}

// NewStore creates a component store sized for maxEntities slots.
func NewStore(maxEntities uint) *Store {
	return &Store{
		maxEntities: maxEntities,
		blocks:      make(map[ComponentType]*componentBlock),
	}
}

// RegisterType registers a component schema. Re-registration with an
// identical schema is idempotent; f32 fields log a warning at declaration
// and must never appear in a synced schema (spec §4.D).
func (s *Store) RegisterType(schema Schema) {
	if _, exists := s.blocks[schema.Name]; exists {
		return
	}
	for _, f := range schema.Fields {
		if f.Type == FieldF32 {
			logrus.WithFields(logrus.Fields{
				"component": schema.Name,
				"field":     f.Name,
			}).Warn("ecs: f32 field declared; forbidden in synced components")
			if schema.Sync {
				logrus.WithField("component", schema.Name).
					Error("ecs: synced component declares an f32 field; field will be excluded from hash/snapshot")
			}
		}
	}
	s.blocks[schema.Name] = newComponentBlock(schema, s.maxEntities)
	s.order = append(s.order, schema.Name)
}

// RegistrationOrder returns component types in the order they were first
// registered.
func (s *Store) RegistrationOrder() []ComponentType {
	out := make([]ComponentType, len(s.order))
	copy(out, s.order)
	return out
}

// Schema returns the registered schema for a component type.
func (s *Store) Schema(ct ComponentType) (Schema, bool) {
	b, ok := s.blocks[ct]
	if !ok {
		return Schema{}, false
	}
	return b.schema, true
}

// Add marks the entity present in ct's mask and writes schema defaults.
func (s *Store) Add(id EntityID, ct ComponentType) {
	b, ok := s.blocks[ct]
	if !ok {
		return
	}
	idx := uint(id.Index())
	b.mask.Set(idx)
	for name, arr := range b.i32 {
		def := b.schema.Fields[b.schema.FieldIndex(name)].Default
		arr[idx] = def
	}
	for name, arr := range b.u8 {
		def := byte(b.schema.Fields[b.schema.FieldIndex(name)].Default)
		arr[idx] = def
	}
	for name, arr := range b.boolv {
		def := b.schema.Fields[b.schema.FieldIndex(name)].Default
		v := byte(0)
		if def != 0 {
			v = 1
		}
		arr[idx] = v
	}
	for name, arr := range b.f32 {
		arr[idx] = float32(b.schema.Fields[b.schema.FieldIndex(name)].Default.ToFloat())
	}
}

// Remove clears the entity's presence bit; values are left in place
// (overwritten at the next Add) to avoid an extra memory write.
func (s *Store) Remove(id EntityID, ct ComponentType) {
	if b, ok := s.blocks[ct]; ok {
		b.mask.Clear(uint(id.Index()))
	}
}

// Has reports whether the entity currently carries component ct.
func (s *Store) Has(id EntityID, ct ComponentType) bool {
	b, ok := s.blocks[ct]
	if !ok {
		return false
	}
	return b.mask.Test(uint(id.Index()))
}

// Mask returns the raw presence bitset for a component type, used by the
// query engine's intersections.
func (s *Store) Mask(ct ComponentType) *bitset.BitSet {
	b, ok := s.blocks[ct]
	if !ok {
		return bitset.New(s.maxEntities)
	}
	return b.mask
}

// SetI32 quantizes-on-write: callers pass already-fixed-point scalars
// (quantization from float happens at the system boundary, not here).
func (s *Store) SetI32(id EntityID, ct ComponentType, field string, v fixed.Scalar) {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.i32[field]; ok {
			arr[id.Index()] = v
		}
	}
}

func (s *Store) GetI32(id EntityID, ct ComponentType, field string) fixed.Scalar {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.i32[field]; ok {
			return arr[id.Index()]
		}
	}
	return 0
}

func (s *Store) SetU8(id EntityID, ct ComponentType, field string, v byte) {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.u8[field]; ok {
			arr[id.Index()] = v
		}
	}
}

func (s *Store) GetU8(id EntityID, ct ComponentType, field string) byte {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.u8[field]; ok {
			return arr[id.Index()]
		}
	}
	return 0
}

func (s *Store) SetBool(id EntityID, ct ComponentType, field string, v bool) {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.boolv[field]; ok {
			if v {
				arr[id.Index()] = 1
			} else {
				arr[id.Index()] = 0
			}
		}
	}
}

func (s *Store) GetBool(id EntityID, ct ComponentType, field string) bool {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.boolv[field]; ok {
			return arr[id.Index()] != 0
		}
	}
	return false
}

func (s *Store) SetF32(id EntityID, ct ComponentType, field string, v float32) {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.f32[field]; ok {
			arr[id.Index()] = v
		}
	}
}

func (s *Store) GetF32(id EntityID, ct ComponentType, field string) float32 {
	if b, ok := s.blocks[ct]; ok {
		if arr, ok := b.f32[field]; ok {
			return arr[id.Index()]
		}
	}
	return 0
}

// ClearAll clears every component mask, used when the world is reset for
// snapshot decoding (definitions/schemas survive, spec §4.H).
func (s *Store) ClearAll() {
	for _, b := range s.blocks {
		b.mask.ClearAll()
	}
}
