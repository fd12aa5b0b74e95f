// Package alloc implements the entity-id allocator: a 12-bit generation,
// 20-bit index scheme with a sorted free-list, per spec §3/§4.C/§6.
package alloc

// EntityID packs [bit31 reserved=0][bit30 local-only][bits29..20 generation
// (10 of 12 available bits used)][bits19..0 index], per spec §6.
type EntityID uint32

const (
	IndexBits = 20
	// GenFieldBits is the width of the generation field as actually packed
	// into bits 29..20 of the 32-bit word (spec §6): 10 bits, not 12. The
	// logical generation counter tracked by the allocator still wraps
	// modulo 2^12 as spec §3/§4.C/§8 state explicitly and repeatedly; only
	// the low 10 bits of that counter survive the bit-packing into the
	// wire EntityID. See DESIGN.md for this source ambiguity.
	GenFieldBits = 10

	IndexMask    EntityID = (1 << IndexBits) - 1
	GenMask      EntityID = (1<<GenFieldBits - 1) << IndexBits
	LocalOnlyBit EntityID = 1 << 30
	ReservedBit  EntityID = 1 << 31

	// MaxGeneration is the modulus the logical generation counter wraps at.
	MaxGeneration uint32 = 1 << 12

	// MaxEntities bounds the index space (spec: MAX_ENTITIES <= 2^20).
	MaxEntities = 1 << IndexBits
)

// Invalid is the reserved "no entity" value, with every bit set. It is not
// the zero value: index 0 generation 0 is a legitimate entity, so callers
// must track validity via the allocator rather than comparing to a fixed
// constant.
const Invalid EntityID = 0xFFFFFFFF

// Index extracts the low 20 bits.
func (e EntityID) Index() uint32 { return uint32(e & IndexMask) }

// Generation extracts the packed 10-bit generation field (the low bits of
// the logical mod-4096 generation counter; see GenFieldBits).
func (e EntityID) Generation() uint32 { return uint32((e & GenMask) >> IndexBits) }

// IsLocalOnly reports whether the reserved high bit marking a
// network-excluded entity is set.
func (e EntityID) IsLocalOnly() bool { return e&LocalOnlyBit != 0 }

// Make packs an index and generation into an EntityID, optionally tagging
// it local-only.
func Make(index uint32, generation uint32, localOnly bool) EntityID {
	const genFieldMask = 1<<GenFieldBits - 1
	id := EntityID(index&uint32(IndexMask)) | (EntityID(generation&genFieldMask) << IndexBits)
	if localOnly {
		id |= LocalOnlyBit
	}
	return id
}

// ErrCapacityExceeded is CapacityExceeded from the spec §7 taxonomy: the
// allocator ran out of indices. Fatal for the world.
type ErrCapacityExceeded struct{ MaxEntities int }

func (e *ErrCapacityExceeded) Error() string {
	return "alloc: capacity exceeded (max_entities reached)"
}

// Allocator is the id allocator described in spec §4.C: a sorted
// ascending free-list, per-index generation counters, and the
// "smallest free index" determinism rule.
type Allocator struct {
	nextIndex   uint32
	freeList    []uint32 // kept sorted ascending
	generations []uint32 // length == MaxEntities, indexed by slot
	max         uint32
}

// New creates an allocator bounded by maxEntities (<= MaxEntities).
func New(maxEntities uint32) *Allocator {
	if maxEntities == 0 || maxEntities > MaxEntities {
		maxEntities = MaxEntities
	}
	return &Allocator{
		generations: make([]uint32, maxEntities),
		max:         maxEntities,
	}
}

// Allocate pops the smallest free index (the mandatory determinism rule:
// no tie-break may differ across clients) or extends next_index. Returns
// ErrCapacityExceeded if the index space is exhausted.
func (a *Allocator) Allocate() (EntityID, error) {
	if len(a.freeList) > 0 {
		idx := a.freeList[0]
		a.freeList = a.freeList[1:]
		return Make(idx, a.generations[idx], false), nil
	}
	if a.nextIndex >= a.max {
		return 0, &ErrCapacityExceeded{MaxEntities: int(a.max)}
	}
	idx := a.nextIndex
	a.nextIndex++
	return Make(idx, a.generations[idx], false), nil
}

// Free increments the slot's generation (mod 2^12) and inserts the index
// back into the free-list at its sorted position.
func (a *Allocator) Free(id EntityID) {
	idx := id.Index()
	if idx >= uint32(len(a.generations)) {
		return
	}
	a.generations[idx] = (a.generations[idx] + 1) % MaxGeneration
	a.insertSorted(idx)
}

func (a *Allocator) insertSorted(idx uint32) {
	pos := 0
	for pos < len(a.freeList) && a.freeList[pos] < idx {
		pos++
	}
	a.freeList = append(a.freeList, 0)
	copy(a.freeList[pos+1:], a.freeList[pos:])
	a.freeList[pos] = idx
}

// AllocateSpecific restores an id exactly as it was snapshotted: extends
// next_index if required, sets the slot's generation to the restored
// value, and removes the index from the free-list if present. Used only
// during snapshot load (spec §4.C).
func (a *Allocator) AllocateSpecific(id EntityID) error {
	idx := id.Index()
	if idx >= a.max {
		return &ErrCapacityExceeded{MaxEntities: int(a.max)}
	}
	if idx >= uint32(len(a.generations)) {
		grown := make([]uint32, idx+1)
		copy(grown, a.generations)
		a.generations = grown
	}
	a.generations[idx] = id.Generation()
	if idx >= a.nextIndex {
		a.nextIndex = idx + 1
	}
	a.removeFromFreeList(idx)
	return nil
}

func (a *Allocator) removeFromFreeList(idx uint32) {
	for i, v := range a.freeList {
		if v == idx {
			a.freeList = append(a.freeList[:i], a.freeList[i+1:]...)
			return
		}
	}
}

// IsValid reports whether id refers to a currently live slot: the index
// is below next_index and the stored generation matches exactly.
func (a *Allocator) IsValid(id EntityID) bool {
	idx := id.Index()
	if idx >= a.nextIndex || idx >= uint32(len(a.generations)) {
		return false
	}
	const genFieldMask = 1<<GenFieldBits - 1
	return a.generations[idx]&genFieldMask == id.Generation()
}

// State is the serializable allocator snapshot (spec §4.H).
type State struct {
	NextIndex   uint32
	FreeList    []uint32
	Generations []uint32
}

// Save captures the current allocator state.
func (a *Allocator) Save() State {
	free := make([]uint32, len(a.freeList))
	copy(free, a.freeList)
	gens := make([]uint32, len(a.generations))
	copy(gens, a.generations)
	return State{NextIndex: a.nextIndex, FreeList: free, Generations: gens}
}

// Load restores a previously captured State verbatim.
func (a *Allocator) Load(s State) {
	a.nextIndex = s.NextIndex
	a.freeList = append([]uint32(nil), s.FreeList...)
	a.generations = append([]uint32(nil), s.Generations...)
	if uint32(len(a.generations)) < a.max {
		grown := make([]uint32, a.max)
		copy(grown, a.generations)
		a.generations = grown
	}
}

// NextIndex exposes the allocator's next fresh index, for diagnostics.
func (a *Allocator) NextIndex() uint32 { return a.nextIndex }

// FreeCount exposes the number of indices currently on the free-list.
func (a *Allocator) FreeCount() int { return len(a.freeList) }
