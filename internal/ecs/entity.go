package ecs

import "github.com/bits-and-blooms/bitset"

// ClientID is the room-assigned identifier for a connected peer.
type ClientID string

// Definition is an entity definition registered once at startup: a
// type-name, its component list with optional per-definition defaults, an
// optional sync_fields whitelist, and an optional on_restore hook invoked
// after a snapshot load (spec §3).
type Definition struct {
	TypeName   string
	Components []ComponentType
	// SyncFields, if non-nil, whitelists which fields of which components
	// are serialized/hashed; an empty-but-non-nil map marks the
	// definition syncNone (never serialized at all).
	SyncFields map[ComponentType][]string
	OnRestore  func(EntityID)
}

// IsSyncNone reports the syncNone marker: SyncFields present but empty.
func (d Definition) IsSyncNone() bool {
	return d.SyncFields != nil && len(d.SyncFields) == 0
}

// Table holds per-entity metadata: the active set, type binding,
// component-type list, and an optional client binding with its reverse
// index (spec §4.E).
type Table struct {
	active      *bitset.BitSet
	entityByIdx map[uint32]EntityID
	typeOf      map[EntityID]string
	componentsOf map[EntityID][]ComponentType
	clientOf    map[EntityID]ClientID
	clientToEnt map[ClientID]EntityID
	// inputCache is the one-word-per-entity scratch field systems use to
	// stash the latest applied input without a side map lookup.
	inputCache map[EntityID]interface{}
	maxEntities uint
}

// NewTable creates an entity table sized for maxEntities slots.
func NewTable(maxEntities uint) *Table {
	return &Table{
		active:       bitset.New(maxEntities),
		entityByIdx:  make(map[uint32]EntityID),
		typeOf:       make(map[EntityID]string),
		componentsOf: make(map[EntityID][]ComponentType),
		clientOf:     make(map[EntityID]ClientID),
		clientToEnt:  make(map[ClientID]EntityID),
		inputCache:   make(map[EntityID]interface{}),
		maxEntities:  maxEntities,
	}
}

func (t *Table) markActive(id EntityID, typeName string, components []ComponentType) {
	t.active.Set(uint(id.Index()))
	t.entityByIdx[id.Index()] = id
	t.typeOf[id] = typeName
	t.componentsOf[id] = components
}

func (t *Table) markInactive(id EntityID) {
	t.active.Clear(uint(id.Index()))
	delete(t.entityByIdx, id.Index())
	delete(t.typeOf, id)
	delete(t.componentsOf, id)
	if cid, ok := t.clientOf[id]; ok {
		delete(t.clientOf, id)
		delete(t.clientToEnt, cid)
	}
	delete(t.inputCache, id)
}

// EntityAt returns the full EntityID (including generation) for an active
// slot index, used to recover ids from the bitset-indexed active mask.
func (t *Table) EntityAt(index uint32) (EntityID, bool) {
	id, ok := t.entityByIdx[index]
	return id, ok
}

// IsActive reports whether id is currently alive in this table: its slot
// is active and holds this exact id, generation included.
func (t *Table) IsActive(id EntityID) bool {
	cur, ok := t.entityByIdx[id.Index()]
	return ok && cur == id
}

// TypeOf returns the entity's definition type-name.
func (t *Table) TypeOf(id EntityID) (string, bool) {
	v, ok := t.typeOf[id]
	return v, ok
}

// ComponentsOf returns the ordered component-type list the entity was
// spawned with.
func (t *Table) ComponentsOf(id EntityID) []ComponentType {
	return t.componentsOf[id]
}

// BindClient sets the one-shot client binding and its reverse index.
func (t *Table) BindClient(id EntityID, client ClientID) {
	t.clientOf[id] = client
	t.clientToEnt[client] = id
}

// ClientOf returns the entity's bound client, if any.
func (t *Table) ClientOf(id EntityID) (ClientID, bool) {
	c, ok := t.clientOf[id]
	return c, ok
}

// EntityForClient is the reverse lookup used by the query index.
func (t *Table) EntityForClient(client ClientID) (EntityID, bool) {
	e, ok := t.clientToEnt[client]
	return e, ok
}

// SetInputCache stashes a system-defined value for the entity, overwriting
// any prior value.
func (t *Table) SetInputCache(id EntityID, v interface{}) { t.inputCache[id] = v }

// InputCache returns the entity's stashed value, if any.
func (t *Table) InputCache(id EntityID) (interface{}, bool) {
	v, ok := t.inputCache[id]
	return v, ok
}

// ClearInputCache wipes every entity's stashed input, used at the end of
// each tick (spec §4.N step 5: "clear the per-tick input buffer").
func (t *Table) ClearInputCache() {
	t.inputCache = make(map[EntityID]interface{})
}

// ActiveCount returns the number of currently alive entities.
func (t *Table) ActiveCount() int { return int(t.active.Count()) }

// ActiveMask exposes the raw active bitset for the query engine.
func (t *Table) ActiveMask() *bitset.BitSet { return t.active }

// Clear resets the table to empty (definitions/registrations survive
// elsewhere; this is entity-instance state only), used by snapshot load.
func (t *Table) Clear() {
	t.active.ClearAll()
	t.entityByIdx = make(map[uint32]EntityID)
	t.typeOf = make(map[EntityID]string)
	t.componentsOf = make(map[EntityID][]ComponentType)
	t.clientOf = make(map[EntityID]ClientID)
	t.clientToEnt = make(map[ClientID]EntityID)
	t.inputCache = make(map[EntityID]interface{})
}
