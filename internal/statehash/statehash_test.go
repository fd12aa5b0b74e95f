package statehash

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lockstep/internal/alloc"
	"lockstep/internal/ecs"
	"lockstep/internal/fixed"
)

func newHashWorld() *ecs.World {
	w := ecs.NewWorld(256, 1)
	w.Store.RegisterType(ecs.Schema{
		Name:   "transform",
		Fields: []ecs.FieldSpec{{Name: "x", Type: ecs.FieldI32}, {Name: "y", Type: ecs.FieldI32}},
		Sync:   true,
	})
	w.RegisterDefinition(ecs.Definition{TypeName: "thing", Components: []ecs.ComponentType{"transform"}})
	return w
}

func Test_Compute_IsPureFunctionOfEntitiesAndSyncedFields(t *testing.T) {
	// Arrange
	w1 := newHashWorld()
	w2 := newHashWorld()
	id1, _ := w1.Spawn("thing", ecs.PropertyOverrides{"x": fixed.FromInt(5)}, false)
	id2, _ := w2.Spawn("thing", ecs.PropertyOverrides{"x": fixed.FromInt(5)}, false)
	assert.Equal(t, id1, id2)

	// Act
	h1 := New(w1).Compute()
	h2 := New(w2).Compute()

	// Assert
	assert.Equal(t, h1, h2)
}

func Test_Compute_ChangesWhenFieldChanges(t *testing.T) {
	w := newHashWorld()
	id, _ := w.Spawn("thing", nil, false)
	h1 := New(w).Compute()

	w.Store.SetI32(id, "transform", "x", fixed.FromInt(99))
	h2 := New(w).Compute()

	assert.NotEqual(t, h1, h2)
}

func Test_Compute_IgnoresUnsyncedComponent(t *testing.T) {
	w := newHashWorld()
	w.Store.RegisterType(ecs.Schema{Name: "local", Fields: []ecs.FieldSpec{{Name: "v", Type: ecs.FieldI32}}, Sync: false})
	w.RegisterDefinition(ecs.Definition{TypeName: "withLocal", Components: []ecs.ComponentType{"transform", "local"}})
	id, _ := w.Spawn("withLocal", nil, false)
	h1 := New(w).Compute()

	w.Store.SetI32(id, "local", "v", fixed.FromInt(123))
	h2 := New(w).Compute()

	assert.Equal(t, h1, h2)
}

func Test_Compute_SyncNoneEntity_ExcludedEntirely(t *testing.T) {
	w := newHashWorld()
	w.RegisterDefinition(ecs.Definition{
		TypeName:   "ghost",
		Components: []ecs.ComponentType{"transform"},
		SyncFields: map[ecs.ComponentType][]string{},
	})
	hBefore := New(w).Compute()
	_, _ = w.Spawn("ghost", nil, false)
	hAfter := New(w).Compute()

	assert.Equal(t, hBefore, hAfter)
}

func Test_History_EvictsOldestBeyondWindow(t *testing.T) {
	// Arrange
	h := NewHistory(2)

	// Act
	h.Record(1, 10)
	h.Record(2, 20)
	h.Record(3, 30)

	// Assert
	_, ok := h.Get(1)
	assert.False(t, ok)
	v, ok := h.Get(3)
	assert.True(t, ok)
	assert.Equal(t, uint32(30), v)
}

func Test_LocalOnlyEntity_ExcludedFromHash(t *testing.T) {
	w := newHashWorld()
	h1 := New(w).Compute()
	_, _ = w.Spawn("thing", ecs.PropertyOverrides{"x": fixed.FromInt(alloc.MaxEntities)}, true)
	h2 := New(w).Compute()
	assert.Equal(t, h1, h2)
}
