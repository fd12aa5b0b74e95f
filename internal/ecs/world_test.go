package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lockstep/internal/fixed"
)

func Test_Spawn_UnknownType_ReturnsError(t *testing.T) {
	w := NewWorld(64, 1)
	_, err := w.Spawn("ghost", nil, false)
	assert.Error(t, err)
}

func Test_Spawn_AppliesPropertyOverrideToFirstMatchingComponent(t *testing.T) {
	// Arrange
	w := NewWorld(64, 1)
	w.Store.RegisterType(Schema{Name: "transform", Fields: []FieldSpec{{Name: "x", Type: FieldI32}}, Sync: true})
	w.Store.RegisterType(Schema{Name: "health", Fields: []FieldSpec{{Name: "hp", Type: FieldI32}}, Sync: true})
	w.RegisterDefinition(Definition{TypeName: "player", Components: []ComponentType{"transform", "health"}})

	// Act
	id, err := w.Spawn("player", PropertyOverrides{"x": fixed.FromInt(42)}, false)

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, fixed.FromInt(42), w.Store.GetI32(id, "transform", "x"))
}

func Test_Destroy_FreesIDAndClearsComponents(t *testing.T) {
	// Arrange
	w := NewWorld(64, 1)
	w.Store.RegisterType(Schema{Name: "transform", Fields: []FieldSpec{{Name: "x", Type: FieldI32}}})
	w.RegisterDefinition(Definition{TypeName: "thing", Components: []ComponentType{"transform"}})
	id, _ := w.Spawn("thing", nil, false)

	// Act
	w.Destroy(id)

	// Assert
	assert.False(t, w.Table.IsActive(id))
	assert.False(t, w.Store.Has(id, "transform"))
	assert.False(t, w.Alloc.IsValid(id))
}

func Test_ActiveEntitiesAscending_SkipsLocalOnly(t *testing.T) {
	w := NewWorld(64, 1)
	w.RegisterDefinition(Definition{TypeName: "thing"})
	local, _ := w.Spawn("thing", nil, true)
	networked, _ := w.Spawn("thing", nil, false)

	ascending := w.ActiveEntitiesAscending()

	assert.NotContains(t, ascending, local)
	assert.Contains(t, ascending, networked)
}

func Test_Reset_KeepsDefinitionsClearsInstances(t *testing.T) {
	w := NewWorld(64, 1)
	w.RegisterDefinition(Definition{TypeName: "thing"})
	id, _ := w.Spawn("thing", nil, false)

	w.Reset()

	assert.False(t, w.Table.IsActive(id))
	_, ok := w.Definition("thing")
	assert.True(t, ok)
}

func Test_SpawnWithID_RestoresExactID(t *testing.T) {
	w := NewWorld(64, 1)
	w.RegisterDefinition(Definition{TypeName: "thing"})
	original, _ := w.Spawn("thing", nil, false)
	w.Destroy(original)

	err := w.SpawnWithID(original, "thing", nil)

	assert.NoError(t, err)
	assert.True(t, w.Table.IsActive(original))
}
