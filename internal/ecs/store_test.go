package ecs

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lockstep/internal/alloc"
	"lockstep/internal/fixed"
)

func Test_Store_AddWritesDefaults(t *testing.T) {
	// Arrange
	s := NewStore(16)
	s.RegisterType(Schema{
		Name: "pos",
		Fields: []FieldSpec{
			{Name: "x", Type: FieldI32, Default: fixed.FromInt(7)},
		},
		Sync: true,
	})
	id := alloc.Make(3, 0, false)

	// Act
	s.Add(id, "pos")

	// Assert
	assert.True(t, s.Has(id, "pos"))
	assert.Equal(t, fixed.FromInt(7), s.GetI32(id, "pos", "x"))
}

func Test_Store_RemoveClearsPresence(t *testing.T) {
	s := NewStore(16)
	s.RegisterType(Schema{Name: "pos", Fields: []FieldSpec{{Name: "x", Type: FieldI32}}})
	id := alloc.Make(3, 0, false)
	s.Add(id, "pos")

	s.Remove(id, "pos")

	assert.False(t, s.Has(id, "pos"))
}

func Test_Store_RegistrationOrder_IsStable(t *testing.T) {
	s := NewStore(16)
	s.RegisterType(Schema{Name: "b"})
	s.RegisterType(Schema{Name: "a"})
	s.RegisterType(Schema{Name: "b"}) // idempotent re-registration

	assert.Equal(t, []ComponentType{"b", "a"}, s.RegistrationOrder())
}

func Test_Store_BoolAndU8Fields(t *testing.T) {
	s := NewStore(16)
	s.RegisterType(Schema{
		Name: "flags",
		Fields: []FieldSpec{
			{Name: "alive", Type: FieldBool, Default: 1},
			{Name: "team", Type: FieldU8, Default: 2},
		},
	})
	id := alloc.Make(0, 0, false)
	s.Add(id, "flags")

	assert.True(t, s.GetBool(id, "flags", "alive"))
	assert.Equal(t, byte(2), s.GetU8(id, "flags", "team"))

	s.SetBool(id, "flags", "alive", false)
	s.SetU8(id, "flags", "team", 9)
	assert.False(t, s.GetBool(id, "flags", "alive"))
	assert.Equal(t, byte(9), s.GetU8(id, "flags", "team"))
}
