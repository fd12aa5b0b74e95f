package alloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_Allocate_SmallestFreeIndexFirst(t *testing.T) {
	// Arrange
	a := New(1024)
	e0, _ := a.Allocate()
	e1, _ := a.Allocate()
	e2, _ := a.Allocate()
	a.Free(e1)

	// Act
	reused, err := a.Allocate()

	// Assert: index 1 (the only free slot) must be reused before extending.
	assert.NoError(t, err)
	assert.Equal(t, e1.Index(), reused.Index())
	assert.NotEqual(t, e0.Index(), e2.Index())
}

func Test_Free_IncrementsGenerationModuloMax(t *testing.T) {
	// Arrange
	a := New(16)
	e, _ := a.Allocate()
	gen0 := e.Generation()

	// Act
	a.Free(e)
	reused, _ := a.Allocate()

	// Assert
	assert.Equal(t, gen0+1, reused.Generation())
}

func Test_IsValid_FalseAfterFree(t *testing.T) {
	a := New(16)
	e, _ := a.Allocate()
	assert.True(t, a.IsValid(e))
	a.Free(e)
	assert.False(t, a.IsValid(e))
}

func Test_Allocate_ExhaustedCapacity(t *testing.T) {
	// Arrange
	a := New(2)
	_, err1 := a.Allocate()
	_, err2 := a.Allocate()
	assert.NoError(t, err1)
	assert.NoError(t, err2)

	// Act
	_, err := a.Allocate()

	// Assert
	assert.Error(t, err)
	var capErr *ErrCapacityExceeded
	assert.ErrorAs(t, err, &capErr)
}

func Test_AllocateSpecific_ExtendsNextIndex(t *testing.T) {
	// Arrange
	a := New(1024)

	// Act
	err := a.AllocateSpecific(Make(50, 3, false))

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, uint32(51), a.NextIndex())
	assert.True(t, a.IsValid(Make(50, 3, false)))
}

func Test_SaveLoad_RoundTrip(t *testing.T) {
	// Arrange
	a := New(16)
	e1, _ := a.Allocate()
	e2, _ := a.Allocate()
	a.Free(e1)
	state := a.Save()

	// Act
	b := New(16)
	b.Load(state)

	// Assert
	assert.Equal(t, a.IsValid(e2), b.IsValid(e2))
	assert.Equal(t, a.NextIndex(), b.NextIndex())
	assert.Equal(t, a.FreeCount(), b.FreeCount())
}

func Test_TwoAllocators_SameOperationSequence_ProduceSameIDs(t *testing.T) {
	// Arrange
	a1, a2 := New(64), New(64)

	// Act & Assert
	e1a, _ := a1.Allocate()
	e1b, _ := a2.Allocate()
	assert.Equal(t, e1a, e1b)

	e2a, _ := a1.Allocate()
	e2b, _ := a2.Allocate()
	assert.Equal(t, e2a, e2b)

	a1.Free(e1a)
	a2.Free(e1b)

	e3a, _ := a1.Allocate()
	e3b, _ := a2.Allocate()
	assert.Equal(t, e3a, e3b)
}

func Test_EntityID_BitLayout(t *testing.T) {
	id := Make(12345, 7, true)
	assert.Equal(t, uint32(12345), id.Index())
	assert.Equal(t, uint32(7), id.Generation())
	assert.True(t, id.IsLocalOnly())
}
