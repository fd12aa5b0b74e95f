package inputlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Set_OverwritesExistingClientPayload(t *testing.T) {
	// Arrange
	l := New()

	// Act
	l.Set(1, "a", []byte("x"))
	l.Set(1, "a", []byte("y"))

	// Assert
	entries, ok := l.Get(1)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("y"), entries[0].Payload)
}

func Test_Get_OrdersEntriesByAscendingClientID(t *testing.T) {
	l := New()
	l.Set(1, "charlie", []byte("3"))
	l.Set(1, "alice", []byte("1"))
	l.Set(1, "bob", []byte("2"))

	entries, ok := l.Get(1)
	require.True(t, ok)
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].ClientID)
	assert.Equal(t, "bob", entries[1].ClientID)
	assert.Equal(t, "charlie", entries[2].ClientID)
}

func Test_Confirm_ReplacesFrameAndMarksConfirmed(t *testing.T) {
	l := New()
	l.Set(5, "a", []byte("stale"))

	l.Confirm(5, map[string]Payload{"b": []byte("fresh")})

	entries, _ := l.Get(5)
	require.Len(t, entries, 1)
	assert.Equal(t, "b", entries[0].ClientID)
	assert.True(t, l.IsConfirmed(5))
}

func Test_GetRange_ReturnsEveryFrameInRange(t *testing.T) {
	l := New()
	l.Set(3, "a", nil)
	l.Set(1, "a", nil)
	l.Set(2, "a", nil)

	r := l.GetRange(1, 3)
	assert.Len(t, r, 3)
	for _, f := range []uint32{1, 2, 3} {
		_, ok := r[f]
		assert.True(t, ok)
	}
}

func Test_Prune_DropsFramesBeforeCutoff(t *testing.T) {
	l := New()
	l.Set(1, "a", nil)
	l.Set(2, "a", nil)
	l.Set(3, "a", nil)

	l.Prune(3)

	_, ok1 := l.Get(1)
	_, ok2 := l.Get(2)
	_, ok3 := l.Get(3)
	assert.False(t, ok1)
	assert.False(t, ok2)
	assert.True(t, ok3)
}

func Test_Frames_ReturnsAscendingSortedFrameNumbers(t *testing.T) {
	l := New()
	l.Set(5, "a", nil)
	l.Set(1, "a", nil)
	l.Set(3, "a", nil)

	assert.Equal(t, []uint32{1, 3, 5}, l.Frames())
}
