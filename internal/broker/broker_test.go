package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_EncodeDecodeStateHash_RoundTrips(t *testing.T) {
	data := EncodeStateHash(42, 0xDEADBEEF)
	assert.Len(t, data, 9)

	frame, hash, err := DecodeStateHash(data)
	require.NoError(t, err)
	assert.Equal(t, uint32(42), frame)
	assert.Equal(t, uint32(0xDEADBEEF), hash)
}

func Test_DecodeStateHash_RejectsWrongLength(t *testing.T) {
	_, _, err := DecodeStateHash([]byte{1, 2, 3})
	assert.Error(t, err)
}

func Test_DecodeStateHash_RejectsWrongTypeByte(t *testing.T) {
	data := EncodeStateHash(1, 1)
	data[0] = 0xFF
	_, _, err := DecodeStateHash(data)
	assert.Error(t, err)
}

func Test_Hub_DeliverTick_ReachesEveryOtherPeer(t *testing.T) {
	// Arrange
	hub := NewHub(60)
	var bReceived []WireInput
	_, _ = hub.Connect("a", nil, Handlers{})
	_, _ = hub.Connect("b", nil, Handlers{OnTick: func(frame uint32, inputs []WireInput, majorityHash *uint32) {
		bReceived = inputs
	}})

	// Act
	hub.DeliverTick("a", 1, []WireInput{{ClientID: "a", Data: []byte("x")}}, nil)

	// Assert
	require.Len(t, bReceived, 1)
	assert.Equal(t, "a", bReceived[0].ClientID)
}

func Test_Hub_RequestResync_IsRecorded(t *testing.T) {
	hub := NewHub(60)
	conn, _ := hub.Connect("a", nil, Handlers{})

	require.NoError(t, conn.RequestResync())

	assert.Equal(t, []string{"a"}, hub.ResyncRequests())
}
