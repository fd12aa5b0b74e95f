package broker

import (
	"encoding/binary"

	"lockstep/internal/simerr"
)

// StateHashType is the fixed type byte for the 9-byte state-hash wire
// message (spec §6: exact byte is implementation-chosen but fixed for the
// protocol version).
const StateHashType byte = 1

// EncodeStateHash produces the 9-byte `[u8 type][u32 frame LE][u32 hash LE]`
// message.
func EncodeStateHash(frame, hash uint32) []byte {
	buf := make([]byte, 9)
	buf[0] = StateHashType
	binary.LittleEndian.PutUint32(buf[1:5], frame)
	binary.LittleEndian.PutUint32(buf[5:9], hash)
	return buf
}

// DecodeStateHash parses a state-hash message produced by EncodeStateHash.
func DecodeStateHash(data []byte) (frame, hash uint32, err error) {
	if len(data) != 9 {
		return 0, 0, simerr.DecodeFailed("broker: state-hash message must be 9 bytes, got %d", len(data))
	}
	if data[0] != StateHashType {
		return 0, 0, simerr.DecodeFailed("broker: unexpected state-hash type byte %d", data[0])
	}
	frame = binary.LittleEndian.Uint32(data[1:5])
	hash = binary.LittleEndian.Uint32(data[5:9])
	return frame, hash, nil
}
