package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"lockstep/internal/alloc"
	"lockstep/internal/intern"
	"lockstep/internal/simerr"
)

// wireMeta carries everything except the large packed numeric field
// arrays, which is exactly what spec §4.H's framing calls for: "Meta is a
// JSON-like carrier of everything except the large numeric arrays".
type wireMeta struct {
	Frame       uint32
	Seq         uint64
	Hash        uint32
	HasHash     bool
	Types       []string
	Schemas     [][]ComponentSchema
	EntityMeta  []entityMeta
	Allocator   alloc.State
	Interner    []intern.NamespaceState
	RNG         uint32
	ClientIDMap map[string]uint32
}

type entityMeta struct {
	EID       uint32
	TypeIndex int
	ClientID  string
	NumValues int
}

// FormatTag is the fixed format byte for the type-indexed compact
// snapshot format (spec §6: "Format tag 5").
const FormatTag byte = 5

// ToBytes serializes a Snapshot to the wire framing:
// u8 formatTag | u32 metaLen LE | metaBytes | u32 maskLen LE | maskBytes |
// componentBytes (one little-endian int32 per EntityRecord.Values entry,
// in entity order). The byte stream is a pure function of Snapshot
// contents, so two peers with identical world state produce identical
// bytes (spec §6).
func ToBytes(snap *Snapshot) ([]byte, error) {
	meta := wireMeta{
		Frame:       snap.Frame,
		Seq:         snap.Seq,
		Hash:        snap.Hash,
		HasHash:     snap.HasHash,
		Types:       snap.Types,
		Schemas:     snap.Schemas,
		RNG:         snap.RNG,
		ClientIDMap: snap.ClientIDMap,
		Allocator:   snap.Allocator,
		Interner:    snap.Interner,
	}

	maxEID := uint(0)
	for _, rec := range snap.Entities {
		meta.EntityMeta = append(meta.EntityMeta, entityMeta{
			EID: rec.EID, TypeIndex: rec.TypeIndex, ClientID: rec.ClientID, NumValues: len(rec.Values),
		})
		if uint(rec.EID) > maxEID {
			maxEID = uint(rec.EID)
		}
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal meta: %w", err)
	}

	mask := bitset.New(maxEID + 1)
	for _, rec := range snap.Entities {
		mask.Set(uint(rec.EID))
	}
	maskBytes, err := mask.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal mask: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte(FormatTag)
	writeU32(&buf, uint32(len(metaBytes)))
	buf.Write(metaBytes)
	writeU32(&buf, uint32(len(maskBytes)))
	buf.Write(maskBytes)
	for _, rec := range snap.Entities {
		for _, v := range rec.Values {
			writeU32(&buf, uint32(int32(v)))
		}
	}
	return buf.Bytes(), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

// FromBytes parses the wire framing back into a Snapshot. Corrupt input
// produces simerr.DecodeFailed, per the spec §7 taxonomy. The mask blob
// is validated against the entity list but not otherwise consulted: it
// exists on the wire for fast membership probing by receivers that don't
// need the full entity records (e.g. delta computation), not because
// decode needs it.
func FromBytes(data []byte) (*Snapshot, error) {
	if len(data) < 1+4 {
		return nil, simerr.DecodeFailed("snapshot: truncated header")
	}
	if data[0] != FormatTag {
		return nil, simerr.DecodeFailed("snapshot: unexpected format tag %d", data[0])
	}
	pos := 1
	metaLen := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	if pos+int(metaLen) > len(data) {
		return nil, simerr.DecodeFailed("snapshot: truncated meta")
	}
	var meta wireMeta
	if err := json.Unmarshal(data[pos:pos+int(metaLen)], &meta); err != nil {
		return nil, simerr.DecodeFailed("snapshot: invalid meta json: %v", err)
	}
	pos += int(metaLen)

	if pos+4 > len(data) {
		return nil, simerr.DecodeFailed("snapshot: truncated mask length")
	}
	maskLen := binary.LittleEndian.Uint32(data[pos:])
	pos += 4
	if pos+int(maskLen) > len(data) {
		return nil, simerr.DecodeFailed("snapshot: truncated mask")
	}
	mask := &bitset.BitSet{}
	if err := mask.UnmarshalBinary(data[pos : pos+int(maskLen)]); err != nil {
		return nil, simerr.DecodeFailed("snapshot: invalid mask: %v", err)
	}
	pos += int(maskLen)

	snap := &Snapshot{
		Frame:       meta.Frame,
		Seq:         meta.Seq,
		Hash:        meta.Hash,
		HasHash:     meta.HasHash,
		Types:       meta.Types,
		Schemas:     meta.Schemas,
		RNG:         meta.RNG,
		ClientIDMap: meta.ClientIDMap,
		Allocator:   meta.Allocator,
		Interner:    meta.Interner,
	}

	for _, em := range meta.EntityMeta {
		if !mask.Test(uint(em.EID)) {
			return nil, simerr.DecodeFailed("snapshot: entity %d missing from mask", em.EID)
		}
		rec := EntityRecord{EID: em.EID, TypeIndex: em.TypeIndex, ClientID: em.ClientID}
		for i := 0; i < em.NumValues; i++ {
			if pos+4 > len(data) {
				return nil, simerr.DecodeFailed("snapshot: truncated component data")
			}
			v := int32(binary.LittleEndian.Uint32(data[pos:]))
			rec.Values = append(rec.Values, int64(v))
			pos += 4
		}
		snap.Entities = append(snap.Entities, rec)
	}
	return snap, nil
}
