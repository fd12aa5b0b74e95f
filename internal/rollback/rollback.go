// Package rollback implements the bounded snapshot ring buffer from spec
// §4.M: frames older than the retention window are evicted as new frames
// are saved, bounding memory regardless of session length.
package rollback

import "lockstep/internal/snapshot"

// DefaultSize is the ring capacity R used when none is configured.
const DefaultSize = 60

// Buffer is a ring of snapshots keyed by frame number.
type Buffer struct {
	size  int
	slots map[uint32]*snapshot.Snapshot
}

// New creates a buffer retaining the most recent 'size' frames.
func New(size int) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	return &Buffer{size: size, slots: make(map[uint32]*snapshot.Snapshot)}
}

// Save inserts snap under frame, evicting every frame < frame-size+1.
func (b *Buffer) Save(frame uint32, snap *snapshot.Snapshot) {
	b.slots[frame] = snap
	cutoff := int64(frame) - int64(b.size) + 1
	if cutoff <= 0 {
		return
	}
	for f := range b.slots {
		if int64(f) < cutoff {
			delete(b.slots, f)
		}
	}
}

// Get returns the snapshot saved at frame, if still retained.
func (b *Buffer) Get(frame uint32) (*snapshot.Snapshot, bool) {
	s, ok := b.slots[frame]
	return s, ok
}

// Clear empties the buffer, used after a hard resync (spec §4.O step 5
// resets prev_snapshot/history; the rollback buffer follows suit since its
// contents predate the new authoritative baseline).
func (b *Buffer) Clear() {
	b.slots = make(map[uint32]*snapshot.Snapshot)
}

// Len reports how many frames are currently retained.
func (b *Buffer) Len() int { return len(b.slots) }
