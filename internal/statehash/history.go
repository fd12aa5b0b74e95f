package statehash

// History is the bounded frame->hash map from spec §3: retention window W
// (default 10). Frames older than the window are dropped as new frames
// are recorded.
type History struct {
	window int
	hashes map[uint32]uint32
	order  []uint32 // frames in insertion order, for eviction
}

const DefaultWindow = 10

// NewHistory creates a history with the given retention window.
func NewHistory(window int) *History {
	if window <= 0 {
		window = DefaultWindow
	}
	return &History{window: window, hashes: make(map[uint32]uint32)}
}

// Record stores hash for frame, evicting the oldest entry once the
// window is exceeded.
func (h *History) Record(frame uint32, hash uint32) {
	if _, exists := h.hashes[frame]; !exists {
		h.order = append(h.order, frame)
	}
	h.hashes[frame] = hash
	for len(h.order) > h.window {
		oldest := h.order[0]
		h.order = h.order[1:]
		delete(h.hashes, oldest)
	}
}

// Get returns the recorded hash for frame, or ok=false if it was never
// recorded or has since been evicted.
func (h *History) Get(frame uint32) (uint32, bool) {
	v, ok := h.hashes[frame]
	return v, ok
}

// Clear empties the history, used after a resync (spec §4.O step 5).
func (h *History) Clear() {
	h.hashes = make(map[uint32]uint32)
	h.order = nil
}

// Seed clears then records a single frame/hash pair, used to seed history
// with the post-resync hash (spec §4.O step 5).
func (h *History) Seed(frame, hash uint32) {
	h.Clear()
	h.Record(frame, hash)
}
