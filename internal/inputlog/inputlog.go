// Package inputlog implements the per-frame input history from spec §4.L:
// `history: frame -> {inputs: map<client_id, payload>, confirmed}`, with
// deterministic iteration order required by replay/catchup and by
// serialization.
package inputlog

import "sort"

// Payload is an opaque per-client input blob; the kernel never interprets
// its contents, only orders and stores it.
type Payload = []byte

// Frame is one frame's recorded inputs.
type Frame struct {
	Inputs    map[string]Payload
	Confirmed bool
}

// Entry is one (client_id, payload) pair in ascending client_id order, the
// shape callers iterate over via GetRange.
type Entry struct {
	ClientID string
	Payload  Payload
}

// Log is the input history keyed by frame number.
type Log struct {
	frames map[uint32]*Frame
}

// New creates an empty input log.
func New() *Log {
	return &Log{frames: make(map[uint32]*Frame)}
}

func (l *Log) frame(frame uint32) *Frame {
	f, ok := l.frames[frame]
	if !ok {
		f = &Frame{Inputs: make(map[string]Payload)}
		l.frames[frame] = f
	}
	return f
}

// Set inserts or overwrites one client's input for frame. Does not mark
// the frame confirmed (spec §4.L: set vs confirm are distinct operations).
func (l *Log) Set(frame uint32, clientID string, payload Payload) {
	l.frame(frame).Inputs[clientID] = payload
}

// Confirm replaces the entire frame with authoritative data and marks it
// confirmed.
func (l *Log) Confirm(frame uint32, inputs map[string]Payload) {
	f := l.frame(frame)
	f.Inputs = inputs
	f.Confirmed = true
}

// Get returns the frame's entries in ascending client_id order, and
// whether the frame exists at all.
func (l *Log) Get(frame uint32) ([]Entry, bool) {
	f, ok := l.frames[frame]
	if !ok {
		return nil, false
	}
	return entriesOf(f), true
}

// IsConfirmed reports whether frame has been confirmed.
func (l *Log) IsConfirmed(frame uint32) bool {
	f, ok := l.frames[frame]
	return ok && f.Confirmed
}

// GetRange returns every recorded frame in a..=b, keyed by frame number;
// within each frame, entries are ascending client_id (spec §4.L). The
// result is a map, so ranging over it does not visit frames in ascending
// order.
func (l *Log) GetRange(a, b uint32) map[uint32][]Entry {
	out := make(map[uint32][]Entry)
	for frame := a; frame <= b; frame++ {
		if f, ok := l.frames[frame]; ok {
			out[frame] = entriesOf(f)
		}
		if frame == ^uint32(0) {
			break // guard against overflow if b is the max uint32
		}
	}
	return out
}

// Frames returns every frame number currently present, ascending.
func (l *Log) Frames() []uint32 {
	out := make([]uint32, 0, len(l.frames))
	for f := range l.frames {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Prune drops every frame strictly before 'before'.
func (l *Log) Prune(before uint32) {
	for f := range l.frames {
		if f < before {
			delete(l.frames, f)
		}
	}
}

func entriesOf(f *Frame) []Entry {
	out := make([]Entry, 0, len(f.Inputs))
	for c, p := range f.Inputs {
		out = append(out, Entry{ClientID: c, Payload: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
