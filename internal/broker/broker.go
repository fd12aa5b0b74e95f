// Package broker defines the transport contract between a room's sync
// orchestrator and the network (spec §6): connecting, sending inputs,
// hashes, snapshots and partitioned deltas, and receiving the matching
// inbound events. Concrete transports (the in-memory fake, the websocket
// reference implementation) live in sibling packages/files and only need
// to satisfy Conn.
package broker

// ConnectResult is what a successful Connect yields: the room's current
// snapshot (nil if the room was empty), pending inputs the peer missed,
// the server's current frame, its tick rate, and the caller's assigned
// client id.
type ConnectResult struct {
	Snapshot      []byte
	PendingInputs []WireInput
	ServerFrame   uint32
	FPS           int
	ClientID      string
}

// WireInput is one input record as it travels the wire (spec §6: "Input
// records on the wire carry {seq, clientId, data, frame?}").
type WireInput struct {
	Seq      uint64
	ClientID string
	Data     []byte
	Frame    *uint32 // nil when the input carries no explicit target frame
}

// Handlers are the inbound callbacks a Conn invokes as protocol events
// arrive. Conn implementations call these from whatever goroutine reads
// the transport; callers are responsible for any synchronization they
// need around world/orchestrator state.
type Handlers struct {
	OnTick              func(frame uint32, inputs []WireInput, majorityHash *uint32)
	OnBinarySnapshot    func(bytes []byte)
	OnMajorityHash      func(frame uint32, hash uint32)
	OnResyncSnapshot    func(bytes []byte, frame uint32, inputs []WireInput)
	OnReliabilityUpdate func(scores map[string]float64, version uint64)
}

// Conn is the transport contract from spec §6. Every outbound operation
// returns an error only for transport-level failures (simerr.NetworkError
// in concrete implementations); protocol-level concerns (bad frame
// ordering, hash mismatches) are the orchestrator's responsibility, not
// the transport's.
type Conn interface {
	// Connect joins roomId and installs handlers for subsequent inbound
	// events. opts is transport-specific (auth token, room options, etc).
	Connect(roomID string, opts map[string]string, h Handlers) (*ConnectResult, error)

	// Send transmits an opaque game input; delivery is ordered per client.
	Send(data []byte) error

	// SendSnapshot uploads a full snapshot. Authority-only by convention;
	// the transport itself does not enforce authority.
	SendSnapshot(bytes []byte, hash uint32, seq uint64, frame uint32) error

	// SendStateHash transmits this peer's per-tick state hash.
	SendStateHash(frame uint32, hash uint32) error

	// SendPartitionData transmits a partition's delta bytes; called once
	// per tick per partition this client owns.
	SendPartitionData(frame uint32, partitionID int, bytes []byte) error

	// RequestResync asks the authority for a fresh snapshot.
	RequestResync() error

	// Close releases transport resources.
	Close() error
}
