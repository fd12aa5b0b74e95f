package broker

import (
	"sync"

	"github.com/google/uuid"
)

// Hub is an in-process message exchange simulating a room's server side:
// it fans out snapshot uploads and delivered ticks to every other
// connected peer's handlers, in call order, and records state hashes and
// resync requests. It exists so scenario tests (late-joiner
// catch-up, desync/resync, partitioned sync) can drive several Conns
// deterministically without a real network.
type Hub struct {
	mu             sync.Mutex
	peers          map[string]*FakeConn
	frame          uint32
	fps            int
	lastHash       []hashRecord
	resyncRequests []string
}

// NewHub creates an empty hub; fps is reported to joiners via
// ConnectResult.
func NewHub(fps int) *Hub {
	return &Hub{peers: make(map[string]*FakeConn), fps: fps}
}

// FakeConn is an in-memory Conn bound to a Hub, used by tests to exercise
// the sync orchestrator without a real transport.
type FakeConn struct {
	hub      *Hub
	clientID string
	handlers Handlers
}

// Connect registers a new peer with the hub. The client id is clientID,
// or opts["client_id"] when clientID is empty; if both are empty, the hub
// assigns one.
func (h *Hub) Connect(clientID string, opts map[string]string, handlers Handlers) (*FakeConn, *ConnectResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clientID == "" {
		clientID = opts["client_id"]
	}
	if clientID == "" {
		clientID = uuid.NewString()
	}
	c := &FakeConn{hub: h, clientID: clientID, handlers: handlers}
	h.peers[clientID] = c
	return c, &ConnectResult{ServerFrame: h.frame, FPS: h.fps, ClientID: clientID}
}

func (c *FakeConn) Connect(roomID string, opts map[string]string, h Handlers) (*ConnectResult, error) {
	c.handlers = h
	c.hub.mu.Lock()
	c.hub.peers[c.clientID] = c
	res := &ConnectResult{ServerFrame: c.hub.frame, FPS: c.hub.fps, ClientID: c.clientID}
	c.hub.mu.Unlock()
	return res, nil
}

// Send is a no-op on the fake: game inputs are expected to be injected
// into scenarios directly via Hub.DeliverTick rather than round-tripped
// through a simulated server loop.
func (c *FakeConn) Send(data []byte) error { return nil }

// SendSnapshot broadcasts a resync snapshot to every other peer.
func (c *FakeConn) SendSnapshot(bytes []byte, hash uint32, seq uint64, frame uint32) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	for id, peer := range c.hub.peers {
		if id == c.clientID || peer.handlers.OnResyncSnapshot == nil {
			continue
		}
		peer.handlers.OnResyncSnapshot(bytes, frame, nil)
	}
	return nil
}

// SendStateHash records the hash on the hub (counted by
// Hub.StateHashCount). It is not forwarded to other peers, and the fake
// hub computes no majority hash: tests pass one to Hub.DeliverTick.
func (c *FakeConn) SendStateHash(frame uint32, hash uint32) error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.lastHash = append(c.hub.lastHash, hashRecord{clientID: c.clientID, frame: frame, hash: hash})
	return nil
}

// SendPartitionData accepts and discards the partition data; nothing is
// recorded or forwarded.
func (c *FakeConn) SendPartitionData(frame uint32, partitionID int, bytes []byte) error { return nil }

// RequestResync notifies the hub a peer asked for resync; tests observe
// this via Hub.ResyncRequests.
func (c *FakeConn) RequestResync() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	c.hub.resyncRequests = append(c.hub.resyncRequests, c.clientID)
	return nil
}

// Close removes the peer from the hub.
func (c *FakeConn) Close() error {
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	delete(c.hub.peers, c.clientID)
	return nil
}

type hashRecord struct {
	clientID string
	frame    uint32
	hash     uint32
}

// DeliverTick invokes OnTick on every peer except the originator, with
// the given inputs and optional majority hash — the hub's way of
// simulating "the server delivered this frame".
func (h *Hub) DeliverTick(originator string, frame uint32, inputs []WireInput, majorityHash *uint32) {
	h.mu.Lock()
	h.frame = frame
	peers := make([]*FakeConn, 0, len(h.peers))
	for id, p := range h.peers {
		if id != originator {
			peers = append(peers, p)
		}
	}
	h.mu.Unlock()
	for _, p := range peers {
		if p.handlers.OnTick != nil {
			p.handlers.OnTick(frame, inputs, majorityHash)
		}
	}
}

// ResyncRequests returns every client id that has called RequestResync,
// in call order.
func (h *Hub) ResyncRequests() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.resyncRequests...)
}

// StateHashCount returns how many SendStateHash calls have been recorded
// across every peer on the hub, in call order.
func (h *Hub) StateHashCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.lastHash)
}
