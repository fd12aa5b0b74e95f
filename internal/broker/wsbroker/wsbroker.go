// Package wsbroker is the reference broker.Conn implementation: it
// multiplexes every spec §6 operation over one gorilla/websocket
// connection using a small tagged-envelope framing, mirroring the
// teacher's own websocket client/hub pattern (read pump / write pump with
// buffered send channel, ping/pong keepalive).
package wsbroker

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"lockstep/internal/broker"
	"lockstep/internal/simerr"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 8 << 20
)

// envelope is the tagged wire message every op/callback maps to.
type envelope struct {
	Type         string            `json:"type"`
	RoomID       string            `json:"roomId,omitempty"`
	Opts         map[string]string `json:"opts,omitempty"`
	Data         []byte            `json:"data,omitempty"`
	Hash         uint32            `json:"hash,omitempty"`
	Seq          uint64            `json:"seq,omitempty"`
	Frame        uint32            `json:"frame,omitempty"`
	PartitionID  int               `json:"partitionId,omitempty"`
	Inputs       []broker.WireInput `json:"inputs,omitempty"`
	MajorityHash *uint32           `json:"majorityHash,omitempty"`
	Scores       map[string]float64 `json:"scores,omitempty"`
	Version      uint64            `json:"version,omitempty"`
	Result       *broker.ConnectResult `json:"result,omitempty"`
}

const (
	typeConnect          = "connect"
	typeConnectAck        = "connect_ack"
	typeSend              = "send"
	typeSendSnapshot       = "send_snapshot"
	typeSendStateHash      = "send_state_hash"
	typeSendPartitionData = "send_partition_data"
	typeRequestResync     = "request_resync"
	typeOnTick            = "on_tick"
	typeOnBinarySnapshot  = "on_binary_snapshot"
	typeOnMajorityHash    = "on_majority_hash"
	typeOnResyncSnapshot  = "on_resync_snapshot"
	typeOnReliability     = "on_reliability_update"
)

// Conn is the websocket-backed broker.Conn. It satisfies the interface
// via a buffered outbound channel and a background write pump, the same
// shape the teacher's Client.readPump/writePump pair uses.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte
	log  *logrus.Entry

	mu       sync.Mutex
	handlers broker.Handlers
	closed   bool

	ackCh chan *broker.ConnectResult
}

// Dial opens a websocket connection to url. The returned Conn is not yet
// joined to a room; call Connect to complete the handshake.
func Dial(url string, header http.Header, log *logrus.Entry) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		return nil, simerr.NetworkError("wsbroker: dial %s: %v", url, err)
	}
	c := &Conn{ws: ws, send: make(chan []byte, 256), log: log, ackCh: make(chan *broker.ConnectResult, 1)}
	go c.writePump()
	go c.readPump()
	return c, nil
}

func (c *Conn) Connect(roomID string, opts map[string]string, h broker.Handlers) (*broker.ConnectResult, error) {
	c.mu.Lock()
	c.handlers = h
	c.mu.Unlock()

	if err := c.writeEnvelope(envelope{Type: typeConnect, RoomID: roomID, Opts: opts}); err != nil {
		return nil, err
	}
	select {
	case res := <-c.ackCh:
		return res, nil
	case <-time.After(writeWait * 3):
		return nil, simerr.NetworkError("wsbroker: connect handshake timed out")
	}
}

func (c *Conn) Send(data []byte) error {
	return c.writeEnvelope(envelope{Type: typeSend, Data: data})
}

func (c *Conn) SendSnapshot(bytes []byte, hash uint32, seq uint64, frame uint32) error {
	return c.writeEnvelope(envelope{Type: typeSendSnapshot, Data: bytes, Hash: hash, Seq: seq, Frame: frame})
}

func (c *Conn) SendStateHash(frame uint32, hash uint32) error {
	return c.writeEnvelope(envelope{Type: typeSendStateHash, Frame: frame, Hash: hash})
}

func (c *Conn) SendPartitionData(frame uint32, partitionID int, bytes []byte) error {
	return c.writeEnvelope(envelope{Type: typeSendPartitionData, Frame: frame, PartitionID: partitionID, Data: bytes})
}

func (c *Conn) RequestResync() error {
	return c.writeEnvelope(envelope{Type: typeRequestResync})
}

func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	close(c.send)
	return c.ws.Close()
}

func (c *Conn) writeEnvelope(e envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return simerr.NetworkError("wsbroker: marshal %s: %v", e.Type, err)
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return simerr.NetworkError("wsbroker: send on closed connection")
	}
	select {
	case c.send <- data:
		return nil
	default:
		return simerr.NetworkError("wsbroker: outbound buffer full")
	}
}

// writePump drains the send channel onto the socket with periodic pings,
// mirroring the teacher's keepalive pattern.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump dispatches inbound envelopes to the registered handlers.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessage)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.log != nil {
				c.log.WithError(err).Warn("wsbroker: read pump exiting")
			}
			return
		}
		var e envelope
		if err := json.Unmarshal(data, &e); err != nil {
			if c.log != nil {
				c.log.WithError(err).Warn("wsbroker: dropping malformed envelope")
			}
			continue
		}
		c.dispatch(e)
	}
}

func (c *Conn) dispatch(e envelope) {
	switch e.Type {
	case typeConnectAck:
		select {
		case c.ackCh <- e.Result:
		default:
		}
	case typeOnTick:
		c.mu.Lock()
		h := c.handlers
		c.mu.Unlock()
		if h.OnTick != nil {
			h.OnTick(e.Frame, e.Inputs, e.MajorityHash)
		}
	case typeOnBinarySnapshot:
		c.mu.Lock()
		h := c.handlers
		c.mu.Unlock()
		if h.OnBinarySnapshot != nil {
			h.OnBinarySnapshot(e.Data)
		}
	case typeOnMajorityHash:
		c.mu.Lock()
		h := c.handlers
		c.mu.Unlock()
		if h.OnMajorityHash != nil {
			h.OnMajorityHash(e.Frame, e.Hash)
		}
	case typeOnResyncSnapshot:
		c.mu.Lock()
		h := c.handlers
		c.mu.Unlock()
		if h.OnResyncSnapshot != nil {
			h.OnResyncSnapshot(e.Data, e.Frame, e.Inputs)
		}
	case typeOnReliability:
		c.mu.Lock()
		h := c.handlers
		c.mu.Unlock()
		if h.OnReliabilityUpdate != nil {
			h.OnReliabilityUpdate(e.Scores, e.Version)
		}
	}
}

var _ broker.Conn = (*Conn)(nil)
