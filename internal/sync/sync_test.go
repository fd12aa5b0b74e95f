package sync

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockstep/internal/broker"
	"lockstep/internal/config"
	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/guard"
	"lockstep/internal/sim"
	"lockstep/internal/snapshot"
	"lockstep/internal/statehash"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// newOrchestrator builds an Orchestrator bound to its own Hub so
// RequestResync/SendPartitionData etc. have somewhere real to go.
func newOrchestrator(isServer bool, cfg config.Room, hub *broker.Hub, clientID string) *Orchestrator {
	w := ecs.NewWorld(256, 1)
	w.RegisterDefinition(ecs.Definition{TypeName: "player"})
	s := sched.New()
	g := guard.New(testLog(), false)
	conn, _ := hub.Connect(clientID, nil, broker.Handlers{})
	return New(w, s, g, conn, testLog(), cfg, isServer)
}

func Test_ApplyLifecycle_FirstJoinerBecomesAuthority(t *testing.T) {
	// Arrange
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")

	// Act
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "b"})

	// Assert
	assert.Equal(t, "a", o.authorityClientID)
	assert.Equal(t, []string{"a", "b"}, o.ActiveClients())
}

func Test_ApplyLifecycle_AuthoritySuccessionFollowsJoinOrderNotAlphabetical(t *testing.T) {
	// Arrange: "z" joins before "a", so join order is [z, a].
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "z")
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "z"})
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})
	require.Equal(t, "z", o.authorityClientID)

	// Act: the authority (z) leaves.
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleLeave, ClientID: "z"})

	// Assert: next in join order ("a") takes over.
	assert.Equal(t, "a", o.authorityClientID)
}

func Test_ApplyLifecycle_SecondJoinerDoesNotStealAuthority(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "b"})
	assert.Equal(t, "a", o.authorityClientID)
}

func Test_ApplyLifecycle_LastClientLeavingClearsAuthority(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleLeave, ClientID: "a"})
	assert.Equal(t, "", o.authorityClientID)
	assert.Empty(t, o.ActiveClients())
}

func Test_IsAuthority_TrueOnlyForLocalClientMatchingAuthority(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})

	o.localClientID = "a"
	assert.True(t, o.IsAuthority())

	o.localClientID = "b"
	assert.False(t, o.IsAuthority())
}

func Test_ConnectLocalFirst_RunsAtLeastOneTickWhenNoServerInputs(t *testing.T) {
	// Arrange
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	created := false

	// Act
	err := o.ConnectLocalFirst(func() { created = true }, nil, "a")

	// Assert
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint32(1), o.lastProcessedFrame)
	_, ok := o.HashHistory.Get(1)
	assert.True(t, ok)
}

func Test_Connect_LateJoiner_CatchesUpThroughServerFrame(t *testing.T) {
	// Arrange: seed an origin room and snapshot it at frame 3.
	hub := broker.NewHub(30)
	origin := newOrchestrator(true, config.Defaults(), hub, "a")
	require.NoError(t, origin.ConnectLocalFirst(func() {
		_, err := origin.World.Spawn("player", nil, false)
		require.NoError(t, err)
	}, nil, "a"))
	require.NoError(t, origin.tickFrame(2, nil))
	require.NoError(t, origin.tickFrame(3, nil))

	snap := snapshot.Encode(origin.World, 3, 0, statehash.New(origin.World).Compute())
	snapBytes, err := snapshot.ToBytes(snap)
	require.NoError(t, err)

	// Act: a late joiner connects at server frame 5 with no pending
	// inputs beyond the snapshot.
	joiner := newOrchestrator(false, config.Defaults(), hub, "b")
	err = joiner.Connect(snapBytes, nil, 5, "b")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint32(5), joiner.lastProcessedFrame)
}

func Test_Connect_GapExceedingMaxCatchupFrames_RequestsResync(t *testing.T) {
	// Arrange
	hub := broker.NewHub(30)
	origin := newOrchestrator(true, config.Defaults(), hub, "a")
	require.NoError(t, origin.ConnectLocalFirst(nil, nil, "a"))
	snap := snapshot.Encode(origin.World, 1, 0, statehash.New(origin.World).Compute())
	snapBytes, err := snapshot.ToBytes(snap)
	require.NoError(t, err)

	cfg := config.Defaults()
	cfg.MaxCatchupFrames = 10
	joiner := newOrchestrator(false, cfg, hub, "b")

	// Act: server is 1000 frames ahead of the snapshot.
	err = joiner.Connect(snapBytes, nil, 1000, "b")

	// Assert
	require.NoError(t, err)
	assert.True(t, joiner.resyncPending)
	assert.Equal(t, []string{"b"}, hub.ResyncRequests())
}

func Test_HandleMajorityHash_MatchingHashClearsDesync(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	require.NoError(t, o.ConnectLocalFirst(nil, nil, "a"))
	o.isDesynced = true

	local, ok := o.HashHistory.Get(1)
	require.True(t, ok)

	o.HandleMajorityHash(1, local)

	assert.False(t, o.isDesynced)
	assert.Equal(t, uint64(1), o.hashPassed)
}

func Test_HandleMajorityHash_MismatchTriggersResyncRequest(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(false, config.Defaults(), hub, "a")
	require.NoError(t, o.ConnectLocalFirst(nil, nil, "a"))

	o.HandleMajorityHash(1, 0xBADBAD)

	assert.True(t, o.isDesynced)
	assert.True(t, o.resyncPending)
	assert.Equal(t, uint64(1), o.hashFailed)
	assert.Equal(t, []string{"a"}, hub.ResyncRequests())
}

func Test_HandleMajorityHash_UnknownFrameIsSkippedSilently(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	o.HandleMajorityHash(999, 1)
	assert.False(t, o.isDesynced)
}

func Test_HandleResyncSnapshot_HardReplacesAndClearsDesync(t *testing.T) {
	// Arrange: two orchestrators, one acting as authority that snapshots
	// its (different) world state for the other to adopt.
	hub := broker.NewHub(30)
	authority := newOrchestrator(true, config.Defaults(), hub, "a")
	require.NoError(t, authority.ConnectLocalFirst(func() {
		_, err := authority.World.Spawn("player", nil, false)
		require.NoError(t, err)
	}, nil, "a"))

	peer := newOrchestrator(false, config.Defaults(), hub, "b")
	require.NoError(t, peer.ConnectLocalFirst(nil, nil, "b"))
	peer.isDesynced = true
	peer.resyncPending = true

	snap := snapshot.Encode(authority.World, authority.lastProcessedFrame, 0, statehash.New(authority.World).Compute())
	snapBytes, err := snapshot.ToBytes(snap)
	require.NoError(t, err)

	// Act
	err = peer.HandleResyncSnapshot(snapBytes, authority.lastProcessedFrame, nil)

	// Assert
	require.NoError(t, err)
	assert.False(t, peer.isDesynced)
	assert.False(t, peer.resyncPending)
	assert.Equal(t, authority.lastProcessedFrame, peer.lastProcessedFrame)
	assert.Equal(t, 1, peer.World.Table.ActiveCount())
}

func Test_ContinuousSync_SingleActiveClient_ReturnsNoError(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	o.localClientID = "a"
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})

	err := o.ContinuousSync(1)
	require.NoError(t, err)
}

func Test_HandleServerTick_WiredThroughHubDeliversMajorityHashConsensus(t *testing.T) {
	// Arrange: "b" connects with OnTick routed through HandleServerTick,
	// the same wiring the demo CLI installs on Handlers.OnTick.
	hub := broker.NewHub(30)
	conn, _ := hub.Connect("b", nil, broker.Handlers{})
	w := ecs.NewWorld(256, 1)
	w.RegisterDefinition(ecs.Definition{TypeName: "player"})
	o := New(w, sched.New(), guard.New(testLog(), false), conn, testLog(), config.Defaults(), false)
	o.localClientID = "b"

	_, err := conn.Connect("b", nil, broker.Handlers{
		OnTick: func(frame uint32, inputs []broker.WireInput, majorityHash *uint32) {
			assert.NoError(t, o.HandleServerTick(frame, inputs, majorityHash))
		},
	})
	require.NoError(t, err)
	_, _ = hub.Connect("a", nil, broker.Handlers{}) // the hub's "other" peer/originator

	// Act: frame 1 arrives with nothing yet to confirm, then frame 2
	// arrives carrying the majority hash for frame 1.
	hub.DeliverTick("a", 1, nil, nil)
	frame1Hash, ok := o.HashHistory.Get(1)
	require.True(t, ok)
	hub.DeliverTick("a", 2, nil, &frame1Hash)

	// Assert: both frames advanced the orchestrator, the per-tick hash was
	// sent over Conn.SendStateHash, and the majority hash for frame 1
	// matched, recording a consensus pass rather than a desync.
	assert.Equal(t, uint32(2), o.lastProcessedFrame)
	assert.Equal(t, uint64(1), o.hashPassed)
	assert.False(t, o.isDesynced)
	assert.Equal(t, 2, hub.StateHashCount())
}

func Test_HandleServerTick_StaleFrameIsRejected(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(false, config.Defaults(), hub, "b")
	require.NoError(t, o.ConnectLocalFirst(nil, nil, "b"))

	// Act: a frame at or below the last processed one must be a no-op.
	err := o.HandleServerTick(1, nil, nil)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint32(1), o.lastProcessedFrame)
}

func Test_ProduceAndUploadSnapshot_FiresOnJoinLifecycleForAuthority(t *testing.T) {
	// Arrange: "a" connects first and becomes authority.
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	require.NoError(t, o.ConnectLocalFirst(nil, nil, "a"))

	received := false
	_, _ = hub.Connect("watcher", nil, broker.Handlers{
		OnResyncSnapshot: func(bytes []byte, frame uint32, inputs []broker.WireInput) {
			received = true
		},
	})

	// Act: a join input for "a" itself arrives as a wire input (as it would
	// on the authority's own room-create tick).
	wi := broker.WireInput{ClientID: "a", Data: []byte(`{"type":"join","client_id":"a"}`)}
	err := o.tickFrame(2, []broker.WireInput{wi})

	// Assert
	require.NoError(t, err)
	assert.True(t, o.IsAuthority())
	assert.True(t, received)
}

func Test_ProduceAndUploadSnapshot_FiresOnResyncRequestLifecycle(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(true, config.Defaults(), hub, "a")
	require.NoError(t, o.ConnectLocalFirst(nil, nil, "a"))
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})
	require.True(t, o.IsAuthority())

	received := false
	_, _ = hub.Connect("watcher", nil, broker.Handlers{
		OnResyncSnapshot: func(bytes []byte, frame uint32, inputs []broker.WireInput) {
			received = true
		},
	})

	// Act: a peer's resync_request lifecycle input arrives.
	wi := broker.WireInput{ClientID: "b", Data: []byte(`{"type":"resync_request","client_id":"b"}`)}
	err := o.tickFrame(2, []broker.WireInput{wi})

	// Assert
	require.NoError(t, err)
	assert.True(t, received)
}

func Test_ProduceAndUploadSnapshot_NoOpForNonAuthority(t *testing.T) {
	hub := broker.NewHub(30)
	o := newOrchestrator(false, config.Defaults(), hub, "b")
	require.NoError(t, o.ConnectLocalFirst(nil, nil, "b"))

	received := false
	_, _ = hub.Connect("watcher", nil, broker.Handlers{
		OnResyncSnapshot: func(bytes []byte, frame uint32, inputs []broker.WireInput) {
			received = true
		},
	})

	// Act
	err := o.ProduceAndUploadSnapshot(5)

	// Assert
	require.NoError(t, err)
	assert.False(t, received)
}

func Test_ContinuousSync_PartitionedMultiClientDelta_ReturnsNoError(t *testing.T) {
	// Arrange: two active clients, enough entities to form several
	// partitions.
	cfg := config.Defaults()
	cfg.PartitionSize = 1
	hub := broker.NewHub(30)
	o := newOrchestrator(true, cfg, hub, "a")
	_ = newOrchestrator(false, cfg, hub, "b") // registers "b" as a peer on the hub
	o.localClientID = "a"
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "a"})
	o.applyLifecycle(sim.Lifecycle{Type: sim.LifecycleJoin, ClientID: "b"})
	for i := 0; i < 4; i++ {
		_, err := o.World.Spawn("player", nil, false)
		require.NoError(t, err)
	}

	// Act: establish a baseline, then mutate and sync once more.
	require.NoError(t, o.ContinuousSync(1))
	_, err := o.World.Spawn("player", nil, false)
	require.NoError(t, err)

	// Assert: does not error when computing/sending a genuine delta across
	// a partitioned, multi-client room.
	require.NoError(t, o.ContinuousSync(2))
}
