// Package sync implements the sync orchestrator from spec §4.O: authority
// election, late-joiner catch-up, per-server-tick processing, majority-hash
// consensus and desync detection, authority-driven resync, and
// partitioned continuous sync. It is the component that turns the
// deterministic kernel (internal/sim) into a networked multiplayer room.
package sync

import (
	"encoding/json"
	"sort"

	"github.com/sirupsen/logrus"

	"lockstep/internal/broker"
	"lockstep/internal/config"
	"lockstep/internal/delta"
	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/fixed"
	"lockstep/internal/guard"
	"lockstep/internal/inputlog"
	"lockstep/internal/partition"
	"lockstep/internal/rollback"
	"lockstep/internal/sim"
	"lockstep/internal/simerr"
	"lockstep/internal/snapshot"
	"lockstep/internal/statehash"
)

// wireLifecycle is the JSON shape of a lifecycle input's Data payload
// (spec §6: "data may be binary encoded or JSON for lifecycle messages").
type wireLifecycle struct {
	Type     string `json:"type"`
	ClientID string `json:"client_id"`
}

var lifecycleTypes = map[string]sim.LifecycleType{
	"join":           sim.LifecycleJoin,
	"leave":          sim.LifecycleLeave,
	"disconnect":     sim.LifecycleDisconnect,
	"reconnect":      sim.LifecycleReconnect,
	"resync_request": sim.LifecycleResyncRequest,
}

func decodeWireInput(wi broker.WireInput) sim.InputRecord {
	rec := sim.InputRecord{ClientID: wi.ClientID, Seq: wi.Seq, Game: wi.Data}
	if wi.Frame != nil {
		rec.Frame = *wi.Frame
	}
	var lc wireLifecycle
	if json.Unmarshal(wi.Data, &lc) == nil {
		if kind, ok := lifecycleTypes[lc.Type]; ok {
			rec.Lifecycle = &sim.Lifecycle{Type: kind, ClientID: lc.ClientID}
			rec.Game = nil
		}
	}
	return rec
}

// Orchestrator is the per-room sync state machine from spec §4.O.
type Orchestrator struct {
	World    *ecs.World
	Kernel   *sim.Kernel
	Conn     broker.Conn
	Log      *logrus.Entry
	Cfg      config.Room

	HashHistory *statehash.History
	Rollback    *rollback.Buffer
	InputLog    *inputlog.Log
	Reliability *partition.ReliabilityTable

	authorityClientID string
	activeClients     []string
	joinOrder         []string // records join arrival order for authority succession
	localClientID     string

	lastProcessedFrame uint32
	lastInputSeq       uint64

	prevSnapshot *snapshot.Snapshot

	isDesynced            bool
	desyncFrame           uint32
	resyncPending         bool
	lastGoodSnapshotFrame uint32

	hashPassed uint64
	hashFailed uint64
}

// New creates an orchestrator bound to world/scheduler/conn, building its
// own Kernel so the kernel's lifecycle callback can close over the
// orchestrator (active_clients/authority maintenance, spec §4.N step 1).
// isServer selects whether the kernel runs the render phase.
func New(w *ecs.World, scheduler *sched.Scheduler, g *guard.Guard, conn broker.Conn, log *logrus.Entry, cfg config.Room, isServer bool) *Orchestrator {
	o := &Orchestrator{
		World:       w,
		Conn:        conn,
		Log:         log,
		Cfg:         cfg,
		HashHistory: statehash.NewHistory(cfg.HashHistoryWindow),
		Rollback:    rollback.New(cfg.RollbackSize),
		InputLog:    inputlog.New(),
		Reliability: partition.NewReliabilityTable(),
	}
	dt := fixed.Div(fixed.One, fixed.FromInt(maxInt(cfg.TickRateHz, 1)))
	o.Kernel = sim.New(w, scheduler, o.InputLog, g, isServer, dt, o.applyLifecycle)
	return o
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ActiveClients returns the sorted active-client set.
func (o *Orchestrator) ActiveClients() []string {
	return append([]string(nil), o.activeClients...)
}

// IsDesynced reports the current desync state.
func (o *Orchestrator) IsDesynced() bool { return o.isDesynced }

// applyLifecycle is the sim.LifecycleCallback wired into the Kernel: it
// maintains active_clients and authority, in arrival order (spec §4.N
// step 1 / §4.O authority election).
func (o *Orchestrator) applyLifecycle(rec sim.Lifecycle) {
	switch rec.Type {
	case sim.LifecycleJoin, sim.LifecycleReconnect:
		if !o.isActive(rec.ClientID) {
			o.activeClients = append(o.activeClients, rec.ClientID)
			sort.Strings(o.activeClients)
			o.joinOrder = append(o.joinOrder, rec.ClientID)
		}
		if o.authorityClientID == "" {
			o.authorityClientID = rec.ClientID
		}
	case sim.LifecycleLeave, sim.LifecycleDisconnect:
		o.removeActive(rec.ClientID)
		if o.authorityClientID == rec.ClientID {
			o.electAuthority()
		}
	case sim.LifecycleResyncRequest:
		// Nothing to update in active_clients/authority state here; the
		// actual snapshot upload this triggers (spec §4.O "Authority ...
		// produces and uploads full snapshots on demand") is driven by
		// tickFrame/HandleServerTick via ProduceAndUploadSnapshot, once
		// the triggering frame has finished ticking.
	}
}

// ProduceAndUploadSnapshot encodes the current world state and uploads it
// through Conn.SendSnapshot, as spec §4.O requires of the authority "on
// join, on leave-after-player-destruction, and on resync_request". It is a
// no-op for a non-authority orchestrator, so callers may invoke it
// unconditionally whenever one of those events occurs; game code that
// destroys a player entity on leave should call this itself right after
// the destroy, since the orchestrator has no way to know when that
// destruction (a game-specific policy) has happened.
func (o *Orchestrator) ProduceAndUploadSnapshot(frame uint32) error {
	if !o.IsAuthority() {
		return nil
	}
	o.lastInputSeq++
	hash := statehash.New(o.World).Compute()
	snap := snapshot.Encode(o.World, frame, o.lastInputSeq, hash)
	bytes, err := snapshot.ToBytes(snap)
	if err != nil {
		return err
	}
	if err := o.Conn.SendSnapshot(bytes, hash, o.lastInputSeq, frame); err != nil {
		return err
	}
	o.prevSnapshot = snap
	o.lastGoodSnapshotFrame = frame
	return nil
}

// triggersSnapshotUpload reports whether a lifecycle event is one of the
// two automatically-detectable triggers from spec §4.O's authority
// paragraph (join, resync_request); leave-after-destruction is triggered
// explicitly by game code instead, per ProduceAndUploadSnapshot's doc.
func triggersSnapshotUpload(kind sim.LifecycleType) bool {
	return kind == sim.LifecycleJoin || kind == sim.LifecycleResyncRequest
}

func (o *Orchestrator) isActive(clientID string) bool {
	for _, c := range o.activeClients {
		if c == clientID {
			return true
		}
	}
	return false
}

func (o *Orchestrator) removeActive(clientID string) {
	out := o.activeClients[:0]
	for _, c := range o.activeClients {
		if c != clientID {
			out = append(out, c)
		}
	}
	o.activeClients = out
}

// electAuthority passes authority to the earliest-joined remaining
// active client, as determined by join order (spec §4.O:
// "determined by join order recorded in the input log, not alphabetical
// order at steady state").
func (o *Orchestrator) electAuthority() {
	for _, c := range o.joinOrder {
		if o.isActive(c) {
			o.authorityClientID = c
			return
		}
	}
	o.authorityClientID = ""
}

// IsAuthority reports whether the local client currently holds authority.
func (o *Orchestrator) IsAuthority() bool {
	return o.localClientID != "" && o.localClientID == o.authorityClientID
}

// Connect runs the late-joiner catch-up path (spec §4.O "Connect flow
// (late joiner path)"). snapshotBytes may be nil if the room was empty.
func (o *Orchestrator) Connect(snapshotBytes []byte, pendingInputs []broker.WireInput, serverFrame uint32, localClientID string) error {
	o.localClientID = localClientID

	// Step 1: pre-intern client ids from snapshot-era lifecycle inputs
	// before loading, so client_id_map restoration is consistent.
	var snap *snapshot.Snapshot
	if snapshotBytes != nil {
		var err error
		snap, err = snapshot.FromBytes(snapshotBytes)
		if err != nil {
			return err
		}
		for _, wi := range pendingInputs {
			rec := decodeWireInput(wi)
			if rec.Lifecycle != nil && wi.Seq <= snap.Seq {
				o.World.Intern.Intern("client_id", rec.Lifecycle.ClientID)
			}
		}
	}

	// Step 2: load the snapshot and assert the hash. The RNG state restored
	// by the load is captured right after it and put back at the end of the
	// step, so the room keeps the snapshot's generator state. The
	// Orchestrator has no on_snapshot callback to run inside that scope.
	if snap != nil {
		if err := snapshot.Load(o.World, snap); err != nil {
			return err
		}
		isolated := o.World.RNG.Clone()
		if snap.HasHash {
			computed := statehash.New(o.World).Compute()
			if computed != snap.Hash {
				return simerr.HashMismatchAfterLoad(snap.Hash, computed)
			}
		}
		o.World.RNG.Load(isolated.Save())
		o.prevSnapshot = snap
		o.lastGoodSnapshotFrame = snap.Frame
		o.HashHistory.Seed(snap.Frame, snap.Hash)
		o.Rollback.Save(snap.Frame, snap)
	}

	baseFrame := uint32(0)
	baseSeq := uint64(0)
	if snap != nil {
		baseFrame = snap.Frame
		baseSeq = snap.Seq
	}

	// Step 3: filter pending inputs to seq > snapshot.seq and frame in
	// [snapshot.frame+1, server_frame], sort by (frame, seq).
	var candidates []broker.WireInput
	for _, wi := range pendingInputs {
		if wi.Seq <= baseSeq {
			continue
		}
		if wi.Frame == nil {
			continue // delivered later by normal tick (step 5 note)
		}
		if *wi.Frame < baseFrame+1 || *wi.Frame > serverFrame {
			continue
		}
		candidates = append(candidates, wi)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if *candidates[i].Frame != *candidates[j].Frame {
			return *candidates[i].Frame < *candidates[j].Frame
		}
		return candidates[i].Seq < candidates[j].Seq
	})

	gap := int64(serverFrame) - int64(baseFrame)
	if gap > int64(o.Cfg.MaxCatchupFrames) {
		// Step 4: gap too large, only process lifecycle inputs and
		// request resync.
		for _, wi := range pendingInputs {
			rec := decodeWireInput(wi)
			if rec.Lifecycle != nil {
				o.applyLifecycle(*rec.Lifecycle)
			}
		}
		o.resyncPending = true
		return o.Conn.RequestResync()
	}

	// Step 5: catch up frame by frame.
	byFrame := make(map[uint32][]broker.WireInput)
	for _, wi := range candidates {
		byFrame[*wi.Frame] = append(byFrame[*wi.Frame], wi)
	}
	return o.catchup(baseFrame+1, serverFrame, byFrame)
}

// ConnectLocalFirst runs the first-joiner/local-first path: hard-reset the
// world, re-run onRoomCreate, then process the server-provided sequence
// (including the authoritative join event), always running at least one
// tick(frame, []) so an initial hash is recorded (spec §4.O).
func (o *Orchestrator) ConnectLocalFirst(onRoomCreate func(), serverInputs []broker.WireInput, localClientID string) error {
	o.localClientID = localClientID
	o.World.Reset()
	if onRoomCreate != nil {
		onRoomCreate()
	}

	byFrame := make(map[uint32][]broker.WireInput)
	for _, wi := range serverInputs {
		f := uint32(0)
		if wi.Frame != nil {
			f = *wi.Frame
		}
		byFrame[f] = append(byFrame[f], wi)
	}
	if len(byFrame) == 0 {
		return o.tickFrame(1, nil)
	}
	frames := make([]uint32, 0, len(byFrame))
	for f := range byFrame {
		frames = append(frames, f)
	}
	sort.Slice(frames, func(i, j int) bool { return frames[i] < frames[j] })
	for _, f := range frames {
		if err := o.tickFrame(f, byFrame[f]); err != nil {
			return err
		}
	}
	return nil
}

// catchup applies the per-frame input subset in seq order for each frame
// in [start, end], ticking the world and recording the hash (spec §4.O
// step 5).
func (o *Orchestrator) catchup(start, end uint32, byFrame map[uint32][]broker.WireInput) error {
	for f := start; f <= end; f++ {
		if err := o.tickFrame(f, byFrame[f]); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) tickFrame(frame uint32, wireInputs []broker.WireInput) error {
	recs := make([]sim.InputRecord, 0, len(wireInputs))
	uploadTriggered := false
	for _, wi := range wireInputs {
		rec := decodeWireInput(wi)
		if rec.Lifecycle != nil {
			o.applyLifecycle(*rec.Lifecycle)
			uploadTriggered = uploadTriggered || triggersSnapshotUpload(rec.Lifecycle.Type)
		}
		recs = append(recs, rec)
	}
	if err := o.Kernel.Tick(frame, recs); err != nil {
		return err
	}
	hash := statehash.New(o.World).Compute()
	o.HashHistory.Record(frame, hash)
	o.lastProcessedFrame = frame
	if uploadTriggered {
		if err := o.ProduceAndUploadSnapshot(frame); err != nil {
			return err
		}
	}
	return nil
}

// HandleServerTick is the per-server-tick entry point (spec §4.O
// "Per-server-tick"). Frames <= last_processed_frame are rejected
// (duplicate/out-of-order delivery). Inputs are trusted in delivery order
// (server-sorted by (client_frame, client_id)); they are not re-sorted by
// seq.
func (o *Orchestrator) HandleServerTick(frame uint32, wireInputs []broker.WireInput, majorityHash *uint32) error {
	if frame <= o.lastProcessedFrame {
		return nil
	}
	recs := make([]sim.InputRecord, 0, len(wireInputs))
	uploadTriggered := false
	for _, wi := range wireInputs {
		rec := decodeWireInput(wi)
		if rec.Lifecycle != nil {
			o.applyLifecycle(*rec.Lifecycle)
			uploadTriggered = uploadTriggered || triggersSnapshotUpload(rec.Lifecycle.Type)
		}
		recs = append(recs, rec)
	}
	if err := o.Kernel.Tick(frame, recs); err != nil {
		return err
	}
	hash := statehash.New(o.World).Compute()
	o.HashHistory.Record(frame, hash)
	o.lastProcessedFrame = frame

	if err := o.Conn.SendStateHash(frame, hash); err != nil {
		return err
	}
	if uploadTriggered {
		if err := o.ProduceAndUploadSnapshot(frame); err != nil {
			return err
		}
	}

	if majorityHash != nil && frame > 0 {
		o.HandleMajorityHash(frame-1, *majorityHash)
	}
	return nil
}

// HandleMajorityHash compares a received majority hash for frame against
// the locally recorded hash (spec §4.O "Hash consensus"). A hash absent
// from history (pruned or pre-connect) is skipped silently.
func (o *Orchestrator) HandleMajorityHash(frame uint32, majorityHash uint32) {
	local, ok := o.HashHistory.Get(frame)
	if !ok {
		return
	}
	if local == majorityHash {
		o.hashPassed++
		if o.isDesynced && !o.resyncPending {
			o.isDesynced = false
		}
		return
	}
	o.hashFailed++
	o.isDesynced = true
	o.desyncFrame = frame
	o.resyncPending = true
	if err := o.Conn.RequestResync(); err != nil && o.Log != nil {
		o.Log.WithError(err).Warn("sync: request_resync failed")
	}
}

// HandleResyncSnapshot processes an authority-pushed resync snapshot
// (spec §4.O "Resync").
func (o *Orchestrator) HandleResyncSnapshot(bytes []byte, serverFrame uint32, followUp []broker.WireInput) error {
	snap, err := snapshot.FromBytes(bytes)
	if err != nil {
		return err
	}

	// Step 2: diagnostic field-by-field diff against the current local
	// state, logged before the hard replace below discards it.
	if o.Log != nil {
		local := snapshot.Encode(o.World, o.lastProcessedFrame, 0, statehash.New(o.World).Compute())
		diffs := diffSnapshots(local, snap)
		o.Log.WithFields(logrus.Fields{
			"frame":              snap.Frame,
			"last_good_snapshot": o.lastGoodSnapshotFrame,
			"diff_count":         len(diffs),
			"diffs":              diffs,
		}).Warn("sync: resync diff against authority snapshot")
	}

	// Step 3: hard-replace local state.
	if err := snapshot.Load(o.World, snap); err != nil {
		return err
	}
	o.lastProcessedFrame = snap.Frame

	// Step 4: optional follow-up catch-up.
	if len(followUp) > 0 {
		byFrame := make(map[uint32][]broker.WireInput)
		for _, wi := range followUp {
			f := snap.Frame
			if wi.Frame != nil {
				f = *wi.Frame
			}
			byFrame[f] = append(byFrame[f], wi)
		}
		if err := o.catchup(snap.Frame+1, serverFrame, byFrame); err != nil {
			return err
		}
	}

	// Step 5: verify hash, clear desync, reset history/rollback/prev.
	if snap.HasHash {
		computed := statehash.New(o.World).Compute()
		if computed != snap.Hash {
			return simerr.HashMismatchAfterLoad(snap.Hash, computed)
		}
	}
	o.isDesynced = false
	o.resyncPending = false
	o.prevSnapshot = snap
	o.lastGoodSnapshotFrame = snap.Frame
	o.HashHistory.Seed(snap.Frame, snap.Hash)
	o.Rollback.Clear()
	o.Rollback.Save(snap.Frame, snap)
	return nil
}

// ContinuousSync computes and sends the structural delta for the given
// frame, if one exists, partitioned across active clients (spec §4.O
// "Continuous sync"). Call after every tick.
func (o *Orchestrator) ContinuousSync(frame uint32) error {
	if len(o.activeClients) <= 1 {
		o.prevSnapshot = snapshot.Encode(o.World, frame, 0, statehash.New(o.World).Compute())
		return nil
	}
	if o.prevSnapshot == nil {
		o.prevSnapshot = snapshot.Encode(o.World, frame, 0, statehash.New(o.World).Compute())
		return nil
	}

	curr := snapshot.Encode(o.World, frame, 0, statehash.New(o.World).Compute())
	d := delta.Compute(o.prevSnapshot, curr, frame)
	o.prevSnapshot = curr
	if d.IsEmpty() {
		return nil
	}

	count := partition.Count(len(curr.Entities), o.Cfg.PartitionSize)
	assignment := partition.Assign(count, o.activeClients, frame, o.Reliability)
	for p, owner := range assignment {
		if owner != o.localClientID {
			continue
		}
		sub := delta.GetPartition(d, uint32(p), uint32(count))
		if sub.IsEmpty() {
			continue
		}
		payload, err := encodePartitionDelta(sub)
		if err != nil {
			return err
		}
		if err := o.Conn.SendPartitionData(frame, p, payload); err != nil {
			return err
		}
	}
	return nil
}

func encodePartitionDelta(d *delta.Delta) ([]byte, error) {
	return json.Marshal(d)
}

// HandleLocalInput writes a predicted input into the entity's input cache
// immediately and records it in the input log keyed by
// (currentFrame, local_client_id) (spec §4.O "Local input (prediction)").
func (o *Orchestrator) HandleLocalInput(currentFrame uint32, payload []byte) {
	o.InputLog.Set(currentFrame, o.localClientID, payload)
	if eid, ok := o.World.Table.EntityForClient(ecs.ClientID(o.localClientID)); ok {
		o.World.Table.SetInputCache(eid, payload)
	}
}
