// Package sim implements the tick loop from spec §4.N: the single entry
// point that applies lifecycle and game inputs for a frame, runs the
// scheduler under the determinism guard, renders on clients, and clears
// per-tick scratch state.
package sim

import (
	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/fixed"
	"lockstep/internal/guard"
	"lockstep/internal/inputlog"
)

// LifecycleType enumerates the closed set of lifecycle event kinds (spec
// §6: "Lifecycle types are exactly {join, leave, disconnect, reconnect,
// resync_request}").
type LifecycleType string

const (
	LifecycleJoin          LifecycleType = "join"
	LifecycleLeave         LifecycleType = "leave"
	LifecycleDisconnect    LifecycleType = "disconnect"
	LifecycleReconnect     LifecycleType = "reconnect"
	LifecycleResyncRequest LifecycleType = "resync_request"
)

// Lifecycle is the lifecycle-flavored payload of an InputRecord.
type Lifecycle struct {
	Type     LifecycleType
	ClientID string
}

// InputRecord is one wire input: `{client_id, seq, frame, payload}` (spec
// §3). Exactly one of Lifecycle/Game is set.
type InputRecord struct {
	ClientID  string
	Seq       uint64
	Frame     uint32
	Lifecycle *Lifecycle
	Game      inputlog.Payload
}

// LifecycleCallback is invoked once per lifecycle record, in arrival
// order, so the orchestrator can maintain active_clients and react to
// join/leave/disconnect/reconnect/resync_request.
type LifecycleCallback func(rec Lifecycle)

// Kernel wires together the world, scheduler, input log, and determinism
// guard into the single tick() entry point (spec §4.N).
type Kernel struct {
	World     *ecs.World
	Scheduler *sched.Scheduler
	InputLog  *inputlog.Log
	Guard     *guard.Guard
	IsServer  bool
	DeltaTime fixed.Scalar

	onLifecycle LifecycleCallback
}

// New creates a Kernel. onLifecycle may be nil if the caller doesn't need
// lifecycle notifications (e.g. in isolated tests of the tick mechanics).
func New(w *ecs.World, s *sched.Scheduler, log *inputlog.Log, g *guard.Guard, isServer bool, dt fixed.Scalar, onLifecycle LifecycleCallback) *Kernel {
	return &Kernel{World: w, Scheduler: s, InputLog: log, Guard: g, IsServer: isServer, DeltaTime: dt, onLifecycle: onLifecycle}
}

// Tick runs one simulation frame per spec §4.N:
//  1. apply lifecycle inputs in arrival order
//  2. apply game inputs into the input log, keyed by client_id
//  3. set is_simulating, run input->update->prePhysics->physics->postPhysics, clear the flag
//  4. run render if this is a client
//  5. clear the per-tick input buffer
func (k *Kernel) Tick(frame uint32, inputs []InputRecord) error {
	for _, rec := range inputs {
		if rec.Lifecycle != nil && k.onLifecycle != nil {
			k.onLifecycle(*rec.Lifecycle)
		}
	}
	for _, rec := range inputs {
		if rec.Lifecycle == nil {
			k.InputLog.Set(frame, rec.ClientID, rec.Game)
			if eid, ok := k.World.Table.EntityForClient(ecs.ClientID(rec.ClientID)); ok {
				k.World.Table.SetInputCache(eid, rec.Game)
			}
		}
	}

	k.Guard.Enable()
	ctx := &sched.Context{Frame: frame, IsServer: k.IsServer, DeltaFixed: int64(k.DeltaTime)}
	err := k.Scheduler.RunAll(k.World, ctx)
	k.Guard.Disable()
	if err != nil {
		return err
	}

	k.World.Table.ClearInputCache()
	return nil
}
