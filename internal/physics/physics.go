// Package physics is the illustrative fixed-point 2D physics stepper from
// spec §4.Q: it consumes Transform2D/Body2D components, integrates rigid
// bodies using only fixed-point math, and resets cleanly across snapshot
// and world-clear boundaries so replay/rollback never observes drift from
// internal state the kernel didn't account for.
package physics

import (
	"sort"

	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/fixed"
)

const (
	CompTransform2D ecs.ComponentType = "transform2d"
	CompBody2D      ecs.ComponentType = "body2d"
)

// RegisterSchemas registers the two components this stepper owns. Callers
// invoke this once per world before spawning physics-bearing entities.
func RegisterSchemas(w *ecs.World) {
	w.Store.RegisterType(ecs.Schema{
		Name: CompTransform2D,
		Fields: []ecs.FieldSpec{
			{Name: "x", Type: ecs.FieldI32},
			{Name: "y", Type: ecs.FieldI32},
			{Name: "angle", Type: ecs.FieldI32},
		},
		Sync: true,
	})
	w.Store.RegisterType(ecs.Schema{
		Name: CompBody2D,
		Fields: []ecs.FieldSpec{
			{Name: "vx", Type: ecs.FieldI32},
			{Name: "vy", Type: ecs.FieldI32},
			{Name: "mass", Type: ecs.FieldI32},
			{Name: "awake", Type: ecs.FieldBool},
		},
		Sync: true,
	})
}

// CollisionCallback is invoked for a colliding (a, b) pair whose entity
// types match a registered pairing.
type CollisionCallback func(w *ecs.World, a, b ecs.EntityID)

type typePair struct{ a, b string }

// Stepper owns per-entity rigid-body bookkeeping keyed by entity id, kept
// separate from the ECS store because it is derived, recomputable state
// (a per-body id and a contact counter), not synced simulation data.
type Stepper struct {
	bodyCounter uint64
	bodies      map[ecs.EntityID]*bodyState
	callbacks   map[typePair]CollisionCallback
}

type bodyState struct {
	id        uint64
	contacts  int
}

// New creates a stepper with no registered collision callbacks.
func New() *Stepper {
	return &Stepper{bodies: make(map[ecs.EntityID]*bodyState), callbacks: make(map[typePair]CollisionCallback)}
}

// OnCollision registers a typed callback invoked when an entity of typeA
// collides with an entity of typeB (order-independent: registering once
// covers both argument orders at dispatch time).
func (s *Stepper) OnCollision(typeA, typeB string, cb CollisionCallback) {
	s.callbacks[typePair{typeA, typeB}] = cb
	s.callbacks[typePair{typeB, typeA}] = cb
}

// OnSnapshotLoad wakes every tracked body; loaded state carries no
// reliable sleep/contact history, so the stepper treats every body as
// freshly active (spec §4.Q "wakes all bodies on snapshot load").
func (s *Stepper) OnSnapshotLoad(w *ecs.World) {
	for _, id := range w.AllActiveEntitiesAscending() {
		if !w.Store.Has(id, CompBody2D) {
			continue
		}
		w.Store.SetBool(id, CompBody2D, "awake", true)
	}
}

// OnWorldClear resets the body-id counter and discards derived state
// (spec §4.Q "resets its body-id counter on world clear").
func (s *Stepper) OnWorldClear() {
	s.bodyCounter = 0
	s.bodies = make(map[ecs.EntityID]*bodyState)
}

func (s *Stepper) trackedBody(id ecs.EntityID) *bodyState {
	b, ok := s.bodies[id]
	if !ok {
		s.bodyCounter++
		b = &bodyState{id: s.bodyCounter}
		s.bodies[id] = b
	}
	return b
}

// sortedBodies returns every entity with both components, in ascending
// eid order — the iteration order integration and collision detection
// must use for determinism (spec §4.Q "sorted body iteration").
func sortedBodies(w *ecs.World) []ecs.EntityID {
	var ids []ecs.EntityID
	for _, id := range w.AllActiveEntitiesAscending() {
		if w.Store.Has(id, CompTransform2D) && w.Store.Has(id, CompBody2D) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Integrate applies semi-implicit Euler integration to every awake body:
// velocity unchanged by this stepper (external systems apply forces in
// prePhysics), position advances by velocity * dt, entirely in fixed
// point.
func (s *Stepper) Integrate(w *ecs.World, dt fixed.Scalar) {
	for _, id := range sortedBodies(w) {
		s.trackedBody(id)
		if !w.Store.GetBool(id, CompBody2D, "awake") {
			continue
		}
		x := w.Store.GetI32(id, CompTransform2D, "x")
		y := w.Store.GetI32(id, CompTransform2D, "y")
		vx := w.Store.GetI32(id, CompBody2D, "vx")
		vy := w.Store.GetI32(id, CompBody2D, "vy")
		w.Store.SetI32(id, CompTransform2D, "x", x+fixed.Mul(vx, dt))
		w.Store.SetI32(id, CompTransform2D, "y", y+fixed.Mul(vy, dt))
	}
}

// DetectCollisions runs naive O(n^2) AABB-less distance checks (a pair
// overlaps when its centres are at most radius apart; mass is not
// consulted) over sorted bodies and fires any
// registered typed callback for overlapping pairs. Sorted, nested-loop
// iteration (i<j over the same ascending list) keeps pair order
// deterministic across peers.
func (s *Stepper) DetectCollisions(w *ecs.World, radius fixed.Scalar) {
	ids := sortedBodies(w)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if !overlaps(w, a, b, radius) {
				continue
			}
			typeA, _ := w.Table.TypeOf(a)
			typeB, _ := w.Table.TypeOf(b)
			if cb, ok := s.callbacks[typePair{typeA, typeB}]; ok {
				cb(w, a, b)
			}
		}
	}
}

func overlaps(w *ecs.World, a, b ecs.EntityID, radius fixed.Scalar) bool {
	ax := w.Store.GetI32(a, CompTransform2D, "x")
	ay := w.Store.GetI32(a, CompTransform2D, "y")
	bx := w.Store.GetI32(b, CompTransform2D, "x")
	by := w.Store.GetI32(b, CompTransform2D, "y")
	dx := fixed.Abs(ax - bx)
	dy := fixed.Abs(ay - by)
	distSq := fixed.Mul(dx, dx) + fixed.Mul(dy, dy)
	rr := fixed.Mul(radius, radius)
	return distSq <= rr
}

// System adapts the stepper to the sched.System interface so it can be
// registered into the prePhysics/physics/postPhysics phases.
type System struct {
	Stepper *Stepper
	Radius  fixed.Scalar
	name    string
	phase   func(*ecs.World, *sched.Context)
}

func (sys *System) Name() string { return sys.name }

func (sys *System) Update(w *ecs.World, ctx *sched.Context) error {
	sys.phase(w, ctx)
	return nil
}

// IntegrationSystem builds the physics-phase system that advances
// positions by velocity * dt.
func IntegrationSystem(s *Stepper) *System {
	return &System{Stepper: s, name: "physics.integrate", phase: func(w *ecs.World, ctx *sched.Context) {
		s.Integrate(w, fixed.Scalar(ctx.DeltaFixed))
	}}
}

// CollisionSystem builds the postPhysics-phase system that detects
// overlaps and fires callbacks.
func CollisionSystem(s *Stepper, radius fixed.Scalar) *System {
	return &System{Stepper: s, Radius: radius, name: "physics.collide", phase: func(w *ecs.World, ctx *sched.Context) {
		s.DetectCollisions(w, radius)
	}}
}
