// Package sched implements the phase-ordered scheduler from spec §4.G: a
// fixed, closed set of phases, systems sorted by (order, registration_id)
// within a phase, and client/server/both scoping.
package sched

import (
	"sort"

	"lockstep/internal/ecs"
	"lockstep/internal/simerr"
)

// Phase is one of the closed, ordered set of scheduler phases.
type Phase int

const (
	PhaseInput Phase = iota
	PhaseUpdate
	PhasePrePhysics
	PhasePhysics
	PhasePostPhysics
	PhaseRender
)

// Phases lists the closed set in execution order.
var Phases = []Phase{PhaseInput, PhaseUpdate, PhasePrePhysics, PhasePhysics, PhasePostPhysics, PhaseRender}

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhaseUpdate:
		return "update"
	case PhasePrePhysics:
		return "prePhysics"
	case PhasePhysics:
		return "physics"
	case PhasePostPhysics:
		return "postPhysics"
	case PhaseRender:
		return "render"
	default:
		return "unknown"
	}
}

// Scope restricts a system to the client runtime, the server runtime, or
// both.
type Scope int

const (
	ScopeBoth Scope = iota
	ScopeClient
	ScopeServer
)

// System is one scheduler-managed unit of simulation logic. Update must
// be synchronous: it may not suspend, spawn goroutines whose results it
// waits on later, or otherwise return control before the tick is done
// (spec §4.G — "systems may not perform suspending/asynchronous work").
type System interface {
	Name() string
	Update(w *ecs.World, ctx *Context) error
}

// Context carries per-tick, read-only information systems need: the
// current frame number and whether this run is a server tick (controls
// render-phase skipping and ScopeClient/ScopeServer filtering).
type Context struct {
	Frame      uint32
	IsServer   bool
	DeltaFixed int64 // fixed-point tick duration, for systems that integrate
}

type entry struct {
	phase          Phase
	order          int
	registrationID int
	scope          Scope
	system         System
}

// Scheduler holds every registered system, grouped by phase and sorted
// deterministically.
type Scheduler struct {
	entries []entry
	nextReg int
}

// New creates an empty scheduler.
func New() *Scheduler { return &Scheduler{} }

// Register adds a system to a phase with an execution order; ties are
// broken by registration sequence, which is itself deterministic because
// registration always happens during room setup, never during a tick.
func (s *Scheduler) Register(phase Phase, order int, scope Scope, sys System) {
	s.entries = append(s.entries, entry{
		phase: phase, order: order, registrationID: s.nextReg, scope: scope, system: sys,
	})
	s.nextReg++
}

func (s *Scheduler) systemsFor(phase Phase, isServer bool) []entry {
	out := make([]entry, 0)
	for _, e := range s.entries {
		if e.phase != phase {
			continue
		}
		switch e.scope {
		case ScopeClient:
			if isServer {
				continue
			}
		case ScopeServer:
			if !isServer {
				continue
			}
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].order != out[j].order {
			return out[i].order < out[j].order
		}
		return out[i].registrationID < out[j].registrationID
	})
	return out
}

// RunPhase executes every system registered under phase matching the
// given scope, in (order, registration_id) order. The first system error
// aborts the phase — subsequent systems in this phase and phase do not
// run (spec §7 propagation).
func (s *Scheduler) RunPhase(phase Phase, w *ecs.World, ctx *Context) error {
	if phase == PhaseRender && ctx.IsServer {
		// render never runs during server simulation (spec §4.G).
		return nil
	}
	for _, e := range s.systemsFor(phase, ctx.IsServer) {
		if err := e.system.Update(w, ctx); err != nil {
			if se, ok := err.(*simerr.SimError); ok {
				return se.WithFrame(ctx.Frame).WithSystem(e.system.Name())
			}
			return err
		}
	}
	return nil
}

// RunAll executes input -> update -> prePhysics -> physics -> postPhysics
// in order (and render, only for non-server contexts), aborting at the
// first phase that errors (spec §4.N tick loop step 3/4).
func (s *Scheduler) RunAll(w *ecs.World, ctx *Context) error {
	order := []Phase{PhaseInput, PhaseUpdate, PhasePrePhysics, PhasePhysics, PhasePostPhysics}
	if !ctx.IsServer {
		order = append(order, PhaseRender)
	}
	for _, p := range order {
		if err := s.RunPhase(p, w, ctx); err != nil {
			return err
		}
	}
	return nil
}
