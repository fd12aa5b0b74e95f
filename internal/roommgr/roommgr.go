// Package roommgr is the multi-room host from spec §5 ("implementations
// may run multiple rooms in parallel"): one goroutine per room, supervised
// by an errgroup, with no shared mutable state across rooms — each room
// owns its own World/Orchestrator/Conn.
package roommgr

import (
	"context"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"lockstep/internal/broker"
	"lockstep/internal/config"
	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/guard"
	"lockstep/internal/sync"
)

// RoomFactory builds everything one room needs: its own world, scheduler
// (with game systems already registered), and connection. Called once per
// room so no state is shared.
type RoomFactory func(roomID string) (*ecs.World, *sched.Scheduler, broker.Conn, error)

// Room is a single running room: its id and its orchestrator.
type Room struct {
	ID           string
	Orchestrator *sync.Orchestrator
}

// Manager supervises a set of rooms, each driven by its own goroutine.
type Manager struct {
	log      *logrus.Entry
	cfg      config.Room
	isServer bool

	group *errgroup.Group
	ctx   context.Context

	rooms map[string]*Room
}

// New creates a Manager bound to ctx; Wait blocks until every room's
// driver function returns or one returns an error, at which point ctx is
// canceled for the rest (errgroup.WithContext semantics).
func New(ctx context.Context, log *logrus.Entry, cfg config.Room, isServer bool) *Manager {
	g, gctx := errgroup.WithContext(ctx)
	return &Manager{
		log:      log,
		cfg:      cfg,
		isServer: isServer,
		group:    g,
		ctx:      gctx,
		rooms:    make(map[string]*Room),
	}
}

// StartRoom builds one room via factory and launches its driver in its own
// goroutine. driver receives the room's orchestrator and this Manager's
// context, and should run until ctx is done or the room ends.
func (m *Manager) StartRoom(roomID string, factory RoomFactory, driver func(ctx context.Context, o *sync.Orchestrator) error) error {
	w, scheduler, conn, err := factory(roomID)
	if err != nil {
		return err
	}
	g := guard.New(m.log.WithField("room", roomID), m.cfg.StrictDeterminism)
	o := sync.New(w, scheduler, g, conn, m.log.WithField("room", roomID), m.cfg, m.isServer)
	room := &Room{ID: roomID, Orchestrator: o}
	m.rooms[roomID] = room

	m.group.Go(func() error {
		return driver(m.ctx, o)
	})
	return nil
}

// Room looks up a running room by id.
func (m *Manager) Room(roomID string) (*Room, bool) {
	r, ok := m.rooms[roomID]
	return r, ok
}

// RoomIDs returns every room id currently managed.
func (m *Manager) RoomIDs() []string {
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Wait blocks until every room driver has returned, returning the first
// non-nil error (errgroup.Group.Wait semantics).
func (m *Manager) Wait() error {
	return m.group.Wait()
}
