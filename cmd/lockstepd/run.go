package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"lockstep/internal/broker"
	"lockstep/internal/config"
	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/fixed"
	"lockstep/internal/guard"
	"lockstep/internal/physics"
	"lockstep/internal/sync"
)

var runFrames int

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run a single room for --frames frames and print its active entity count",
	RunE:  runRoom,
}

func init() {
	runCmd.Flags().IntVar(&runFrames, "frames", 60, "number of frames to simulate")
}

// runRoom demonstrates the kernel end to end: a single-process room with
// the illustrative physics stepper wired in, driven locally (no real
// transport) for the requested frame count. It exists as an operator
// smoke test, not a production server loop.
func runRoom(cmd *cobra.Command, args []string) error {
	log := newLogger()

	cfg := config.Defaults()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	w := ecs.NewWorld(uint(cfg.MaxEntities), 1)
	physics.RegisterSchemas(w)
	w.RegisterDefinition(ecs.Definition{
		TypeName:   "ball",
		Components: []ecs.ComponentType{physics.CompTransform2D, physics.CompBody2D},
	})

	stepper := physics.New()
	scheduler := sched.New()
	scheduler.Register(sched.PhasePhysics, 0, sched.ScopeBoth, physics.IntegrationSystem(stepper))
	scheduler.Register(sched.PhasePostPhysics, 0, sched.ScopeBoth, physics.CollisionSystem(stepper, fixed.FromInt(1)))

	roomID := uuid.NewString()
	hub := broker.NewHub(cfg.TickRateHz)
	conn, _ := hub.Connect(roomID, nil, broker.Handlers{})

	g := guard.New(log.WithField("room", roomID), cfg.StrictDeterminism)
	o := sync.New(w, scheduler, g, conn, log.WithField("room", roomID), cfg, true)

	// Re-install handlers now that o exists, routing every per-server-tick
	// delivery through HandleServerTick (spec §4.O "Per-server-tick") so
	// this demo exercises the real hash-broadcast/majority-hash consensus
	// path instead of ticking the kernel directly.
	if _, err := conn.Connect(roomID, nil, broker.Handlers{
		OnTick: func(frame uint32, inputs []broker.WireInput, majorityHash *uint32) {
			if err := o.HandleServerTick(frame, inputs, majorityHash); err != nil {
				log.WithError(err).Error("run: HandleServerTick failed")
			}
		},
	}); err != nil {
		return err
	}

	err := o.ConnectLocalFirst(func() {
		for i := 0; i < 4; i++ {
			if _, err := w.Spawn("ball", nil, false); err != nil {
				log.WithError(err).Warn("run: spawn failed")
			}
		}
	}, nil, "operator")
	if err != nil {
		return err
	}

	for frame := uint32(2); frame <= uint32(runFrames); frame++ {
		var majorityHash *uint32
		if prev, ok := o.HashHistory.Get(frame - 1); ok {
			majorityHash = &prev
		}
		hub.DeliverTick("__server__", frame, nil, majorityHash)
		if err := o.ContinuousSync(frame); err != nil {
			return err
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "room %s ran %d frames, %d entities active\n", roomID, runFrames, w.Table.ActiveCount())
	return nil
}
