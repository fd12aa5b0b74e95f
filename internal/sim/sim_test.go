package sim

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lockstep/internal/ecs"
	"lockstep/internal/ecs/sched"
	"lockstep/internal/fixed"
	"lockstep/internal/guard"
	"lockstep/internal/inputlog"
)

type recordingSystem struct {
	name  string
	calls *[]string
}

func (s *recordingSystem) Name() string { return s.name }
func (s *recordingSystem) Update(w *ecs.World, ctx *sched.Context) error {
	*s.calls = append(*s.calls, s.name)
	return nil
}

func newKernel(isServer bool, onLifecycle LifecycleCallback) (*Kernel, *[]string) {
	w := ecs.NewWorld(64, 1)
	w.RegisterDefinition(ecs.Definition{TypeName: "player"})
	s := sched.New()
	calls := &[]string{}
	s.Register(sched.PhaseUpdate, 0, sched.ScopeBoth, &recordingSystem{name: "update", calls: calls})
	s.Register(sched.PhaseRender, 0, sched.ScopeBoth, &recordingSystem{name: "render", calls: calls})
	log := logrus.New()
	log.SetOutput(io.Discard)
	g := guard.New(logrus.NewEntry(log), false)
	k := New(w, s, inputlog.New(), g, isServer, fixed.One, onLifecycle)
	return k, calls
}

func Test_Tick_RunsRenderOnClientNotOnServer(t *testing.T) {
	// Arrange
	clientKernel, clientCalls := newKernel(false, nil)
	serverKernel, serverCalls := newKernel(true, nil)

	// Act
	require.NoError(t, clientKernel.Tick(1, nil))
	require.NoError(t, serverKernel.Tick(1, nil))

	// Assert
	assert.Contains(t, *clientCalls, "render")
	assert.NotContains(t, *serverCalls, "render")
}

func Test_Tick_AppliesLifecycleCallbacksInArrivalOrder(t *testing.T) {
	var seen []string
	k, _ := newKernel(true, func(rec Lifecycle) { seen = append(seen, rec.ClientID) })

	err := k.Tick(1, []InputRecord{
		{ClientID: "b", Lifecycle: &Lifecycle{Type: LifecycleJoin, ClientID: "b"}},
		{ClientID: "a", Lifecycle: &Lifecycle{Type: LifecycleJoin, ClientID: "a"}},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, seen)
}

func Test_Tick_RecordsGameInputsIntoInputLog(t *testing.T) {
	k, _ := newKernel(true, nil)

	err := k.Tick(5, []InputRecord{{ClientID: "c1", Game: []byte("move")}})

	require.NoError(t, err)
	entries, ok := k.InputLog.Get(5)
	require.True(t, ok)
	require.Len(t, entries, 1)
	assert.Equal(t, "c1", entries[0].ClientID)
}

func Test_Tick_ClearsInputCacheAfterTick(t *testing.T) {
	k, _ := newKernel(true, nil)
	id, err := k.World.Spawn("player", nil, false)
	require.NoError(t, err)
	k.World.BindClient(id, ecs.ClientID("c1"))

	require.NoError(t, k.Tick(1, []InputRecord{{ClientID: "c1", Game: []byte("x")}}))

	_, ok := k.World.Table.InputCache(id)
	assert.False(t, ok)
}

func Test_Tick_SetsIsSimulatingDuringSchedulerRunOnly(t *testing.T) {
	k, _ := newKernel(true, nil)
	require.NoError(t, k.Tick(1, nil))
	assert.False(t, k.Guard.IsSimulating())
}
