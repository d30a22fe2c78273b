package controller

import (
	"testing"

	"github.com/bmizerany/assert"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/entity"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/resource"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/pkg/errors"
)

type testEnv struct {
	engine   *host.MemoryEngine
	scene    *host.MemoryScene
	registry *entity.Registry
	manager  *Manager
	spawner  *host.MemoryObject
}

func newTestEnv(t *testing.T) *testEnv {
	store := resource.NewMemoryStore()
	store.Put("Player", consts.ACTOR_DEFINITION_FILE, []byte(`{"attributes": {"score": {"default": 0}}}`))
	store.Put("Ghost", consts.ACTOR_DEFINITION_FILE, []byte(`{}`))

	server, err := replication.NewServer(replication.NewHub(), 1200)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(server.Close)

	engine := host.NewMemoryEngine(60)
	scene := engine.AddScene("Scene")
	scene.AddInactive("Player").AddSensor("->init")
	scene.AddInactive("Ghost").AddSensor("->boo")

	registry := entity.NewRegistry(server, entity.NewSynthesizer(definition.NewLoader(store)), engine)
	return &testEnv{
		engine:   engine,
		scene:    scene,
		registry: registry,
		manager:  NewManager(registry, engine),
		spawner:  scene.Spawn("Spawner"),
	}
}

func countSubject(msgs []host.Message, subj string) int {
	n := 0
	for _, msg := range msgs {
		if msg.Subject == subj {
			n++
		}
	}
	return n
}

func TestAssignFIFO(t *testing.T) {
	env := newTestEnv(t)
	a := replication.NewController(1)
	b := replication.NewController(2)
	c := replication.NewController(3)
	for _, ctrl := range []*replication.Controller{a, b, c} {
		env.manager.OnNewController(ctrl)
	}
	assert.Equal(t, 3, env.manager.Pending())
	request := subject.MustEncode(subject.Global(subject.ControllerRequest, ""))
	assert.Equal(t, 3, countSubject(env.engine.MemoryBus().Pending(), request))
	assert.Equal(t, StateRequested, env.manager.Assignment(a).State)

	// unknown types do not consume a waiting controller
	_, err := env.manager.OnAssigned("Scene", "Tree", env.spawner.ID())
	assert.Equal(t, ErrUnknownType, errors.Cause(err))
	assert.Equal(t, 3, env.manager.Pending())

	var seqs []uint64
	for _, ctrl := range []*replication.Controller{a, b, c} {
		env.spawner.SendMessage("unrelated", "", "")
		assignment, err := env.manager.OnAssigned("Scene", "Player", env.spawner.ID())
		if err != nil {
			t.Fatal(err)
		}
		assert.T(t, assignment.Controller == ctrl, "controllers are served in arrival order")
		assert.Equal(t, StateActive, assignment.State)
		assert.T(t, ctrl.Pawn() == assignment.Pawn.Object)
		seqs = append(seqs, assignment.Seq)
	}
	assert.Equal(t, []uint64{1, 2, 3}, seqs)
	assert.Equal(t, 0, env.manager.Pending())
	assert.T(t, a.Pawn() != b.Pawn() && b.Pawn() != c.Pawn())
	// two re-requests while controllers were still waiting
	assert.Equal(t, 5, countSubject(env.engine.MemoryBus().Pending(), request))

	_, err = env.manager.OnAssigned("Scene", "Player", env.spawner.ID())
	assert.Equal(t, ErrNoPendingController, errors.Cause(err))
}

func TestNewPawnMessages(t *testing.T) {
	env := newTestEnv(t)
	env.manager.OnNewController(replication.NewController(1))
	assignment, err := env.manager.OnAssigned("Scene", "Player", env.spawner.ID())
	if err != nil {
		t.Fatal(err)
	}
	pawn := assignment.Pawn
	initSubj := subject.MustEncode(subject.Instance(subject.SelfMessage, "init", "Scene", pawn.ID()))
	assert.Equal(t, 1, countSubject(env.engine.MemoryBus().Pending(), initSubj))

	assert.Equal(t, nil, env.manager.SendToNewPawn("Scene", env.spawner.ID(), "init"))
	assert.Equal(t, 2, countSubject(env.engine.MemoryBus().Pending(), initSubj))
	assert.Equal(t, ErrNoPawn, errors.Cause(env.manager.SendToNewPawn("Scene", 12345, "init")))
}

func TestReassign(t *testing.T) {
	env := newTestEnv(t)
	ctrl := replication.NewController(1)
	env.manager.OnNewController(ctrl)
	first, err := env.manager.OnAssigned("Scene", "Player", env.spawner.ID())
	if err != nil {
		t.Fatal(err)
	}
	old := first.Pawn

	_, err = env.manager.OnReassigned("Tree", old)
	assert.Equal(t, ErrUnknownType, errors.Cause(err))
	assert.T(t, ctrl.Pawn() == old.Object, "failed reassignment keeps the pawn")

	second, err := env.manager.OnReassigned("Ghost", old)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, StateReleased, first.State)
	assert.Equal(t, StateActive, second.State)
	assert.T(t, second.Seq > first.Seq)
	assert.Equal(t, "Ghost", second.Pawn.TypeName)
	assert.T(t, ctrl.Pawn() == second.Pawn.Object)
	assert.T(t, old.IsDestroyed())
	assert.T(t, env.registry.Lookup(old.Host) == nil)
	assert.T(t, env.manager.Assignment(ctrl) == second)

	// a pawn without controller cannot be reassigned
	ctrl.ReleaseControl()
	_, err = env.manager.OnReassigned("Player", second.Pawn)
	assert.Equal(t, ErrNoController, errors.Cause(err))

	env.registry.Unbind(second.Pawn)
	env.manager.CullReleased()
	assert.T(t, env.manager.Assignment(ctrl) == nil)
	assert.Equal(t, StateReleased, second.State)
}

func TestControllerLost(t *testing.T) {
	env := newTestEnv(t)
	gone := replication.NewController(1)
	live := replication.NewController(2)
	env.manager.OnNewController(gone)
	env.manager.OnNewController(live)
	env.manager.OnControllerLost(gone)
	assert.Equal(t, 1, env.manager.Pending())
	assert.T(t, env.manager.Assignment(gone) == nil)

	a, err := env.manager.OnAssigned("Scene", "Player", env.spawner.ID())
	if err != nil {
		t.Fatal(err)
	}
	assert.T(t, a.Controller == live, "the live controller gets the pawn")

	// losing an active controller destroys its pawn
	pawn := a.Pawn
	env.manager.OnControllerLost(live)
	assert.T(t, pawn.IsDestroyed())
	env.engine.NextFrame()
	assert.T(t, pawn.Host.Invalid())
	assert.T(t, live.Pawn() == nil)
	assert.Equal(t, StateReleased, a.State)
	assert.T(t, env.manager.Assignment(live) == nil)

	env.manager.OnControllerLost(live)
	assert.Equal(t, 0, env.manager.Pending())
}
