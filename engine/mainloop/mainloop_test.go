package mainloop

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bmizerany/assert"
	"github.com/netbricks/netbricks/engine/config"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/gwvar"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/resource"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/netbricks/netbricks/engine/versioncheck"
)

func newTestConfig() *config.BridgeConfig {
	return &config.BridgeConfig{
		Main: config.MainDefinition{
			Port:           1200,
			TickRate:       30,
			MetricInterval: 2,
			Scene:          "Scene",
		},
		Bridge: config.BridgeSection{
			LogLevel:          "debug",
			DisconnectTimeout: consts.DISCONNECT_TIMEOUT,
			DispatcherName:    consts.DISPATCHER_NAME,
		},
	}
}

func newTestLoader() *definition.Loader {
	store := resource.NewMemoryStore()
	store.Put("Tower", consts.ACTOR_DEFINITION_FILE, []byte(`{"attributes": {"height": {"default": 3}}}`))
	store.Put("Player", consts.ACTOR_DEFINITION_FILE, []byte(`{
		"attributes": {"score": {"default": 0}},
		"rpc_calls": {"ping": {"arguments": {}, "target": "SERVER", "reliable": true}}
	}`))
	return definition.NewLoader(store)
}

type testSide struct {
	loop   *GameLoop
	engine *host.MemoryEngine
	scene  *host.MemoryScene
}

func newTestSide(t *testing.T, hub *replication.Hub) *testSide {
	engine := host.NewMemoryEngine(60)
	side := &testSide{engine: engine, scene: engine.AddScene("Scene")}
	side.loop = New(Options{
		Engine: engine,
		Loader: newTestLoader(),
		Config: newTestConfig(),
		Hub:    hub,
	})
	// every tick sends a full update
	clock := time.Now()
	side.loop.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	t.Cleanup(side.loop.Close)
	return side
}

func (side *testSide) broadcast(subj string) {
	side.engine.Bus().Send(host.Message{Subject: subj})
}

func hasMessage(msgs []host.Message, subj string, to string) bool {
	for _, msg := range msgs {
		if msg.Subject == subj && msg.To == to {
			return true
		}
	}
	return false
}

func TestDefaultModeExit(t *testing.T) {
	side := newTestSide(t, nil)
	side.broadcast(`@["ping","Scene",0]`) // dropped: no network yet
	side.broadcast("hello")
	side.loop.Step()
	assert.T(t, side.loop.Service() == nil)
	assert.T(t, !side.loop.Exited())

	side.loop.RequestExit()
	side.loop.Step()
	assert.T(t, side.loop.Exited())
	assert.Equal(t, "exit requested", side.loop.ExitReason())
}

func TestSetNetMode(t *testing.T) {
	side := newTestSide(t, nil)
	tower := side.scene.Spawn("Tower")
	towerB := side.scene.Spawn("Tower")
	side.scene.Spawn("Rock") // not networked
	side.scene.AddInactive("Player")

	side.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "BOGUS")))
	side.loop.Step()
	assert.T(t, side.loop.Service() == nil)

	side.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "SERVER")))
	side.loop.Step()
	svc := side.loop.Service()
	assert.T(t, svc != nil)
	assert.Equal(t, replication.NetModeServer, svc.NetMode())
	assert.T(t, hasMessage(side.engine.MemoryBus().Pending(), networkInitMessage, ""))
	assert.Equal(t, "SERVER", gwvar.NetMode.Value())

	registry := side.loop.Registry()
	assert.Equal(t, 2, registry.Len())
	ids := map[uint64]bool{registry.Lookup(tower).ID(): true, registry.Lookup(towerB).ID(): true}
	assert.Equal(t, map[uint64]bool{0: true, 1: true}, ids)

	// dynamic objects get ids from the service
	player, err := side.scene.AddObject("Player")
	if err != nil {
		t.Fatal(err)
	}
	side.loop.Step()
	e := registry.Lookup(player)
	assert.T(t, e != nil)
	assert.Equal(t, uint64(2), e.ID())
	assert.Equal(t, replication.RoleAuthority, e.Roles().Local)

	side.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "CLIENT")))
	side.loop.Step()
	assert.T(t, side.loop.Service() == svc, "network mode is set once")

	player.End()
	side.loop.Step()
	assert.T(t, e.IsDestroyed())
	assert.Equal(t, 2, registry.Len())

	side.loop.RequestExit()
	side.loop.Step()
	assert.T(t, side.loop.Exited(), "servers exit immediately")
	assert.T(t, gwvar.IsExiting.Value())
}

func TestInstanceDispatch(t *testing.T) {
	side := newTestSide(t, nil)
	player := side.scene.Spawn("Player")
	ping := player.AddActuator("@ping")
	player.AddSensor("@ping")
	if err := side.loop.SetNetMode(replication.NetModeServer); err != nil {
		t.Fatal(err)
	}
	e := side.loop.Registry().Lookup(player)
	assert.T(t, e != nil)
	encoded := subject.MustEncode(subject.Instance(subject.RPCInvoke, "ping", "Scene", e.ID()))
	assert.Equal(t, encoded, ping.Subject)

	player.Fire(ping, "")
	side.broadcast(subject.MustEncode(subject.Instance(subject.RPCInvoke, "ping", "Scene", 99)))
	side.broadcast(`@["ping"`)
	side.loop.Step()
	// the authority executed the RPC and told its host object
	assert.T(t, hasMessage(side.engine.MemoryBus().Pending(), encoded, "Player"))

	player.SetProperty("score", 7)
	side.broadcast(subject.MustEncode(subject.Instance(subject.Notification, "score", "Scene", e.ID())))
	side.loop.Step()
	assert.Equal(t, int64(7), e.Get("score"))
}

func TestSceneMessage(t *testing.T) {
	side := newTestSide(t, nil)
	siren := side.scene.Spawn("Siren")
	alarm := siren.AddActuator("SCENE->alarm")
	guard := side.scene.Spawn("Guard")
	listen := guard.AddSensor("SCENE->alarm")
	if err := side.loop.SetNetMode(replication.NetModeServer); err != nil {
		t.Fatal(err)
	}

	rebroadcast := subject.MustEncode(subject.Scene(subject.SceneMessage, "alarm", "Scene"))
	assert.Equal(t, rebroadcast, listen.Subject)
	assert.Equal(t, subject.MustEncode(subject.Message{
		Category: subject.SceneMessage, Name: "alarm", Scene: "Scene", ID: uint64(siren.ID()),
	}), alarm.Subject)

	siren.Fire(alarm, "")
	side.loop.Step()
	assert.T(t, hasMessage(side.engine.MemoryBus().Pending(), rebroadcast, ""))
	side.loop.Step()
	assert.Equal(t, []string{rebroadcast}, guard.Received())
}

func TestConnectTo(t *testing.T) {
	hub := replication.NewHub()
	server := newTestSide(t, hub)
	client := newTestSide(t, hub)

	assert.T(t, client.loop.ConnectTo("::1200") != nil, "network mode is not set")
	if err := server.loop.SetNetMode(replication.NetModeServer); err != nil {
		t.Fatal(err)
	}
	if err := client.loop.SetNetMode(replication.NetModeClient); err != nil {
		t.Fatal(err)
	}
	assert.T(t, client.loop.ConnectTo("localhost:1200") != nil)
	assert.T(t, client.loop.ConnectTo("::port") != nil)
	assert.T(t, client.loop.ConnectTo("::1300") != nil, "nothing listens on 1300")
	assert.Equal(t, nil, client.loop.ConnectTo("::1200"))
}

func TestClientServerSession(t *testing.T) {
	hub := replication.NewHub()
	server := newTestSide(t, hub)
	serverTower := server.scene.Spawn("Tower")
	spawner := server.scene.Spawn("Spawner")
	newPawn := spawner.AddActuator("NEW_PAWN=Player")
	serverPlayer := server.scene.AddInactive("Player")
	serverPlayer.AddSensor("->init")
	serverPlayer.AddSensor("@ping")

	client := newTestSide(t, hub)
	clientTower := client.scene.Spawn("Tower")
	client.scene.AddInactive("Player").AddActuator("@ping")

	server.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "SERVER")))
	server.loop.Step()
	client.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "CLIENT")))
	client.broadcast(subject.MustEncode(subject.Global(subject.ConnectTo, "::1200")))
	client.loop.Step()

	ct := client.loop.Registry().Lookup(clientTower)
	assert.T(t, ct != nil)
	assert.Equal(t, server.loop.Registry().Lookup(serverTower).ID(), ct.ID())
	assert.Equal(t, replication.RoleNone, ct.Roles().Local)

	client.loop.Step() // hello
	server.loop.Step() // new controller
	assert.Equal(t, 1, server.loop.Controllers().Pending())

	spawner.Fire(newPawn, "")
	server.loop.Step()
	assert.Equal(t, 0, server.loop.Controllers().Pending())
	pawn := server.loop.Registry().Lookup(server.scene.Object("Player"))
	assert.T(t, pawn != nil)
	initSubj := subject.MustEncode(subject.Instance(subject.SelfMessage, "init", "Scene", pawn.ID()))
	assert.T(t, hasMessage(server.engine.MemoryBus().Pending(), initSubj, "Player"))

	client.loop.Step()
	assert.Equal(t, replication.RoleSimulatedProxy, ct.Roles().Local)
	clientPlayer := client.scene.Object("Player")
	assert.T(t, clientPlayer != nil)
	cp := client.loop.Registry().Lookup(clientPlayer)
	assert.T(t, cp != nil)
	assert.Equal(t, pawn.ID(), cp.ID())
	assert.Equal(t, replication.RoleAutonomousProxy, cp.Roles().Local)

	// the owning client asks the server to run ping
	clientPlayer.Fire(clientPlayer.MessageActuators()[0], "")
	client.loop.Step()
	server.loop.Step()
	pingSubj := subject.MustEncode(subject.Instance(subject.RPCInvoke, "ping", "Scene", pawn.ID()))
	assert.T(t, hasMessage(server.engine.MemoryBus().Current(), pingSubj, "Player"))

	client.loop.RequestExit()
	client.loop.Step()
	assert.T(t, !client.loop.Exited(), "clients wait for the disconnect acknowledgement")
	assert.T(t, hasMessage(client.engine.MemoryBus().Pending(), pendingDisconnectMessage, ""))
	client.loop.Step() // disconnect request
	server.loop.Step() // acknowledgement
	assert.T(t, pawn.Object.Owner() == nil)
	assert.T(t, pawn.IsDestroyed(), "the pawn of a gone client is destroyed")
	client.loop.Step()
	assert.T(t, client.loop.Exited())
	assert.Equal(t, "disconnected", client.loop.ExitReason())
}

func TestLostControllerIsNotServed(t *testing.T) {
	hub := replication.NewHub()
	server := newTestSide(t, hub)
	spawner := server.scene.Spawn("Spawner")
	newPawn := spawner.AddActuator("NEW_PAWN=Player")
	server.scene.AddInactive("Player")
	server.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "SERVER")))
	server.loop.Step()

	connect := func(side *testSide) {
		side.broadcast(subject.MustEncode(subject.Global(subject.SetNetMode, "CLIENT")))
		side.broadcast(subject.MustEncode(subject.Global(subject.ConnectTo, "::1200")))
		side.loop.Step()
		side.loop.Step()
	}

	gone := newTestSide(t, hub)
	gone.scene.AddInactive("Player")
	connect(gone)
	server.loop.Step()
	assert.Equal(t, 1, server.loop.Controllers().Pending())

	gone.loop.RequestExit()
	gone.loop.Step()
	gone.loop.Step()
	server.loop.Step()
	assert.Equal(t, 0, server.loop.Controllers().Pending())

	live := newTestSide(t, hub)
	live.scene.AddInactive("Player")
	connect(live)
	server.loop.Step()
	assert.Equal(t, 1, server.loop.Controllers().Pending())

	spawner.Fire(newPawn, "")
	server.loop.Step()
	assert.Equal(t, 0, server.loop.Controllers().Pending())
	pawn := server.loop.Registry().Lookup(server.scene.Object("Player"))
	assert.T(t, pawn != nil)
	assert.T(t, pawn.Object.Owner() != nil)

	live.loop.Step()
	livePlayer := live.scene.Object("Player")
	assert.T(t, livePlayer != nil)
	assert.Equal(t, replication.RoleAutonomousProxy, live.loop.Registry().Lookup(livePlayer).Roles().Local)
}

func TestDisconnectTimeout(t *testing.T) {
	side := newTestSide(t, nil)
	side.loop.Config().Bridge.DisconnectTimeout = 10 * time.Millisecond
	if err := side.loop.SetNetMode(replication.NetModeClient); err != nil {
		t.Fatal(err)
	}
	side.loop.RequestExit()
	side.loop.Step()
	assert.T(t, !side.loop.Exited())

	deadline := time.Now().Add(5 * time.Second)
	for !side.loop.Exited() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
		side.loop.Step()
	}
	assert.T(t, side.loop.Exited())
	assert.Equal(t, "disconnect timed out", side.loop.ExitReason())
}

func TestRun(t *testing.T) {
	side := newTestSide(t, nil)
	side.loop.RequestExit()
	assert.Equal(t, nil, side.loop.Run(context.Background()))

	other := newTestSide(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Equal(t, context.DeadlineExceeded, other.loop.Run(ctx))
}

func TestCheckVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `"2.0.0"`)
	}))
	defer srv.Close()

	side := newTestSide(t, nil)
	assert.T(t, side.loop.CheckVersion(func(*versioncheck.Result, error) {}) != nil)

	side.loop.Config().Bridge.VersionCheckURL = srv.URL
	side.loop.Config().Bridge.LocalVersion = "1.0.0"
	var result *versioncheck.Result
	err := side.loop.CheckVersion(func(res *versioncheck.Result, err error) {
		if err != nil {
			t.Error(err)
		}
		result = res
	})
	assert.Equal(t, nil, err)

	deadline := time.Now().Add(5 * time.Second)
	for result == nil && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
		side.loop.Step()
	}
	assert.T(t, result != nil)
	assert.T(t, !result.UpToDate)
	assert.Equal(t, "2.0.0", result.Remote)
}
