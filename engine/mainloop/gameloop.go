// Package mainloop runs the bridge: one tick per logic frame, draining the message bus and driving the network.
package mainloop

import (
	"context"
	"time"

	"github.com/netbricks/netbricks/engine/config"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/controller"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/entity"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/gwvar"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/opmon"
	"github.com/netbricks/netbricks/engine/post"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/versioncheck"
	"github.com/pkg/errors"
	"github.com/xiaonanln/go-xnsyncutil/xnsyncutil"
	timer "github.com/xiaonanln/goTimer"
)

const (
	networkInitMessage       = "NETWORK_INIT"
	pendingDisconnectMessage = "pending_disconnect"
)

// ServiceFactory creates the replication service for a network mode
//
// Servers listen on port; clients get port 0.
type ServiceFactory func(mode replication.NetMode, port int) (replication.Service, error)

// Options configure a GameLoop
type Options struct {
	Engine host.Engine
	// Loader reads descriptors and templates; nil means no entity type is networked
	Loader *definition.Loader
	// Config defaults to config.Get()
	Config *config.BridgeConfig
	// NewService defaults to in-process peers connected through Hub
	NewService ServiceFactory
	Hub        *replication.Hub
}

// GameLoop owns every bridge component and runs them in a fixed phase order
type GameLoop struct {
	engine     host.Engine
	loader     *definition.Loader
	synth      *entity.Synthesizer
	cfg        *config.BridgeConfig
	newService ServiceFactory

	svc         replication.Service
	registry    *entity.Registry
	controllers *controller.Manager
	objectTypes map[string]string // host object name -> entity type name
	scenes      map[string]bool   // scenes whose bricks were converted

	posts   *post.Queue
	monitor *opmon.Monitor
	checker *versioncheck.Checker

	now      func() time.Time
	lastSent time.Time

	exitRequested   xnsyncutil.AtomicBool
	exiting         bool
	disconnectTimer *timer.Timer
	exited          xnsyncutil.AtomicBool
	exitReason      string
}

// New creates a game loop in the default (non-networked) mode
func New(opts Options) *GameLoop {
	if opts.Engine == nil {
		gwlog.Panicf("mainloop: engine is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Get()
	}
	var source entity.DescriptorSource
	if opts.Loader != nil {
		source = opts.Loader
	}

	gl := &GameLoop{
		engine:      opts.Engine,
		loader:      opts.Loader,
		synth:       entity.NewSynthesizer(source),
		cfg:         cfg,
		newService:  opts.NewService,
		objectTypes: map[string]string{},
		scenes:      map[string]bool{},
		posts:       post.NewQueue(),
		monitor:     opmon.NewMonitor(),
		now:         time.Now,
	}
	if gl.newService == nil {
		hub := opts.Hub
		if hub == nil {
			hub = replication.NewHub()
		}
		gl.newService = hubServiceFactory(hub)
	}
	return gl
}

func hubServiceFactory(hub *replication.Hub) ServiceFactory {
	return func(mode replication.NetMode, port int) (replication.Service, error) {
		if mode == replication.NetModeServer {
			return replication.NewServer(hub, port)
		}
		return replication.NewClient(hub), nil
	}
}

func (gl *GameLoop) String() string {
	if gl.svc == nil {
		return "GameLoop<default>"
	}
	return "GameLoop<" + gl.svc.NetMode().String() + ">"
}

// Engine returns the game engine
func (gl *GameLoop) Engine() host.Engine {
	return gl.engine
}

// Config returns the bridge config
func (gl *GameLoop) Config() *config.BridgeConfig {
	return gl.cfg
}

// Synthesizer returns the entity type synthesizer
func (gl *GameLoop) Synthesizer() *entity.Synthesizer {
	return gl.synth
}

// Service returns the replication service, or nil before the network mode is set
func (gl *GameLoop) Service() replication.Service {
	return gl.svc
}

// Registry returns the entity registry, or nil before the network mode is set
func (gl *GameLoop) Registry() *entity.Registry {
	return gl.registry
}

// Controllers returns the controller manager, or nil before the network mode is set
func (gl *GameLoop) Controllers() *controller.Manager {
	return gl.controllers
}

// Post runs f on the loop at the end of the next tick; it is safe to call from any goroutine
func (gl *GameLoop) Post(f post.PostCallback) {
	gl.posts.Post(f)
}

// Step runs one tick
func (gl *GameLoop) Step() {
	if gl.exited.Load() {
		return
	}
	if gl.svc == nil {
		gl.stepDefault()
	} else {
		gl.stepNetwork()
	}
	timer.Tick()
	gl.posts.Tick()
}

func (gl *GameLoop) stepDefault() {
	gl.engine.NextFrame()
	gl.processMessages()
	gl.checkExit()
}

func (gl *GameLoop) stepNetwork() {
	threshold := consts.OPMON_WARN_THRESHOLD

	op := gl.monitor.StartOperation("receive")
	gl.svc.Receive()
	op.Finish(threshold)

	op = gl.monitor.StartOperation("frame")
	gl.engine.NextFrame()
	op.Finish(threshold)

	op = gl.monitor.StartOperation("update_network_state")
	gl.updateNetworkState()
	op.Finish(threshold)

	op = gl.monitor.StartOperation("process_messages")
	gl.processMessages()
	op.Finish(threshold)

	op = gl.monitor.StartOperation("sync_properties")
	gl.registry.SyncProperties()
	op.Finish(threshold)

	now := gl.now()
	fullUpdate := now.Sub(gl.lastSent) >= gl.cfg.Main.NetworkUpdateInterval()
	op = gl.monitor.StartOperation("send")
	gl.svc.Send(fullUpdate)
	op.Finish(threshold)
	if fullUpdate {
		gl.lastSent = now
	}

	metrics := gl.svc.Metrics()
	if metrics.SampleAge() >= gl.cfg.Main.MetricIntervalDuration() {
		publishMetrics(metrics, gl.registry.Len())
		gwlog.Infof("%s: sent %d packets (%d bytes), received %d packets (%d bytes), %d entities", gl,
			metrics.PacketsSent, metrics.BytesSent, metrics.PacketsReceived, metrics.BytesReceived, gl.registry.Len())
		gl.monitor.Dump()
		metrics.ResetSampleWindow()
	}

	gl.checkExit()
}

// Run steps the loop at the engine's logic tick rate until it exits or ctx is done
func (gl *GameLoop) Run(ctx context.Context) error {
	rate := gl.engine.LogicTickRate()
	if rate <= 0 {
		rate = consts.DEFAULT_LOGIC_TICK_RATE
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()
	defer gl.Close()

	for !gl.exited.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			gl.Step()
		}
	}
	gwlog.Infof("%s exited: %s", gl, gl.exitReason)
	return nil
}

// CheckVersion asks the configured endpoint whether the bridge is current; callback runs on the loop
func (gl *GameLoop) CheckVersion(callback versioncheck.Callback) error {
	bc := gl.cfg.Bridge
	if bc.VersionCheckURL == "" {
		return errors.New("version_check_url is not configured")
	}
	if gl.checker == nil {
		gl.checker = versioncheck.NewChecker(gl.posts)
	}
	gl.checker.Check("netbricks", bc.VersionCheckURL, bc.LocalVersion, callback)
	return nil
}

// RequestExit asks the loop to exit at the end of the current or next tick
func (gl *GameLoop) RequestExit() {
	gl.exitRequested.Store(true)
}

// Exited returns if the loop has exited
func (gl *GameLoop) Exited() bool {
	return gl.exited.Load()
}

// ExitReason returns why the loop exited
func (gl *GameLoop) ExitReason() string {
	return gl.exitReason
}

func (gl *GameLoop) checkExit() {
	if !gl.exitRequested.Load() || gl.exiting {
		return
	}
	gl.exiting = true
	gwvar.IsExiting.Set(true)

	if gl.svc == nil || gl.svc.NetMode() == replication.NetModeServer {
		gl.exit("exit requested")
		return
	}

	gl.engine.Bus().Send(host.Message{Subject: pendingDisconnectMessage, Body: consts.INVALID_MESSAGE_BODY})
	gl.svc.Disconnect()
	gl.disconnectTimer = timer.AddCallback(gl.cfg.Bridge.DisconnectTimeout, func() {
		gl.exit("disconnect timed out")
	})
}

func (gl *GameLoop) exit(reason string) {
	if gl.exited.Load() {
		return
	}
	if gl.disconnectTimer != nil {
		gl.disconnectTimer.Cancel()
		gl.disconnectTimer = nil
	}
	gl.exitReason = reason
	gl.exited.Store(true)
	gwlog.Infof("%s: %s", gl, reason)
}

// Close releases the network and the version checker
func (gl *GameLoop) Close() {
	if gl.checker != nil {
		gl.checker.Shutdown()
		gl.checker = nil
	}
	if gl.svc != nil {
		gl.svc.Close()
	}
}

// OnRemoteCreate implements replication.Listener
func (gl *GameLoop) OnRemoteCreate(className string, scene string, id uint64) *replication.Object {
	return gl.registry.OnRemoteCreate(className, scene, id)
}

// OnRemoteDeregister implements replication.Listener
func (gl *GameLoop) OnRemoteDeregister(obj *replication.Object) {
	gl.registry.OnRemoteDeregister(obj)
}

// OnNewController implements replication.Listener
func (gl *GameLoop) OnNewController(c *replication.Controller) {
	gl.controllers.OnNewController(c)
}

// OnControllerLost implements replication.Listener
func (gl *GameLoop) OnControllerLost(c *replication.Controller) {
	gl.controllers.OnControllerLost(c)
}

// OnDisconnected implements replication.Listener
func (gl *GameLoop) OnDisconnected() {
	gl.exit("disconnected")
}

func publishMetrics(metrics *replication.Metrics, entities int) {
	gwvar.Entities.Set(int64(entities))
	gwvar.PacketsSent.Set(int64(metrics.PacketsSent))
	gwvar.PacketsReceived.Set(int64(metrics.PacketsReceived))
	gwvar.BytesSent.Set(int64(metrics.BytesSent))
	gwvar.BytesReceived.Set(int64(metrics.BytesReceived))
}
