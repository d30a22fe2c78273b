package mainloop

import (
	"sort"
	"strings"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/controller"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/entity"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/gwvar"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/pkg/errors"
)

// SetNetMode starts the network in mode
//
// The network mode can only be set once; later calls log a warning and return nil.
func (gl *GameLoop) SetNetMode(mode replication.NetMode) error {
	if gl.svc != nil {
		gwlog.Warnf("%s: network mode is already set", gl)
		return nil
	}

	port := 0
	if mode == replication.NetModeServer {
		port = gl.cfg.Main.Port
	}
	svc, err := gl.newService(mode, port)
	if err != nil {
		return err
	}

	gl.svc = svc
	gl.registry = entity.NewRegistry(svc, gl.synth, gl.engine)
	gl.controllers = controller.NewManager(gl.registry, gl.engine)
	svc.SetListener(gl)
	svc.Metrics().ResetSampleWindow()
	gl.lastSent = gl.now()

	gl.preloadTypes()
	gl.updateNetworkState()

	gwvar.NetMode.Set(mode.String())
	gwlog.SetSource(strings.ToLower(mode.String()))
	gl.engine.Bus().Send(host.Message{Subject: networkInitMessage, Body: consts.INVALID_MESSAGE_BODY})
	gwlog.Infof("%s: network started, %d entity types, tick rate %d", gl, len(gl.objectTypes), gl.cfg.Main.TickRate)
	return nil
}

// preloadTypes synthesizes every entity type with a descriptor so configuration errors surface at startup
//
// A type that fails to load is logged and left out; its host objects stay local.
func (gl *GameLoop) preloadTypes() {
	if gl.loader == nil {
		return
	}
	names, err := gl.loader.Names()
	if err != nil {
		gwlog.Errorf("%s: list entity types: %v", gl, err)
		return
	}
	for _, name := range names {
		et, err := gl.synth.Get(name)
		if err != nil {
			gwlog.Errorf("%s: entity type %s is not networked: %v", gl, name, err)
			continue
		}
		objectName := et.Descriptor().ObjectName
		if other, ok := gl.objectTypes[objectName]; ok {
			gwlog.Warnf("%s: host object %s is configured by both %s and %s, using %s", gl, objectName, other, name, other)
			continue
		}
		gl.objectTypes[objectName] = name
	}
}

// entityTypeOf returns the entity type configured for a host object name, or nil
func (gl *GameLoop) entityTypeOf(objectName string) *entity.EntityType {
	typeName, ok := gl.objectTypes[objectName]
	if !ok {
		return nil
	}
	et, err := gl.synth.Get(typeName)
	if err != nil {
		return nil
	}
	return et
}

// updateNetworkState binds the host objects that appeared since the last tick and culls destroyed ones
//
// Objects that can be spawned from an inactive object are dynamic and get an id from the replication service.
// The others were placed in the scene by its author; every peer sees the same set, so they are numbered by
// their sorted names.
func (gl *GameLoop) updateNetworkState() {
	for _, scene := range gl.engine.Scenes() {
		gl.convertScene(scene)

		inactive := common.StringSet{}
		for _, obj := range scene.InactiveObjects() {
			inactive.Add(obj.Name())
		}

		var static, dynamic []host.Object
		for _, obj := range scene.Objects() {
			if obj.Invalid() || gl.registry.Lookup(obj) != nil || gl.entityTypeOf(obj.Name()) == nil {
				continue
			}
			if inactive.Contains(obj.Name()) {
				dynamic = append(dynamic, obj)
			} else {
				static = append(static, obj)
			}
		}

		sort.SliceStable(static, func(i, j int) bool {
			return static[i].Name() < static[j].Name()
		})
		for i, obj := range static {
			if _, err := gl.registry.BindStatic(obj, gl.entityTypeOf(obj.Name()), uint64(i)); err != nil {
				gwlog.Errorf("%s: bind static %s: %v", gl, obj.Name(), err)
			}
		}
		for _, obj := range dynamic {
			if _, err := gl.registry.BindType(obj, gl.entityTypeOf(obj.Name())); err != nil {
				gwlog.Errorf("%s: bind %s: %v", gl, obj.Name(), err)
			}
		}
	}

	if n := gl.registry.CullInvalid(); n > 0 {
		gwlog.Debugf("%s: culled %d destroyed entities", gl, n)
	}
	gl.controllers.CullReleased()
}

// convertScene rewrites the scene scoped bricks of a scene the first time it is seen
//
// A sensor "SCENE->x" listens to the scene's re-broadcast of x. An actuator "NEW_PAWN=Player" announces its sender,
// so the controller manager can tell which object created the pawn.
func (gl *GameLoop) convertScene(scene host.Scene) {
	if gl.scenes[scene.Name()] {
		return
	}
	gl.scenes[scene.Name()] = true

	for _, obj := range scene.InactiveObjects() {
		convertObjectBricks(scene.Name(), obj, false)
	}
	for _, obj := range scene.Objects() {
		convertObjectBricks(scene.Name(), obj, true)
	}
}

func convertObjectBricks(sceneName string, obj host.Object, active bool) {
	for _, brick := range obj.MessageSensors() {
		if msg, ok := sceneSubject(sceneName, brick.Subject); ok {
			brick.Subject = subject.MustEncode(msg)
		}
	}
	for _, brick := range obj.MessageActuators() {
		if msg, ok := sceneSubject(sceneName, brick.Subject); ok {
			if active {
				// spawned copies have ids of their own and are identified by the message sender
				msg.ID = uint64(obj.ID())
			}
			brick.Subject = subject.MustEncode(msg)
		}
	}
}

func sceneSubject(sceneName string, raw string) (subject.Message, bool) {
	if _, err := subject.Decode(raw); err == nil {
		return subject.Message{}, false
	}
	cat, name, ok := subject.Split(raw, subject.ScopeScene)
	if !ok {
		return subject.Message{}, false
	}
	return subject.Scene(cat, name, sceneName), true
}

// LoadEntityType reloads the descriptor of an entity type, e.g. after it was edited
func (gl *GameLoop) LoadEntityType(name string) (*entity.EntityType, error) {
	gl.synth.Invalidate(name)
	et, err := gl.synth.Get(name)
	if err != nil {
		if errors.Cause(err) == definition.ErrDescriptorNotFound {
			for objectName, typeName := range gl.objectTypes {
				if typeName == name {
					delete(gl.objectTypes, objectName)
				}
			}
		}
		return nil, err
	}
	gl.objectTypes[et.Descriptor().ObjectName] = name
	return et, nil
}
