package entity

import (
	"sort"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/definition"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/pkg/errors"
)

var (
	// ErrAlreadyBound is returned when binding a host object that already has an entity
	ErrAlreadyBound = errors.New("host object already bound")
	// ErrUnknownInstance is returned when a message addresses a replicable that is not registered
	ErrUnknownInstance = errors.New("unknown replicable")
	// ErrUnknownRPC is returned when invoking an RPC the entity type does not declare
	ErrUnknownRPC = errors.New("unknown rpc")
	// ErrUnknownMethod is returned when invoking a bridge method that does not exist
	ErrUnknownMethod = errors.New("unknown bridge method")
)

type hostKey struct {
	scene string
	id    common.ObjectID
}

// Registry tracks the bijection between host objects and replicated objects
//
// It is driven by the game loop and is not safe for concurrent use.
type Registry struct {
	svc            replication.Service
	synth          *Synthesizer
	engine         host.Engine
	byHost         map[hostKey]*Entity
	byScene        map[string]EntityMap
	byObject       map[*replication.Object]*Entity
	entitiesByType map[string]EntitySet
}

// NewRegistry creates a registry binding host objects of engine to objects of svc
func NewRegistry(svc replication.Service, synth *Synthesizer, engine host.Engine) *Registry {
	return &Registry{
		svc:            svc,
		synth:          synth,
		engine:         engine,
		byHost:         map[hostKey]*Entity{},
		byScene:        map[string]EntityMap{},
		byObject:       map[*replication.Object]*Entity{},
		entitiesByType: map[string]EntitySet{},
	}
}

// Service returns the replication service
func (r *Registry) Service() replication.Service {
	return r.svc
}

// Synthesizer returns the synthesizer entity types are taken from
func (r *Registry) Synthesizer() *Synthesizer {
	return r.synth
}

func (r *Registry) put(e *Entity) {
	r.byHost[hostKey{e.Scene(), e.Host.ID()}] = e
	r.byObject[e.Object] = e
	if entities, ok := r.byScene[e.Scene()]; ok {
		entities.Add(e)
	} else {
		r.byScene[e.Scene()] = EntityMap{e.ID(): e}
	}
	if entities, ok := r.entitiesByType[e.TypeName]; ok {
		entities.Add(e)
	} else {
		r.entitiesByType[e.TypeName] = EntitySet{e: {}}
	}
}

func (r *Registry) del(e *Entity) {
	delete(r.byHost, hostKey{e.Scene(), e.Host.ID()})
	delete(r.byObject, e.Object)
	if entities, ok := r.byScene[e.Scene()]; ok && entities.Get(e.ID()) == e {
		entities.Del(e.ID())
	}
	if entities, ok := r.entitiesByType[e.TypeName]; ok {
		entities.Del(e)
	}
}

// Bind creates the entity of desc for a host object, with an id assigned by the replication service
func (r *Registry) Bind(obj host.Object, desc *definition.Descriptor) (*Entity, error) {
	et := r.synth.Cached(desc.Name)
	if et == nil || et.Descriptor() != desc {
		var err error
		if et, err = r.synth.Synthesize(desc); err != nil {
			return nil, err
		}
	}
	return r.BindType(obj, et)
}

// BindType creates the entity of et for a host object, with an id assigned by the replication service
func (r *Registry) BindType(obj host.Object, et *EntityType) (*Entity, error) {
	return r.bind(obj, et, 0, false, r.localRoles(et, false))
}

// BindStatic creates the entity of et for a host object placed in the scene by its author
//
// Static objects exist on every peer, so their ids are agreed on in advance.
func (r *Registry) BindStatic(obj host.Object, et *EntityType, id uint64) (*Entity, error) {
	return r.bind(obj, et, id, true, r.localRoles(et, true))
}

func (r *Registry) localRoles(et *EntityType, static bool) replication.Roles {
	if r.svc.NetMode() == replication.NetModeServer {
		return replication.Roles{Local: replication.RoleAuthority, Remote: et.Descriptor().RemoteRole}
	}
	if static {
		// replaced when the server replicates the object
		return replication.Roles{Local: replication.RoleNone, Remote: replication.RoleAuthority}
	}
	return replication.Roles{Local: replication.RoleAuthority, Remote: replication.RoleNone}
}

func (r *Registry) bind(obj host.Object, et *EntityType, id uint64, explicit bool, roles replication.Roles) (*Entity, error) {
	if obj.Invalid() {
		return nil, errors.Errorf("bind %s: host object is destroyed", obj.Name())
	}
	sceneName := obj.Scene().Name()
	if e := r.byHost[hostKey{sceneName, obj.ID()}]; e != nil {
		return nil, errors.Wrapf(ErrAlreadyBound, "%s is bound to %s", obj.Name(), e)
	}

	robj := replication.NewObject(et, sceneName, roles)
	authority := roles.Local == replication.RoleAuthority
	for _, attr := range et.attrs {
		val := attr.Default
		if hv, ok := obj.Property(attr.Name); ok && authority {
			if v, err := attr.Type.Coerce(hv); err == nil {
				val = v
			} else {
				gwlog.Warnf("bind %s: property %s: %v", obj.Name(), attr.Name, err)
			}
		}
		robj.Set(attr.Name, val)
	}

	if err := r.svc.Register(robj, id, explicit); err != nil {
		return nil, errors.WithMessagef(err, "bind %s", obj.Name())
	}

	for name, val := range et.defaults {
		if _, ok := obj.Property(name); !ok {
			obj.SetProperty(name, val)
		}
	}
	for _, attr := range et.attrs {
		if _, ok := obj.Property(attr.Name); !ok {
			obj.SetProperty(attr.Name, robj.Get(attr.Name))
		}
	}

	e := newEntity(r, et, obj, robj)
	e.rewriteBricks()
	r.put(e)
	if err := e.SetNetworkStates(true); err != nil {
		gwlog.Warnf("%s: %v", e, err)
	}
	gwlog.Debugf("Bound %s to host object %s (%d)", e, obj.Name(), obj.ID())
	return e, nil
}

// Unbind restores the host object's bricks and deregisters the replicated object
func (r *Registry) Unbind(e *Entity) {
	if e.destroyed {
		return
	}
	e.destroyed = true
	r.del(e)
	e.restoreBricks()
	e.Object.OnReplicated = nil
	e.Object.OnInvoke = nil
	if e.Object.Registered() {
		r.svc.Deregister(e.Object)
	}
	gwlog.Debugf("Unbound %s from host object %s (%d)", e, e.Host.Name(), e.Host.ID())
}

// Lookup returns the entity bound to a host object
func (r *Registry) Lookup(obj host.Object) *Entity {
	return r.byHost[hostKey{obj.Scene().Name(), obj.ID()}]
}

// Get returns the entity with the replicable id in the scene
func (r *Registry) Get(scene string, id uint64) *Entity {
	return r.byScene[scene].Get(id)
}

// ByObject returns the entity of a replicated object
func (r *Registry) ByObject(obj *replication.Object) *Entity {
	if obj == nil {
		return nil
	}
	return r.byObject[obj]
}

// Entities returns all entities ordered by scene and id
func (r *Registry) Entities() []*Entity {
	scenes := make([]string, 0, len(r.byScene))
	for scene := range r.byScene {
		scenes = append(scenes, scene)
	}
	sort.Strings(scenes)
	var entities []*Entity
	for _, scene := range scenes {
		entities = append(entities, r.byScene[scene].Sorted()...)
	}
	return entities
}

// EntitiesByType returns the entities of a type
func (r *Registry) EntitiesByType(typeName string) EntitySet {
	return r.entitiesByType[typeName]
}

// Len returns the number of entities
func (r *Registry) Len() int {
	return len(r.byObject)
}

// DispatchOutboundRPC writes the RPC arguments to host properties and tells the host object the RPC was invoked
func (r *Registry) DispatchOutboundRPC(e *Entity, rpc string, args []interface{}) error {
	rd := e.typeDesc.rpcDescs[rpc]
	if rd == nil {
		return errors.Wrapf(ErrUnknownRPC, "%s.%s", e.TypeName, rpc)
	}
	if len(args) != len(rd.Args) {
		return errors.Errorf("%s.%s takes %d arguments, %d given", e.TypeName, rpc, len(rd.Args), len(args))
	}
	for i, arg := range rd.Args {
		e.Host.SetProperty(arg.Name, args[i])
	}
	e.sendIdentified(subject.RPCInvoke, rpc)
	return nil
}

// OnInboundRPC invokes an RPC requested by the host object, reading its arguments from host properties
func (r *Registry) OnInboundRPC(scene string, id uint64, rpc string) error {
	e, err := r.mustGet(scene, id)
	if err != nil {
		return err
	}
	rd := e.typeDesc.rpcDescs[rpc]
	if rd == nil {
		return errors.Wrapf(ErrUnknownRPC, "%s.%s", e.TypeName, rpc)
	}
	args := make([]interface{}, len(rd.Args))
	for i, arg := range rd.Args {
		args[i], _ = e.Host.Property(arg.Name)
	}
	return rd.Stub(e, args)
}

// OnInboundNotify re-reads an attribute: from the host object on the authority, from the replica elsewhere
func (r *Registry) OnInboundNotify(scene string, id uint64, name string) error {
	e, err := r.mustGet(scene, id)
	if err != nil {
		return err
	}
	attr := e.typeDesc.Attribute(name)
	if attr == nil {
		return errors.Errorf("%s has no attribute %s", e, name)
	}
	if e.Roles().Local == replication.RoleAuthority {
		val, ok := e.Host.Property(name)
		if !ok {
			return nil
		}
		v, err := attr.Type.Coerce(val)
		if err != nil {
			return err
		}
		e.Object.Set(name, v)
	} else {
		e.Host.SetProperty(name, e.Object.Get(name))
	}
	return nil
}

// OnInboundMethod invokes a bridge method of the entity
func (r *Registry) OnInboundMethod(scene string, id uint64, method string) error {
	e, err := r.mustGet(scene, id)
	if err != nil {
		return err
	}
	return e.InvokeMethod(method)
}

// OnInboundSelfMessage forwards a self message to the entity's host object
func (r *Registry) OnInboundSelfMessage(scene string, id uint64, name string) error {
	e, err := r.mustGet(scene, id)
	if err != nil {
		return err
	}
	e.ReceiveSelfMessage(name)
	return nil
}

func (r *Registry) mustGet(scene string, id uint64) (*Entity, error) {
	e := r.Get(scene, id)
	if e == nil {
		return nil, errors.Wrapf(ErrUnknownInstance, "%s#%d", scene, id)
	}
	return e, nil
}

// SyncProperties copies host properties into the replicated attributes of all authoritative entities
func (r *Registry) SyncProperties() {
	for _, e := range r.byObject {
		e.SyncProperties()
	}
}

// CullInvalid unbinds the entities whose host object was destroyed and returns their count
func (r *Registry) CullInvalid() int {
	var culled []*Entity
	for _, e := range r.byObject {
		if e.Host.Invalid() {
			culled = append(culled, e)
		}
	}
	for _, e := range culled {
		r.Unbind(e)
	}
	return len(culled)
}

// OnRemoteCreate spawns and binds a host object for an object replicated by the server
func (r *Registry) OnRemoteCreate(className string, scene string, id uint64) *replication.Object {
	et, err := r.synth.Get(className)
	if err != nil {
		gwlog.Warnf("remote create %s: %v", className, err)
		return nil
	}
	sc := r.engine.Scene(scene)
	if sc == nil {
		gwlog.Warnf("remote create %s: scene %s not found", className, scene)
		return nil
	}
	obj, err := sc.AddObject(et.Descriptor().ObjectName)
	if err != nil {
		gwlog.Warnf("remote create %s: %v", className, err)
		return nil
	}
	e, err := r.bind(obj, et, id, true, replication.Roles{})
	if err != nil {
		gwlog.Warnf("remote create %s: %v", className, err)
		obj.End()
		return nil
	}
	return e.Object
}

// OnRemoteDeregister unbinds and destroys the host object of an object the server destroyed
func (r *Registry) OnRemoteDeregister(obj *replication.Object) {
	e := r.ByObject(obj)
	if e == nil {
		return
	}
	r.Unbind(e)
	e.Host.End()
}
