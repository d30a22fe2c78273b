package entity

import (
	"fmt"

	"github.com/netbricks/netbricks/engine/common"
	"github.com/netbricks/netbricks/engine/consts"
	"github.com/netbricks/netbricks/engine/gwlog"
	"github.com/netbricks/netbricks/engine/host"
	"github.com/netbricks/netbricks/engine/replication"
	"github.com/netbricks/netbricks/engine/statemask"
	"github.com/netbricks/netbricks/engine/subject"
	"github.com/pkg/errors"
)

type brickBinding struct {
	brick    *host.MessageBrick
	original string
}

// Entity binds one host object to one replicated object
//
// Entities are created by Registry.Bind and stay valid until Registry.Unbind.
type Entity struct {
	TypeName     string
	Host         host.Object
	Object       *replication.Object
	typeDesc     *EntityType
	registry     *Registry
	bricks       []brickBinding
	selfMessages common.StringSet
	destroyed    bool
}

func newEntity(r *Registry, et *EntityType, hostObj host.Object, obj *replication.Object) *Entity {
	e := &Entity{
		TypeName:     et.Name(),
		Host:         hostObj,
		Object:       obj,
		typeDesc:     et,
		registry:     r,
		selfMessages: common.StringSet{},
	}
	obj.OnReplicated = e.onReplicated
	obj.OnInvoke = e.onInvoke
	return e
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s<%s#%d>", e.TypeName, e.Scene(), e.ID())
}

// ID returns the replicable id, unique within the scene
func (e *Entity) ID() uint64 {
	return e.Object.ID()
}

// Scene returns the scene name
func (e *Entity) Scene() string {
	return e.Object.Scene()
}

// Type returns the entity type
func (e *Entity) Type() *EntityType {
	return e.typeDesc
}

// Roles returns the local and remote network roles
func (e *Entity) Roles() replication.Roles {
	return e.Object.Roles()
}

// IsDestroyed returns if the entity was unbound
func (e *Entity) IsDestroyed() bool {
	return e.destroyed
}

// Get returns the replicated value of an attribute
func (e *Entity) Get(name string) interface{} {
	return e.Object.Get(name)
}

// Set sets the replicated value of an attribute and mirrors it to the host object
func (e *Entity) Set(name string, val interface{}) error {
	attr := e.typeDesc.Attribute(name)
	if attr == nil {
		return errors.Errorf("%s has no attribute %s", e, name)
	}
	v, err := attr.Type.Coerce(val)
	if err != nil {
		return err
	}
	e.Object.Set(name, v)
	e.Host.SetProperty(name, v)
	return nil
}

// Call invokes an RPC through its generated stub
//
// The call runs locally when the RPC targets this side's network mode, otherwise it is sent to the other side.
func (e *Entity) Call(rpc string, args ...interface{}) error {
	rd := e.typeDesc.rpcDescs[rpc]
	if rd == nil {
		return errors.Wrapf(ErrUnknownRPC, "%s.%s", e.TypeName, rpc)
	}
	return rd.Stub(e, args)
}

func (e *Entity) dispatchRPC(rd *rpcDesc, args []interface{}) error {
	if e.destroyed {
		return errors.Errorf("%s is destroyed", e)
	}
	svc := e.registry.svc
	if rd.Target != svc.NetMode() {
		return svc.Invoke(e.Object, rd.Name, args, rd.reliable())
	}

	role := e.Object.Roles().Local
	if role < replication.RoleSimulatedProxy || (role == replication.RoleSimulatedProxy && !rd.simulated()) {
		gwlog.Debugf("%s: rpc %s not executed with role %s", e, rd.Name, role)
		return nil
	}
	return e.registry.DispatchOutboundRPC(e, rd.Name, args)
}

func (e *Entity) onInvoke(rpc string, args []interface{}) {
	rd := e.typeDesc.rpcDescs[rpc]
	if rd == nil {
		gwlog.Warnf("%s: unknown rpc %s", e, rpc)
		return
	}
	if err := e.dispatchRPC(rd, args); err != nil {
		gwlog.Errorf("%s: rpc %s failed: %v", e, rpc, err)
	}
}

func (e *Entity) onReplicated(name string) {
	if name == replication.RolesAttribute {
		if err := e.SetNetworkStates(false); err != nil {
			gwlog.Warnf("%s: %v", e, err)
		}
		e.sendIdentified(subject.Notification, name)
		return
	}

	attr := e.typeDesc.Attribute(name)
	if attr == nil {
		return
	}
	e.Host.SetProperty(name, e.Object.Get(name))
	if attr.Notify {
		e.sendIdentified(subject.Notification, name)
	}
}

// SyncProperties copies host property values into the replicated attributes on the authority
func (e *Entity) SyncProperties() {
	if e.Object.Roles().Local != replication.RoleAuthority {
		return
	}
	for _, attr := range e.typeDesc.attrs {
		val, ok := e.Host.Property(attr.Name)
		if !ok {
			continue
		}
		v, err := attr.Type.Coerce(val)
		if err != nil {
			gwlog.Warnf("%s: property %s: %v", e, attr.Name, err)
			continue
		}
		e.Object.Set(attr.Name, v)
	}
}

// SetNetworkStates recomputes the active behavior states of the host object from the current role
//
// The mask is written even when no state is left, leaving the host object inert.
func (e *Entity) SetNetworkStates(justCreated bool) error {
	mask, ok := statemask.Compute(statemask.Input{
		Current:     e.Host.State(),
		Masks:       e.typeDesc.StateMasks(),
		Mode:        e.registry.svc.NetMode(),
		Role:        e.Object.Roles().Local,
		JustCreated: justCreated,
		Used:        e.Host.ControllerStates(),
	})
	e.Host.SetState(mask)
	if !ok {
		return errors.Errorf("no free behavior state for %s", e)
	}
	return nil
}

// ReceiveSelfMessage forwards a message to the host object if one of its sensors subscribed to it
func (e *Entity) ReceiveSelfMessage(name string) bool {
	if !e.selfMessages.Contains(name) {
		return false
	}
	e.sendIdentified(subject.SelfMessage, name)
	return true
}

// InvokeMethod calls a zero-argument bridge method by name
func (e *Entity) InvokeMethod(name string) error {
	method, ok := bridgeMethods[name]
	if !ok {
		return errors.Wrapf(ErrUnknownMethod, "%s.%s", e.TypeName, name)
	}
	return method(e)
}

var bridgeMethods = map[string]func(e *Entity) error{
	"sync_properties": func(e *Entity) error {
		e.SyncProperties()
		return nil
	},
	"set_network_states": func(e *Entity) error {
		return e.SetNetworkStates(false)
	},
}

// sendIdentified sends an identified subject to the entity's own host object
func (e *Entity) sendIdentified(cat subject.Category, name string) {
	subj := subject.MustEncode(subject.Instance(cat, name, e.Scene(), e.ID()))
	e.Host.SendMessage(subj, consts.INTERNAL_MESSAGE_BODY, e.Host.Name())
}

// rewriteBricks replaces author-facing instance subjects such as "@ping" with subjects addressing this entity
func (e *Entity) rewriteBricks() {
	for _, brick := range e.Host.MessageSensors() {
		e.rewriteBrick(brick, true)
	}
	for _, brick := range e.Host.MessageActuators() {
		e.rewriteBrick(brick, false)
	}
	if len(e.selfMessages) > 0 {
		gwlog.Debugf("%s: self messages %v", e, e.selfMessages.ToList())
	}
}

func (e *Entity) rewriteBrick(brick *host.MessageBrick, isSensor bool) {
	if _, err := subject.Decode(brick.Subject); err == nil {
		// already identified
		return
	}
	cat, name, ok := subject.Split(brick.Subject, subject.ScopeInstance)
	if !ok {
		return
	}
	e.bricks = append(e.bricks, brickBinding{brick: brick, original: brick.Subject})
	brick.Subject = subject.MustEncode(subject.Instance(cat, name, e.Scene(), e.ID()))
	if isSensor && cat == subject.SelfMessage {
		e.selfMessages.Add(name)
	}
}

func (e *Entity) restoreBricks() {
	for _, b := range e.bricks {
		b.brick.Subject = b.original
	}
	e.bricks = nil
	e.selfMessages = common.StringSet{}
}
